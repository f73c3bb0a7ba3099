package analytics

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-sync/internal/domain"
)

type stubRepo struct {
	appended      []domain.AnalyticsEvent
	overview      domain.Overview
	overviewCalls int
	series        []domain.ChartPoint
	seriesCalls   int
	events        []domain.AnalyticsEvent
}

func (s *stubRepo) Append(ctx context.Context, e domain.AnalyticsEvent) error {
	s.appended = append(s.appended, e)
	return nil
}

func (s *stubRepo) Overview(ctx context.Context, q Query) (domain.Overview, error) {
	s.overviewCalls++
	return s.overview, nil
}

func (s *stubRepo) Series(ctx context.Context, eventType string, q Query) ([]domain.ChartPoint, error) {
	s.seriesCalls++
	return s.series, nil
}

func (s *stubRepo) Events(ctx context.Context, q Query) ([]domain.AnalyticsEvent, error) {
	return s.events, nil
}

func (s *stubRepo) Prune(ctx context.Context, olderThan time.Duration, batchSize int) (int64, error) {
	return 0, nil
}

func testQuery() Query {
	return Query{
		From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testCache(t *testing.T) *reportCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewReportCache(client, 30*time.Minute)
}

func TestRecordFillsDefaults(t *testing.T) {
	repo := &stubRepo{}
	rec := NewRecorder(repo, nil)

	err := rec.Record(context.Background(), domain.AnalyticsEvent{
		EventType: domain.EventSubscription,
		FormID:    "form-1",
	})
	require.NoError(t, err)
	require.Len(t, repo.appended, 1)
	assert.NotEqual(t, uuid.Nil, repo.appended[0].ID)
	assert.False(t, repo.appended[0].CreatedAt.IsZero())
}

func TestOverviewConversionRate(t *testing.T) {
	tests := []struct {
		name     string
		overview domain.Overview
		want     float64
	}{
		{"no events", domain.Overview{}, 0},
		{"all successes", domain.Overview{Total: 10, Successes: 10}, 100},
		{"two thirds", domain.Overview{Total: 3, Successes: 2, Failures: 1}, 66.67},
		{"all failures", domain.Overview{Total: 5, Failures: 5}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := NewRecorder(&stubRepo{overview: tc.overview}, nil)
			got, err := rec.Overview(context.Background(), testQuery())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.ConversionRate)
		})
	}
}

func TestOverviewCaching(t *testing.T) {
	repo := &stubRepo{overview: domain.Overview{Total: 4, Successes: 3, Failures: 1}}
	rec := NewRecorder(repo, testCache(t))

	first, err := rec.Overview(context.Background(), testQuery())
	require.NoError(t, err)
	second, err := rec.Overview(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.overviewCalls, "second read should come from cache")
}

func TestRecordInvalidatesCache(t *testing.T) {
	repo := &stubRepo{overview: domain.Overview{Total: 1, Successes: 1}}
	rec := NewRecorder(repo, testCache(t))

	_, err := rec.Overview(context.Background(), testQuery())
	require.NoError(t, err)

	err = rec.Record(context.Background(), domain.AnalyticsEvent{EventType: domain.EventSubscription})
	require.NoError(t, err)

	_, err = rec.Overview(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.overviewCalls, "cache must be invalidated by a new event")
}

func TestChartCaching(t *testing.T) {
	repo := &stubRepo{series: []domain.ChartPoint{
		{Bucket: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Count: 2},
		{Bucket: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Count: 5},
	}}
	rec := NewRecorder(repo, testCache(t))

	first, err := rec.Chart(context.Background(), domain.EventSubscription, testQuery())
	require.NoError(t, err)
	second, err := rec.Chart(context.Background(), domain.EventSubscription, testQuery())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.seriesCalls)
}

func TestChartCacheKeyedByEventType(t *testing.T) {
	repo := &stubRepo{}
	rec := NewRecorder(repo, testCache(t))

	_, err := rec.Chart(context.Background(), domain.EventSubscription, testQuery())
	require.NoError(t, err)
	_, err = rec.Chart(context.Background(), domain.EventSubscriptionError, testQuery())
	require.NoError(t, err)

	assert.Equal(t, 2, repo.seriesCalls)
}

func TestExportCSV(t *testing.T) {
	repo := &stubRepo{events: []domain.AnalyticsEvent{
		{
			ID:        uuid.New(),
			EventType: domain.EventSubscription,
			FormID:    "form-1",
			ListID:    "list-a",
			Email:     "user@example.com",
			Metadata:  map[string]string{"method": domain.MethodImmediate},
			CreatedAt: time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
		},
	}}
	rec := NewRecorder(repo, nil)

	var buf bytes.Buffer
	require.NoError(t, rec.Export(context.Background(), testQuery(), &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "created_at,event_type,form_id,list_id,email,metadata", lines[0])
	assert.Contains(t, lines[1], "2026-01-15 09:30:00")
	assert.Contains(t, lines[1], "user@example.com")
	assert.Contains(t, lines[1], "immediate")
}

func TestExportEmptyWindowWritesHeader(t *testing.T) {
	rec := NewRecorder(&stubRepo{}, nil)

	var buf bytes.Buffer
	require.NoError(t, rec.Export(context.Background(), testQuery(), &buf))
	assert.Equal(t, "created_at,event_type,form_id,list_id,email,metadata\n", buf.String())
}
