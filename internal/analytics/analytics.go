package analytics

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/audience-sync/internal/domain"
	"github.com/ignite/audience-sync/internal/pkg/logger"
)

// Query narrows a report to a date range and optional form/list filters.
// From is inclusive, To exclusive.
type Query struct {
	From   time.Time
	To     time.Time
	FormID string
	ListID string
}

// Repository is the persistence surface the recorder needs.
type Repository interface {
	Append(ctx context.Context, e domain.AnalyticsEvent) error
	Overview(ctx context.Context, q Query) (domain.Overview, error)
	Series(ctx context.Context, eventType string, q Query) ([]domain.ChartPoint, error)
	Events(ctx context.Context, q Query) ([]domain.AnalyticsEvent, error)
	Prune(ctx context.Context, olderThan time.Duration, batchSize int) (int64, error)
}

// Recorder appends pipeline events and serves cached aggregate reads.
type Recorder struct {
	repo  Repository
	cache *reportCache
}

// NewRecorder creates a recorder. cache may be nil, which disables
// report caching entirely.
func NewRecorder(repo Repository, cache *reportCache) *Recorder {
	return &Recorder{repo: repo, cache: cache}
}

// Record appends one event and invalidates cached reports. A cache
// invalidation failure is logged but never fails the append: the event
// is already durable and stale reports expire on their own TTL.
func (r *Recorder) Record(ctx context.Context, e domain.AnalyticsEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := r.repo.Append(ctx, e); err != nil {
		return err
	}
	if r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			logger.Warn("analytics cache invalidation failed", "error", err.Error())
		}
	}
	return nil
}

// Overview returns the aggregated report for a window, computing the
// conversion rate from the stored counts. Serves from cache when a
// fresh copy exists.
func (r *Recorder) Overview(ctx context.Context, q Query) (domain.Overview, error) {
	if r.cache != nil {
		var o domain.Overview
		hit, err := r.cache.Get(ctx, "overview", q, &o)
		if err != nil {
			logger.Warn("analytics cache read failed", "error", err.Error())
		} else if hit {
			return o, nil
		}
	}

	o, err := r.repo.Overview(ctx, q)
	if err != nil {
		return domain.Overview{}, err
	}
	o.ConversionRate = conversionRate(o.Successes, o.Total)

	if r.cache != nil {
		if err := r.cache.Set(ctx, "overview", q, o); err != nil {
			logger.Warn("analytics cache write failed", "error", err.Error())
		}
	}
	return o, nil
}

// Chart returns the time-bucketed series for one event type, cached the
// same way Overview is.
func (r *Recorder) Chart(ctx context.Context, eventType string, q Query) ([]domain.ChartPoint, error) {
	if r.cache != nil {
		var points []domain.ChartPoint
		hit, err := r.cache.Get(ctx, "chart:"+eventType, q, &points)
		if err != nil {
			logger.Warn("analytics cache read failed", "error", err.Error())
		} else if hit {
			return points, nil
		}
	}

	points, err := r.repo.Series(ctx, eventType, q)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, "chart:"+eventType, q, points); err != nil {
			logger.Warn("analytics cache write failed", "error", err.Error())
		}
	}
	return points, nil
}

// Prune deletes events older than the retention window, in batches.
func (r *Recorder) Prune(ctx context.Context, olderThan time.Duration, batchSize int) (int64, error) {
	return r.repo.Prune(ctx, olderThan, batchSize)
}

// conversionRate is successes over total as a percentage, rounded to
// two decimals. Zero when there were no attempts.
func conversionRate(successes, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(successes)/float64(total)*10000) / 100
}
