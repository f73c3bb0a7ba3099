package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/audience-sync/internal/analytics"
	"github.com/ignite/audience-sync/internal/domain"
)

// AnalyticsRepo is the Postgres-backed append-only event store.
type AnalyticsRepo struct{ db *sql.DB }

// NewAnalyticsRepo creates a Postgres-backed analytics repository.
func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo { return &AnalyticsRepo{db: db} }

// Append inserts one event. Events are never updated.
func (r *AnalyticsRepo) Append(ctx context.Context, e domain.AnalyticsEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_analytics_events (id, event_type, form_id, list_id, email, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, e.ID, e.EventType, e.FormID, e.ListID, normalizeEmail(e.Email), nullBytes(meta))
	if err != nil {
		return fmt.Errorf("append analytics event: %w", err)
	}
	return nil
}

// Overview aggregates submission outcomes for a query window.
func (r *AnalyticsRepo) Overview(ctx context.Context, q analytics.Query) (domain.Overview, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE event_type IN ($1, $2)),
			COUNT(*) FILTER (WHERE event_type = $1),
			COUNT(*) FILTER (WHERE event_type = $2)
		FROM sync_analytics_events
		WHERE created_at >= $3 AND created_at < $4`
	args := []interface{}{domain.EventSubscription, domain.EventSubscriptionError, q.From, q.To}
	query, args = appendFilters(query, args, q)

	var o domain.Overview
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&o.Total, &o.Successes, &o.Failures)
	if err != nil {
		return domain.Overview{}, fmt.Errorf("overview query: %w", err)
	}
	return o, nil
}

// Series buckets events of one type over the window. Hourly buckets for
// windows of a day or less, daily otherwise.
func (r *AnalyticsRepo) Series(ctx context.Context, eventType string, q analytics.Query) ([]domain.ChartPoint, error) {
	granularity := "day"
	if q.To.Sub(q.From) <= 24*time.Hour {
		granularity = "hour"
	}

	query := fmt.Sprintf(`
		SELECT DATE_TRUNC('%s', created_at) AS bucket, COUNT(*)
		FROM sync_analytics_events
		WHERE event_type = $1 AND created_at >= $2 AND created_at < $3`, granularity)
	args := []interface{}{eventType, q.From, q.To}
	query, args = appendFilters(query, args, q)
	query += " GROUP BY bucket ORDER BY bucket"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("series query: %w", err)
	}
	defer rows.Close()

	var points []domain.ChartPoint
	for rows.Next() {
		var p domain.ChartPoint
		if err := rows.Scan(&p.Bucket, &p.Count); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Events returns raw events in the window, oldest first, for export.
func (r *AnalyticsRepo) Events(ctx context.Context, q analytics.Query) ([]domain.AnalyticsEvent, error) {
	query := `
		SELECT id, event_type, COALESCE(form_id,''), COALESCE(list_id,''), COALESCE(email,''), metadata, created_at
		FROM sync_analytics_events
		WHERE created_at >= $1 AND created_at < $2`
	args := []interface{}{q.From, q.To}
	query, args = appendFilters(query, args, q)
	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("events query: %w", err)
	}
	defer rows.Close()

	var events []domain.AnalyticsEvent
	for rows.Next() {
		var e domain.AnalyticsEvent
		var meta []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.FormID, &e.ListID, &e.Email, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal event metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes events older than the retention window, batched.
func (r *AnalyticsRepo) Prune(ctx context.Context, olderThan time.Duration, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_analytics_events
		WHERE id IN (
			SELECT id FROM sync_analytics_events
			WHERE created_at < NOW() - $1::interval
			LIMIT $2
		)
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())), batchSize)
	if err != nil {
		return 0, fmt.Errorf("prune analytics events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// appendFilters adds the optional form/list filters shared by all read
// queries, continuing the positional argument numbering.
func appendFilters(query string, args []interface{}, q analytics.Query) (string, []interface{}) {
	if q.FormID != "" {
		args = append(args, q.FormID)
		query += fmt.Sprintf(" AND form_id = $%d", len(args))
	}
	if q.ListID != "" {
		args = append(args, q.ListID)
		query += fmt.Sprintf(" AND list_id = $%d", len(args))
	}
	return query, args
}

var _ analytics.Repository = (*AnalyticsRepo)(nil)
