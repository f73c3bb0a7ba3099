// Package postgres implements the pipeline's repository interfaces
// against PostgreSQL. Callers depend on the narrow interfaces declared
// in the consuming packages; nothing outside this package speaks SQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/audience-sync/internal/domain"
)

// QueueRepo is the Postgres-backed batch queue.
type QueueRepo struct{ db *sql.DB }

// NewQueueRepo creates a Postgres-backed queue repository.
func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

// Enqueue inserts a new pending item and returns its id.
func (r *QueueRepo) Enqueue(ctx context.Context, formID, listID string, payload domain.MappedAttributes) (uuid.UUID, error) {
	id := uuid.New()
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal queue payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_queue_items
			(id, form_id, destination_list_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, 'pending', 0, NOW())
	`, id, formID, listID, body)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue item: %w", err)
	}
	return id, nil
}

// ClaimPending atomically moves up to limit pending items to processing
// and returns them, oldest first. FOR UPDATE SKIP LOCKED keeps multiple
// flusher instances from claiming the same rows.
func (r *QueueRepo) ClaimPending(ctx context.Context, limit int) ([]domain.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE sync_queue_items
		SET status = 'processing', claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM sync_queue_items
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, form_id, destination_list_id, payload, status, attempts, COALESCE(last_error,''), created_at
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending items: %w", err)
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		var item domain.QueueItem
		var body []byte
		if err := rows.Scan(&item.ID, &item.FormID, &item.DestinationListID, &body,
			&item.Status, &item.Attempts, &item.LastError, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		if err := json.Unmarshal(body, &item.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal queue payload %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkCompleted finalizes a group of successfully submitted items.
func (r *QueueRepo) MarkCompleted(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue_items
		SET status = 'completed', processed_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(uuidStrings(ids)))
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed records a failure for a group of items, incrementing
// attempts atomically in SQL.
func (r *QueueRepo) MarkFailed(ctx context.Context, ids []uuid.UUID, errMsg string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue_items
		SET status = 'failed', attempts = attempts + 1, last_error = $2, processed_at = NOW()
		WHERE id = ANY($1)
	`, pq.Array(uuidStrings(ids)), errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RequeueRetryable moves failed items that still have attempts left back
// to pending so the next cycle picks them up. Items at or past
// maxAttempts stay failed permanently, as do items whose payload has no
// identity: no number of retries gives them an email.
func (r *QueueRepo) RequeueRetryable(ctx context.Context, maxAttempts int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue_items
		SET status = 'pending', processed_at = NULL, claimed_at = NULL
		WHERE status = 'failed' AND attempts < $1 AND last_error <> $2
	`, maxAttempts, domain.QueueErrNoIdentity)
	if err != nil {
		return 0, fmt.Errorf("requeue retryable: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ReleaseStuck returns items claimed longer than age ago to pending.
// A crashed or cancelled flush must never leave items stranded in
// processing, and must never promote them to completed.
func (r *QueueRepo) ReleaseStuck(ctx context.Context, age time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue_items
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(age.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("release stuck items: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PurgeTerminal deletes completed/failed items older than the retention
// window. Batched to avoid long-running deletes on a hot table.
func (r *QueueRepo) PurgeTerminal(ctx context.Context, olderThan time.Duration, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_queue_items
		WHERE id IN (
			SELECT id FROM sync_queue_items
			WHERE status IN ('completed', 'failed')
			  AND processed_at < NOW() - $1::interval
			LIMIT $2
		)
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())), batchSize)
	if err != nil {
		return 0, fmt.Errorf("purge terminal items: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats returns per-status item counts.
func (r *QueueRepo) Stats(ctx context.Context) (domain.QueueStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM sync_queue_items GROUP BY status
	`)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats domain.QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return domain.QueueStats{}, err
		}
		switch domain.QueueStatus(status) {
		case domain.QueuePending:
			stats.Pending = count
		case domain.QueueProcessing:
			stats.Processing = count
		case domain.QueueCompleted:
			stats.Completed = count
		case domain.QueueFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
