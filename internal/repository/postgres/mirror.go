package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/audience-sync/internal/domain"
)

// MirrorRepo is the Postgres-backed subscriber mirror store.
type MirrorRepo struct{ db *sql.DB }

// NewMirrorRepo creates a Postgres-backed mirror repository.
func NewMirrorRepo(db *sql.DB) *MirrorRepo { return &MirrorRepo{db: db} }

// Upsert writes one mirror row keyed by (email, list_id). The ON
// CONFLICT update makes concurrent deliveries for the same key serialize
// on the row, with the last writer winning.
func (r *MirrorRepo) Upsert(ctx context.Context, m domain.SubscriberMirror) error {
	var merge []byte
	if len(m.MergeFields) > 0 {
		var err error
		merge, err = json.Marshal(m.MergeFields)
		if err != nil {
			return fmt.Errorf("marshal merge fields: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_subscriber_mirror (email, list_id, status, reason, merge_fields, last_updated)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (email, list_id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			merge_fields = COALESCE(EXCLUDED.merge_fields, sync_subscriber_mirror.merge_fields),
			last_updated = NOW()
	`, normalizeEmail(m.Email), m.ListID, m.Status, m.Reason, nullBytes(merge))
	if err != nil {
		return fmt.Errorf("upsert mirror row: %w", err)
	}
	return nil
}

// UpdateMergeFields replaces the stored merge fields without touching
// the subscription status (profile webhook). Creates the row if the
// profile event arrives before any subscribe event.
func (r *MirrorRepo) UpdateMergeFields(ctx context.Context, email, listID string, fields map[string]string) error {
	merge, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal merge fields: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_subscriber_mirror (email, list_id, status, merge_fields, last_updated)
		VALUES ($1, $2, 'subscribed', $3, NOW())
		ON CONFLICT (email, list_id) DO UPDATE SET
			merge_fields = EXCLUDED.merge_fields,
			last_updated = NOW()
	`, normalizeEmail(email), listID, merge)
	if err != nil {
		return fmt.Errorf("update merge fields: %w", err)
	}
	return nil
}

// Rekey moves a mirror row from oldEmail to newEmail for one list
// (upemail webhook). A pre-existing row under the new address is
// replaced: the rename is the fresher fact.
func (r *MirrorRepo) Rekey(ctx context.Context, oldEmail, newEmail, listID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rekey: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM sync_subscriber_mirror WHERE email = $1 AND list_id = $2
	`, normalizeEmail(newEmail), listID); err != nil {
		return fmt.Errorf("rekey delete: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sync_subscriber_mirror
		SET email = $1, last_updated = NOW()
		WHERE email = $2 AND list_id = $3
	`, normalizeEmail(newEmail), normalizeEmail(oldEmail), listID)
	if err != nil {
		return fmt.Errorf("rekey update: %w", err)
	}

	// No row under the old address: record the new one so the mirror
	// still converges.
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_subscriber_mirror (email, list_id, status, last_updated)
			VALUES ($1, $2, 'subscribed', NOW())
			ON CONFLICT (email, list_id) DO UPDATE SET last_updated = NOW()
		`, normalizeEmail(newEmail), listID); err != nil {
			return fmt.Errorf("rekey insert: %w", err)
		}
	}

	return tx.Commit()
}

// Get fetches one mirror row, or nil when unknown.
func (r *MirrorRepo) Get(ctx context.Context, email, listID string) (*domain.SubscriberMirror, error) {
	m := &domain.SubscriberMirror{}
	var merge []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT email, list_id, status, COALESCE(reason,''), merge_fields, last_updated
		FROM sync_subscriber_mirror
		WHERE email = $1 AND list_id = $2
	`, normalizeEmail(email), listID).Scan(&m.Email, &m.ListID, &m.Status, &m.Reason, &merge, &m.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mirror row: %w", err)
	}
	if len(merge) > 0 {
		if err := json.Unmarshal(merge, &m.MergeFields); err != nil {
			return nil, fmt.Errorf("unmarshal merge fields: %w", err)
		}
	}
	return m, nil
}

// RecordCampaignActivity appends one campaign webhook record.
func (r *MirrorRepo) RecordCampaignActivity(ctx context.Context, a domain.CampaignActivity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_campaign_activity (campaign_id, list_id, subject, status, received_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, a.CampaignID, a.ListID, a.Subject, a.Status)
	if err != nil {
		return fmt.Errorf("record campaign activity: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
