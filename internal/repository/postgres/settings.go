package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/audience-sync/internal/domain"
)

// SettingsRepo is the single authoritative store for per-form settings,
// field mappings, and pipeline key/value state (webhook secret and
// registered webhook ids). No fallback locations.
type SettingsRepo struct{ db *sql.DB }

// NewSettingsRepo creates a Postgres-backed settings repository.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// GetFormSettings fetches the typed settings for one form, or nil when
// the form has none (meaning: no destination selected).
func (r *SettingsRepo) GetFormSettings(ctx context.Context, formID string) (*domain.FormSettings, error) {
	s := &domain.FormSettings{}
	var tags pq.StringArray
	err := r.db.QueryRowContext(ctx, `
		SELECT form_id, destination_list_id, batch_enabled, double_opt_in, tags, updated_at
		FROM sync_form_settings
		WHERE form_id = $1
	`, formID).Scan(&s.FormID, &s.DestinationListID, &s.BatchEnabled, &s.DoubleOptIn, &tags, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get form settings: %w", err)
	}
	s.Tags = tags
	return s, nil
}

// SaveFormSettings upserts the settings row for one form.
func (r *SettingsRepo) SaveFormSettings(ctx context.Context, s domain.FormSettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_form_settings (form_id, destination_list_id, batch_enabled, double_opt_in, tags, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (form_id) DO UPDATE SET
			destination_list_id = EXCLUDED.destination_list_id,
			batch_enabled = EXCLUDED.batch_enabled,
			double_opt_in = EXCLUDED.double_opt_in,
			tags = EXCLUDED.tags,
			updated_at = NOW()
	`, s.FormID, s.DestinationListID, s.BatchEnabled, s.DoubleOptIn, pq.StringArray(s.Tags))
	if err != nil {
		return fmt.Errorf("save form settings: %w", err)
	}
	return nil
}

// GetFieldMapping fetches the explicit mapping for one form, or nil when
// the form relies on the heuristic.
func (r *SettingsRepo) GetFieldMapping(ctx context.Context, formID string) (*domain.FieldMapping, error) {
	var entries []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT entries FROM sync_field_mappings WHERE form_id = $1
	`, formID).Scan(&entries)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get field mapping: %w", err)
	}

	m := &domain.FieldMapping{FormID: formID}
	if err := json.Unmarshal(entries, &m.Entries); err != nil {
		return nil, fmt.Errorf("unmarshal field mapping: %w", err)
	}
	return m, nil
}

// SaveFieldMapping upserts the explicit mapping for one form.
func (r *SettingsRepo) SaveFieldMapping(ctx context.Context, m domain.FieldMapping) error {
	entries, err := json.Marshal(m.Entries)
	if err != nil {
		return fmt.Errorf("marshal field mapping: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_field_mappings (form_id, entries, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (form_id) DO UPDATE SET entries = EXCLUDED.entries, updated_at = NOW()
	`, m.FormID, entries)
	if err != nil {
		return fmt.Errorf("save field mapping: %w", err)
	}
	return nil
}

// GetValue fetches one pipeline key/value setting ("" when unset).
func (r *SettingsRepo) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `
		SELECT value FROM sync_settings WHERE key = $1
	`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetValue upserts one pipeline key/value setting.
func (r *SettingsRepo) SetValue(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
