package analytics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ignite/audience-sync/internal/domain"
)

var exportHeader = []string{"created_at", "event_type", "form_id", "list_id", "email", "metadata"}

// Export streams the raw events for a window as CSV. The header row is
// written even when the window is empty.
func (r *Recorder) Export(ctx context.Context, q Query, w io.Writer) error {
	events, err := r.repo.Events(ctx, q)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range events {
		if err := cw.Write(exportRow(e)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportRow(e domain.AnalyticsEvent) []string {
	metadata := ""
	if len(e.Metadata) > 0 {
		if raw, err := json.Marshal(e.Metadata); err == nil {
			metadata = string(raw)
		}
	}
	return []string{
		e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		e.EventType,
		e.FormID,
		e.ListID,
		e.Email,
		metadata,
	}
}
