package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/ignite/audience-sync/internal/analytics"
	"github.com/ignite/audience-sync/internal/domain"
	"github.com/ignite/audience-sync/internal/pkg/httputil"
)

// AnalyticsReader is the reporting surface of the analytics recorder.
type AnalyticsReader interface {
	Overview(ctx context.Context, q analytics.Query) (domain.Overview, error)
	Chart(ctx context.Context, eventType string, q analytics.Query) ([]domain.ChartPoint, error)
	Export(ctx context.Context, q analytics.Query, w io.Writer) error
}

// defaultRangeDays is the reporting window when from/to are omitted.
const defaultRangeDays = 30

// analyticsQuery parses from/to/form_id/list_id query parameters.
// Dates accept RFC 3339 or plain YYYY-MM-DD; "to" is exclusive.
func analyticsQuery(r *http.Request) (analytics.Query, error) {
	now := time.Now().UTC()
	q := analytics.Query{
		From:   now.AddDate(0, 0, -defaultRangeDays),
		To:     now,
		FormID: r.URL.Query().Get("form_id"),
		ListID: r.URL.Query().Get("list_id"),
	}

	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			return q, err
		}
		q.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			return q, err
		}
		q.To = to
	}
	return q, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// GetAnalyticsOverview reports aggregate pipeline outcomes.
func (h *Handlers) GetAnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	q, err := analyticsQuery(r)
	if err != nil {
		httputil.BadRequest(w, "invalid date: "+err.Error())
		return
	}
	overview, err := h.analytics.Overview(r.Context(), q)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, overview)
}

// GetAnalyticsChart reports a time-bucketed series for one event type
// (default: successful subscriptions).
func (h *Handlers) GetAnalyticsChart(w http.ResponseWriter, r *http.Request) {
	q, err := analyticsQuery(r)
	if err != nil {
		httputil.BadRequest(w, "invalid date: "+err.Error())
		return
	}
	eventType := r.URL.Query().Get("type")
	if eventType == "" {
		eventType = domain.EventSubscription
	}
	points, err := h.analytics.Chart(r.Context(), eventType, q)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"event_type": eventType, "points": points})
}

// ExportAnalytics streams the raw events for a window as a CSV download.
func (h *Handlers) ExportAnalytics(w http.ResponseWriter, r *http.Request) {
	q, err := analyticsQuery(r)
	if err != nil {
		httputil.BadRequest(w, "invalid date: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="analytics-export.csv"`)
	if err := h.analytics.Export(r.Context(), q, w); err != nil {
		// Headers are already out; all we can do is log through the
		// recorder's own error path and cut the stream short.
		return
	}
}
