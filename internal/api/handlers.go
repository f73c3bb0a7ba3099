package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/audience-sync/internal/domain"
	"github.com/ignite/audience-sync/internal/mailchimp"
	"github.com/ignite/audience-sync/internal/mapper"
	"github.com/ignite/audience-sync/internal/pipeline"
	"github.com/ignite/audience-sync/internal/pkg/httputil"
)

// SubmissionProcessor is the pipeline entry point.
type SubmissionProcessor interface {
	Process(ctx context.Context, sub domain.Submission) error
}

// SettingsStore is the configuration surface the API exposes.
type SettingsStore interface {
	GetFormSettings(ctx context.Context, formID string) (*domain.FormSettings, error)
	SaveFormSettings(ctx context.Context, s domain.FormSettings) error
	GetFieldMapping(ctx context.Context, formID string) (*domain.FieldMapping, error)
	SaveFieldMapping(ctx context.Context, m domain.FieldMapping) error
}

// ListGateway is the read-only remote surface used for configuration
// UIs: audience enumeration and merge-field discovery.
type ListGateway interface {
	GetLists(ctx context.Context) ([]mailchimp.List, error)
	GetMergeFields(ctx context.Context, listID string) ([]mailchimp.MergeField, error)
}

// QueueInspector exposes queue depth counters.
type QueueInspector interface {
	Stats(ctx context.Context) (domain.QueueStats, error)
}

// Handlers carries the dependencies of all HTTP handlers.
type Handlers struct {
	processor SubmissionProcessor
	settings  SettingsStore
	gateway   ListGateway
	queue     QueueInspector
	analytics AnalyticsReader
	db        *sql.DB
	redis     *redis.Client
	startTime time.Time
}

// NewHandlers wires the handler set. gateway may be nil when no API key
// is configured; list endpoints then answer 409.
func NewHandlers(processor SubmissionProcessor, settings SettingsStore, gateway ListGateway, queue QueueInspector, analytics AnalyticsReader, db *sql.DB, redisClient *redis.Client) *Handlers {
	return &Handlers{
		processor: processor,
		settings:  settings,
		gateway:   gateway,
		queue:     queue,
		analytics: analytics,
		db:        db,
		redis:     redisClient,
		startTime: time.Now(),
	}
}

type submissionRequest struct {
	FormID string         `json:"form_id"`
	Fields []domain.Field `json:"fields"`
}

// HandleSubmission accepts one form submission hand-off and runs it
// through the pipeline synchronously. De-duplication of repeated
// hand-offs is the caller's responsibility.
func (h *Handlers) HandleSubmission(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.FormID == "" {
		httputil.BadRequest(w, "form_id is required")
		return
	}
	if len(req.Fields) == 0 {
		httputil.BadRequest(w, "fields must not be empty")
		return
	}

	err := h.processor.Process(r.Context(), domain.Submission{
		FormID:     req.FormID,
		Fields:     req.Fields,
		ReceivedAt: time.Now().UTC(),
	})
	switch {
	case err == nil:
		httputil.OK(w, map[string]string{"status": "accepted"})
	case errors.Is(err, pipeline.ErrNotConfigured):
		httputil.Error(w, http.StatusConflict, "no API key configured")
	case errors.Is(err, pipeline.ErrNoDestination):
		httputil.Error(w, http.StatusConflict, "form has no destination list")
	case errors.Is(err, mapper.ErrNoIdentity):
		httputil.Error(w, http.StatusUnprocessableEntity, "no identity value found in submission")
	default:
		h.gatewayError(w, err)
	}
}

// gatewayError translates remote API failures. Remote unavailability is
// a 502 from this service's point of view; remote rejections pass the
// upstream detail through as a 400.
func (h *Handlers) gatewayError(w http.ResponseWriter, err error) {
	var apiErr *mailchimp.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case mailchimp.KindClient:
			httputil.Error(w, http.StatusBadRequest, apiErr.Error())
		default:
			httputil.Error(w, http.StatusBadGateway, apiErr.Error())
		}
		return
	}
	httputil.InternalError(w, err)
}

// GetLists enumerates the remote audiences available as destinations.
func (h *Handlers) GetLists(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		httputil.Error(w, http.StatusConflict, "no API key configured")
		return
	}
	lists, err := h.gateway.GetLists(r.Context())
	if err != nil {
		h.gatewayError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"lists": lists})
}

// GetMergeFields enumerates the merge fields of one audience, used to
// populate mapping configuration UIs.
func (h *Handlers) GetMergeFields(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		httputil.Error(w, http.StatusConflict, "no API key configured")
		return
	}
	fields, err := h.gateway.GetMergeFields(r.Context(), chi.URLParam(r, "listID"))
	if err != nil {
		h.gatewayError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"merge_fields": fields})
}

// GetQueueStats reports queue depth per status.
func (h *Handlers) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// GetFormSettings returns the settings for one form, 404 when none.
func (h *Handlers) GetFormSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetFormSettings(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if settings == nil {
		httputil.NotFound(w, "form has no settings")
		return
	}
	httputil.OK(w, settings)
}

// SaveFormSettings upserts the settings for one form.
func (h *Handlers) SaveFormSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.FormSettings
	if !httputil.Decode(w, r, &settings) {
		return
	}
	settings.FormID = chi.URLParam(r, "formID")
	if err := h.settings.SaveFormSettings(r.Context(), settings); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, settings)
}

// GetFieldMapping returns the explicit mapping for one form, 404 when
// the form relies on the heuristic.
func (h *Handlers) GetFieldMapping(w http.ResponseWriter, r *http.Request) {
	mapping, err := h.settings.GetFieldMapping(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if mapping == nil {
		httputil.NotFound(w, "form has no explicit mapping")
		return
	}
	httputil.OK(w, mapping)
}

// SaveFieldMapping upserts the explicit mapping for one form.
func (h *Handlers) SaveFieldMapping(w http.ResponseWriter, r *http.Request) {
	var mapping domain.FieldMapping
	if !httputil.Decode(w, r, &mapping) {
		return
	}
	mapping.FormID = chi.URLParam(r, "formID")
	if len(mapping.Entries) == 0 {
		httputil.BadRequest(w, "entries must not be empty")
		return
	}
	if err := h.settings.SaveFieldMapping(r.Context(), mapping); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, mapping)
}
