package webhook

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/ignite/audience-sync/internal/domain"
	"github.com/ignite/audience-sync/internal/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// MirrorStore is the subscriber state surface the handler mutates.
type MirrorStore interface {
	Upsert(ctx context.Context, m domain.SubscriberMirror) error
	UpdateMergeFields(ctx context.Context, email, listID string, fields map[string]string) error
	Rekey(ctx context.Context, oldEmail, newEmail, listID string) error
	RecordCampaignActivity(ctx context.Context, a domain.CampaignActivity) error
}

// Recorder accepts analytics events.
type Recorder interface {
	Record(ctx context.Context, e domain.AnalyticsEvent) error
}

// Handler verifies and routes inbound webhook deliveries. Every routed
// event mutates the mirror and emits one analytics event; processing
// errors are logged but never surfaced to the sender, because a non-200
// triggers redelivery storms.
type Handler struct {
	secret   string
	mirror   MirrorStore
	recorder Recorder
}

// NewHandler creates a webhook handler. An empty secret disables
// signature checking; every delivery is then accepted unverified.
func NewHandler(secret string, mirror MirrorStore, recorder Recorder) *Handler {
	if secret == "" {
		logger.Warn("webhook signature checking disabled, no secret configured")
	}
	return &Handler{secret: secret, mirror: mirror, recorder: recorder}
}

type payload struct {
	Type string      `json:"type"`
	Data payloadData `json:"data"`
}

type payloadData struct {
	Email      string            `json:"email"`
	OldEmail   string            `json:"old_email"`
	NewEmail   string            `json:"new_email"`
	ListID     string            `json:"list_id"`
	Reason     string            `json:"reason"`
	Merges     map[string]string `json:"merges"`
	CampaignID string            `json:"id"`
	Subject    string            `json:"subject"`
	Status     string            `json:"status"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.verify(body, r.Header.Get(SignatureHeader)) {
		logger.Warn("webhook rejected, invalid signature", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// An unparseable body is acknowledged like any other bad delivery;
	// rejecting it would only trigger redelivery of the same garbage.
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		logger.Warn("webhook body unparseable", "error", err.Error())
		w.WriteHeader(http.StatusOK)
		return
	}

	h.route(r.Context(), p)
	w.WriteHeader(http.StatusOK)
}

// verify checks the hex HMAC-SHA256 of body against the header value in
// constant time. Always true when no secret is configured.
func (h *Handler) verify(body []byte, signature string) bool {
	if h.secret == "" {
		return true
	}
	return hmac.Equal([]byte(Sign(h.secret, body)), []byte(signature))
}

// route applies one verified event. Unknown types are ignored, store
// failures are logged; both outcomes still acknowledge the delivery.
func (h *Handler) route(ctx context.Context, p payload) {
	event := domain.WebhookEvent{
		Type:       domain.WebhookType(p.Type),
		Email:      p.Data.Email,
		NewEmail:   p.Data.NewEmail,
		ListID:     p.Data.ListID,
		Reason:     p.Data.Reason,
		CampaignID: p.Data.CampaignID,
		MergeData:  p.Data.Merges,
		ReceivedAt: time.Now().UTC(),
	}
	if p.Type == string(domain.WebhookUpEmail) && p.Data.OldEmail != "" {
		event.Email = p.Data.OldEmail
	}

	if !event.Type.Known() {
		logger.Info("webhook type ignored", "type", p.Type)
		return
	}

	if err := h.apply(ctx, event, p.Data); err != nil {
		logger.Error("webhook event processing failed",
			"type", p.Type, "list_id", event.ListID, "error", err.Error())
		return
	}

	err := h.recorder.Record(ctx, domain.AnalyticsEvent{
		EventType: string(event.Type),
		ListID:    event.ListID,
		Email:     event.Email,
		Metadata:  map[string]string{"reason": event.Reason},
	})
	if err != nil {
		logger.Warn("webhook analytics record failed", "type", p.Type, "error", err.Error())
	}
}

func (h *Handler) apply(ctx context.Context, event domain.WebhookEvent, data payloadData) error {
	switch event.Type {
	case domain.WebhookSubscribe:
		return h.mirror.Upsert(ctx, domain.SubscriberMirror{
			Email:       event.Email,
			ListID:      event.ListID,
			Status:      domain.MirrorSubscribed,
			MergeFields: event.MergeData,
		})
	case domain.WebhookUnsubscribe:
		return h.mirror.Upsert(ctx, domain.SubscriberMirror{
			Email:  event.Email,
			ListID: event.ListID,
			Status: domain.MirrorUnsubscribed,
			Reason: event.Reason,
		})
	case domain.WebhookProfile:
		return h.mirror.UpdateMergeFields(ctx, event.Email, event.ListID, event.MergeData)
	case domain.WebhookCleaned:
		return h.mirror.Upsert(ctx, domain.SubscriberMirror{
			Email:  event.Email,
			ListID: event.ListID,
			Status: domain.MirrorCleaned,
			Reason: event.Reason,
		})
	case domain.WebhookUpEmail:
		return h.mirror.Rekey(ctx, event.Email, event.NewEmail, event.ListID)
	case domain.WebhookCampaign:
		return h.mirror.RecordCampaignActivity(ctx, domain.CampaignActivity{
			CampaignID: event.CampaignID,
			ListID:     event.ListID,
			Subject:    data.Subject,
			Status:     data.Status,
			ReceivedAt: event.ReceivedAt,
		})
	}
	return nil
}
