package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignite/audience-sync/internal/domain"
	"github.com/ignite/audience-sync/internal/mailchimp"
	"github.com/ignite/audience-sync/internal/mapper"
	"github.com/ignite/audience-sync/internal/pkg/logger"
)

var (
	// ErrNotConfigured means no API credentials are available, so no
	// submission can be dispatched anywhere.
	ErrNotConfigured = errors.New("pipeline: no API key configured")

	// ErrNoDestination means the form has no destination list selected.
	ErrNoDestination = errors.New("pipeline: form has no destination list")
)

// SettingsStore provides per-form configuration.
type SettingsStore interface {
	GetFormSettings(ctx context.Context, formID string) (*domain.FormSettings, error)
	GetFieldMapping(ctx context.Context, formID string) (*domain.FieldMapping, error)
}

// Queue accepts mapped payloads for deferred batch dispatch.
type Queue interface {
	Enqueue(ctx context.Context, formID, listID string, payload domain.MappedAttributes) (uuid.UUID, error)
}

// Mirror records the local view of remote subscriber state.
type Mirror interface {
	Upsert(ctx context.Context, m domain.SubscriberMirror) error
}

// Gateway is the remote API surface the processor dispatches through.
type Gateway interface {
	UpsertMember(ctx context.Context, listID string, member mailchimp.MemberRequest) (*mailchimp.Member, error)
}

// Recorder accepts analytics events.
type Recorder interface {
	Record(ctx context.Context, e domain.AnalyticsEvent) error
}

// Processor turns validated submissions into audience changes, either
// immediately or through the batch queue depending on form settings.
type Processor struct {
	settings SettingsStore
	queue    Queue
	mirror   Mirror
	gateway  Gateway
	recorder Recorder
}

// NewProcessor wires a processor. gateway may be nil when no API key is
// configured; every Process call then fails with ErrNotConfigured.
func NewProcessor(settings SettingsStore, queue Queue, mirror Mirror, gateway Gateway, recorder Recorder) *Processor {
	return &Processor{settings: settings, queue: queue, mirror: mirror, gateway: gateway, recorder: recorder}
}

// Process maps one submission and dispatches it. Exactly one analytics
// event is recorded per submission: a subscription on success or
// enqueue, a subscription_error on dispatch failure or on a terminal
// error before dispatch (ErrNotConfigured, ErrNoDestination, no
// identity). Settings-store failures are surfaced without an event.
func (p *Processor) Process(ctx context.Context, sub domain.Submission) error {
	if p.gateway == nil {
		p.record(ctx, domain.EventSubscriptionError, sub.FormID, "", "", "", ErrNotConfigured.Error())
		return ErrNotConfigured
	}

	settings, err := p.settings.GetFormSettings(ctx, sub.FormID)
	if err != nil {
		return err
	}
	if settings == nil || settings.DestinationListID == "" {
		p.record(ctx, domain.EventSubscriptionError, sub.FormID, "", "", "", ErrNoDestination.Error())
		return ErrNoDestination
	}

	mapping, err := p.settings.GetFieldMapping(ctx, sub.FormID)
	if err != nil {
		return err
	}

	attrs, err := mapper.Map(sub, mapping)
	if err != nil {
		p.record(ctx, domain.EventSubscriptionError, sub.FormID, settings.DestinationListID, "", "", err.Error())
		return err
	}

	if settings.BatchEnabled {
		if _, err := p.queue.Enqueue(ctx, sub.FormID, settings.DestinationListID, attrs); err == nil {
			p.record(ctx, domain.EventSubscription, sub.FormID, settings.DestinationListID, attrs.Email, domain.MethodBatch, "")
			return nil
		} else {
			// Deferred dispatch is an optimization. When the queue is
			// down, the submission still has to reach the audience.
			logger.Warn("enqueue failed, falling back to immediate dispatch",
				"form_id", sub.FormID, "error", err.Error())
		}
	}

	return p.dispatch(ctx, sub.FormID, settings, attrs)
}

func (p *Processor) dispatch(ctx context.Context, formID string, settings *domain.FormSettings, attrs domain.MappedAttributes) error {
	member := MemberRequest(settings, attrs)
	_, err := p.gateway.UpsertMember(ctx, settings.DestinationListID, member)
	if err != nil && !mailchimp.IsMemberExists(err) {
		p.record(ctx, domain.EventSubscriptionError, formID, settings.DestinationListID, attrs.Email, domain.MethodImmediate, err.Error())
		return err
	}

	p.mirrorUpsert(ctx, settings, attrs, member.StatusIfNew)
	p.record(ctx, domain.EventSubscription, formID, settings.DestinationListID, attrs.Email, domain.MethodImmediate, "")
	return nil
}

// MemberRequest builds the upsert payload for one mapped submission.
// Double opt-in forms create members as pending so the confirmation
// email goes out; existing members keep their status either way.
func MemberRequest(settings *domain.FormSettings, attrs domain.MappedAttributes) mailchimp.MemberRequest {
	statusIfNew := mailchimp.StatusSubscribed
	if settings.DoubleOptIn {
		statusIfNew = mailchimp.StatusPending
	}
	return mailchimp.MemberRequest{
		EmailAddress: attrs.Email,
		StatusIfNew:  statusIfNew,
		MergeFields:  attrs.MergeFields,
		Tags:         settings.Tags,
	}
}

// mirrorUpsert keeps the local mirror roughly current without waiting
// for the webhook round trip. Failures are logged only; the webhook
// stream is the authoritative corrector.
func (p *Processor) mirrorUpsert(ctx context.Context, settings *domain.FormSettings, attrs domain.MappedAttributes, statusIfNew string) {
	status := domain.MirrorSubscribed
	if statusIfNew == mailchimp.StatusPending {
		status = domain.MirrorPending
	}
	err := p.mirror.Upsert(ctx, domain.SubscriberMirror{
		Email:       attrs.Email,
		ListID:      settings.DestinationListID,
		Status:      status,
		MergeFields: attrs.MergeFields,
	})
	if err != nil {
		logger.Warn("mirror upsert failed",
			"list_id", settings.DestinationListID, "error", err.Error())
	}
}

func (p *Processor) record(ctx context.Context, eventType, formID, listID, email, method, errMsg string) {
	metadata := map[string]string{}
	if method != "" {
		metadata["method"] = method
	}
	if errMsg != "" {
		metadata["error"] = errMsg
	}
	err := p.recorder.Record(ctx, domain.AnalyticsEvent{
		EventType: eventType,
		FormID:    formID,
		ListID:    listID,
		Email:     email,
		Metadata:  metadata,
	})
	if err != nil {
		logger.Warn("analytics record failed", "form_id", formID, "error", err.Error())
	}
}
