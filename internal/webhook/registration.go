package webhook

import (
	"context"
	"fmt"

	"github.com/ignite/audience-sync/internal/mailchimp"
	"github.com/ignite/audience-sync/internal/pkg/logger"
)

// Registrar manages the outbound registration of our webhook endpoint
// on a destination list.
type Registrar struct {
	gateway   GatewayAdmin
	store     SecretStore
	publicURL string
}

// GatewayAdmin is the webhook management surface of the remote API.
type GatewayAdmin interface {
	CreateWebhook(ctx context.Context, listID string, hook mailchimp.WebhookRequest) (*mailchimp.Webhook, error)
	DeleteWebhook(ctx context.Context, listID, webhookID string) error
}

// NewRegistrar wires a registrar. publicURL is the externally reachable
// webhook endpoint; an empty value disables registration.
func NewRegistrar(gateway GatewayAdmin, store SecretStore, publicURL string) *Registrar {
	return &Registrar{gateway: gateway, store: store, publicURL: publicURL}
}

func listWebhookKey(listID string) string {
	return webhookIDKey + ":" + listID
}

// Ensure registers the endpoint on a list if not already registered.
// Idempotent: a stored webhook id for the list short-circuits.
func (r *Registrar) Ensure(ctx context.Context, listID string) error {
	if r.publicURL == "" {
		logger.Warn("webhook registration skipped, no public URL configured", "list_id", listID)
		return nil
	}

	existing, err := r.store.GetValue(ctx, listWebhookKey(listID))
	if err != nil {
		return fmt.Errorf("load webhook id: %w", err)
	}
	if existing != "" {
		return nil
	}

	hook, err := r.gateway.CreateWebhook(ctx, listID, mailchimp.WebhookRequest{
		URL: r.publicURL,
		Events: map[string]bool{
			"subscribe":   true,
			"unsubscribe": true,
			"profile":     true,
			"cleaned":     true,
			"upemail":     true,
			"campaign":    true,
		},
		// Skip API-sourced events: our own upserts would echo back as
		// webhook traffic otherwise.
		Sources: map[string]bool{"user": true, "admin": true, "api": false},
	})
	if err != nil {
		return fmt.Errorf("register webhook on list %s: %w", listID, err)
	}

	if err := r.store.SetValue(ctx, listWebhookKey(listID), hook.ID); err != nil {
		return fmt.Errorf("persist webhook id: %w", err)
	}
	logger.Info("webhook registered", "list_id", listID, "webhook_id", hook.ID)
	return nil
}

// Remove deregisters the endpoint from a list and forgets the stored id.
func (r *Registrar) Remove(ctx context.Context, listID string) error {
	id, err := r.store.GetValue(ctx, listWebhookKey(listID))
	if err != nil {
		return fmt.Errorf("load webhook id: %w", err)
	}
	if id == "" {
		return nil
	}
	if err := r.gateway.DeleteWebhook(ctx, listID, id); err != nil {
		return fmt.Errorf("deregister webhook on list %s: %w", listID, err)
	}
	return r.store.SetValue(ctx, listWebhookKey(listID), "")
}
