package domain

import "time"

// MirrorStatus enumerates the subscriber states reported by Mailchimp.
type MirrorStatus string

const (
	MirrorSubscribed   MirrorStatus = "subscribed"
	MirrorUnsubscribed MirrorStatus = "unsubscribed"
	MirrorCleaned      MirrorStatus = "cleaned"
	MirrorPending      MirrorStatus = "pending"
)

// SubscriberMirror is the local read model of one remote subscriber,
// keyed by (email, list_id) and refreshed by webhook events. Later events
// overwrite earlier state in delivery order (last writer wins).
type SubscriberMirror struct {
	Email       string            `json:"email" db:"email"`
	ListID      string            `json:"list_id" db:"list_id"`
	Status      MirrorStatus      `json:"status" db:"status"`
	Reason      string            `json:"reason,omitempty" db:"reason"`
	MergeFields map[string]string `json:"merge_fields,omitempty" db:"merge_fields"`
	LastUpdated time.Time         `json:"last_updated" db:"last_updated"`
}

// WebhookType enumerates the inbound Mailchimp webhook event types the
// pipeline understands. Unknown types are logged and ignored.
type WebhookType string

const (
	WebhookSubscribe   WebhookType = "subscribe"
	WebhookUnsubscribe WebhookType = "unsubscribe"
	WebhookProfile     WebhookType = "profile"
	WebhookCleaned     WebhookType = "cleaned"
	WebhookUpEmail     WebhookType = "upemail"
	WebhookCampaign    WebhookType = "campaign"
)

// Known reports whether t is a webhook type this pipeline processes.
func (t WebhookType) Known() bool {
	switch t {
	case WebhookSubscribe, WebhookUnsubscribe, WebhookProfile,
		WebhookCleaned, WebhookUpEmail, WebhookCampaign:
		return true
	}
	return false
}

// WebhookEvent is one parsed inbound event. Transient; not persisted
// beyond processing except through the mirror and analytics stores.
type WebhookEvent struct {
	Type       WebhookType       `json:"type"`
	Email      string            `json:"email"`
	NewEmail   string            `json:"new_email,omitempty"` // upemail only
	ListID     string            `json:"list_id"`
	Reason     string            `json:"reason,omitempty"`
	CampaignID string            `json:"campaign_id,omitempty"` // campaign only
	MergeData  map[string]string `json:"merge_data,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// CampaignActivity is one append-only record of campaign-related webhook
// traffic. It is not part of the mirror.
type CampaignActivity struct {
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	ListID     string    `json:"list_id" db:"list_id"`
	Subject    string    `json:"subject,omitempty" db:"subject"`
	Status     string    `json:"status,omitempty" db:"status"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}
