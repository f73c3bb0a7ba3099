package mailchimp

// List is one Mailchimp audience.
type List struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
}

type listsResponse struct {
	Lists []List `json:"lists"`
}

// MergeField is one named attribute slot on a list's subscribers.
type MergeField struct {
	Tag      string `json:"tag"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type mergeFieldsResponse struct {
	MergeFields []MergeField `json:"merge_fields"`
}

// Member statuses accepted by the API.
const (
	StatusSubscribed = "subscribed"
	StatusPending    = "pending"
)

// MemberRequest is the upsert payload for one subscriber.
type MemberRequest struct {
	EmailAddress string            `json:"email_address"`
	StatusIfNew  string            `json:"status_if_new,omitempty"`
	Status       string            `json:"status,omitempty"`
	MergeFields  map[string]string `json:"merge_fields,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}

// Member is the subscriber record returned by the API.
type Member struct {
	ID           string            `json:"id"`
	EmailAddress string            `json:"email_address"`
	Status       string            `json:"status"`
	MergeFields  map[string]string `json:"merge_fields"`
}

// Operation is one item within a bulk /batches submission.
type Operation struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   string `json:"body"`
}

// BatchHandle is the acceptance handle returned by the asynchronous
// batch endpoint. Per-item results are never available synchronously;
// outcome reconciliation happens via webhooks.
type BatchHandle struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Webhook is a registered webhook endpoint on a list.
type Webhook struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// WebhookRequest registers a webhook endpoint for the events the
// pipeline consumes.
type WebhookRequest struct {
	URL     string          `json:"url"`
	Events  map[string]bool `json:"events"`
	Sources map[string]bool `json:"sources"`
}
