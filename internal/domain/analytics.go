package domain

import (
	"time"

	"github.com/google/uuid"
)

// Analytics event types emitted by the pipeline. Webhook events are
// recorded under their own type names (subscribe, unsubscribe, ...).
const (
	EventSubscription      = "subscription"
	EventSubscriptionError = "subscription_error"
)

// Dispatch methods recorded in analytics metadata.
const (
	MethodImmediate = "immediate"
	MethodBatch     = "batch"
)

// AnalyticsEvent is one append-only pipeline event. Events are never
// mutated; old ones are pruned by retention policy.
type AnalyticsEvent struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	EventType string            `json:"event_type" db:"event_type"`
	FormID    string            `json:"form_id,omitempty" db:"form_id"`
	ListID    string            `json:"list_id,omitempty" db:"list_id"`
	Email     string            `json:"email,omitempty" db:"email"`
	Metadata  map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// Overview is the aggregated pipeline report for one date range.
type Overview struct {
	Total          int     `json:"total"`
	Successes      int     `json:"successes"`
	Failures       int     `json:"failures"`
	ConversionRate float64 `json:"conversion_rate"`
}

// ChartPoint is one time bucket in a chart series.
type ChartPoint struct {
	Bucket time.Time `json:"bucket"`
	Count  int       `json:"count"`
}
