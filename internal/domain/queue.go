package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueueStatus enumerates the lifecycle states of a queued dispatch item.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// QueueErrNoIdentity is the last_error recorded for items whose payload
// carries no email. The failure is permanent; retrying cannot fix it.
const QueueErrNoIdentity = "no identity"

// QueueItem is one deferred dispatch waiting for the batch flusher.
// DestinationListID is immutable once created; only the flusher mutates
// status/attempts after enqueue.
type QueueItem struct {
	ID                uuid.UUID        `json:"id" db:"id"`
	FormID            string           `json:"form_id" db:"form_id"`
	DestinationListID string           `json:"destination_list_id" db:"destination_list_id"`
	Payload           MappedAttributes `json:"payload" db:"payload"`
	Status            QueueStatus      `json:"status" db:"status"`
	Attempts          int              `json:"attempts" db:"attempts"`
	LastError         string           `json:"last_error,omitempty" db:"last_error"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
}

// Terminal reports whether the item has reached a final state.
func (q QueueItem) Terminal() bool {
	return q.Status == QueueCompleted || q.Status == QueueFailed
}

// QueueStats holds per-status counts for the ops surface.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
