package worker

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/audience-sync/internal/config"
	"github.com/ignite/audience-sync/internal/domain"
	"github.com/ignite/audience-sync/internal/mailchimp"
	"github.com/ignite/audience-sync/internal/pkg/distlock"
)

// =============================================================================
// BATCH FLUSHER — Drains Pending Queue Items Into Bulk API Submissions
// =============================================================================
// Submissions enqueued for deferred dispatch sit in sync_queue_items as
// 'pending'. Each flush cycle claims up to batch_size of them, groups the
// claims by destination list, and submits one bulk operation list per
// group. The remote batch endpoint is asynchronous: it returns an
// acceptance handle, never per-item results, so a group is 'completed'
// the moment the batch is accepted and per-member outcomes arrive later
// through the webhook stream.
//
// Overlapping cycles are prevented with a distributed lock, so multiple
// flusher instances can run against the same database. Items stuck in
// 'processing' after a crash are released back to 'pending' at the start
// of each cycle.

const (
	// flusherLockTTL bounds a single flush cycle. A crashed holder's lock
	// expires and the next instance takes over.
	flusherLockTTL = 4 * time.Minute

	// stuckClaimAge is how long an item may stay 'processing' before it
	// is presumed orphaned by a crash.
	stuckClaimAge = 10 * time.Minute
)

// QueueStore is the queue surface the flusher drives.
type QueueStore interface {
	ClaimPending(ctx context.Context, limit int) ([]domain.QueueItem, error)
	MarkCompleted(ctx context.Context, ids []uuid.UUID) error
	MarkFailed(ctx context.Context, ids []uuid.UUID, errMsg string) error
	RequeueRetryable(ctx context.Context, maxAttempts int) (int64, error)
	ReleaseStuck(ctx context.Context, age time.Duration) (int64, error)
	PurgeTerminal(ctx context.Context, olderThan time.Duration, batchSize int) (int64, error)
}

// BatchGateway is the bulk submission surface of the remote API.
type BatchGateway interface {
	SubmitBatch(ctx context.Context, operations []mailchimp.Operation) (*mailchimp.BatchHandle, error)
}

// FormSettingsSource resolves per-form dispatch options at flush time.
type FormSettingsSource interface {
	GetFormSettings(ctx context.Context, formID string) (*domain.FormSettings, error)
}

// Flusher periodically drains the batch queue.
type Flusher struct {
	queue    QueueStore
	gateway  BatchGateway
	settings FormSettingsSource
	redis    *redis.Client
	db       *sql.DB
	cfg      config.FlusherConfig
}

// NewFlusher creates a flusher. redisClient may be nil; the lock then
// falls back to a Postgres advisory lock.
func NewFlusher(queue QueueStore, gateway BatchGateway, settings FormSettingsSource, redisClient *redis.Client, db *sql.DB, cfg config.FlusherConfig) *Flusher {
	return &Flusher{
		queue:    queue,
		gateway:  gateway,
		settings: settings,
		redis:    redisClient,
		db:       db,
		cfg:      cfg,
	}
}

// Start begins the flush loop. It blocks until ctx is cancelled.
func (f *Flusher) Start(ctx context.Context) {
	log.Printf("[BatchFlusher] Starting (interval=%s, batch_size=%d, max_attempts=%d)",
		f.cfg.Interval(), f.cfg.BatchSize, f.cfg.MaxAttempts)

	// Run once immediately on start
	f.runCycle(ctx)

	ticker := time.NewTicker(f.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[BatchFlusher] Stopping")
			return
		case <-ticker.C:
			f.runCycle(ctx)
		}
	}
}

// runCycle performs one single-flight flush cycle.
func (f *Flusher) runCycle(ctx context.Context) {
	lock := distlock.NewLock(f.redis, f.db, "flusher:cycle", flusherLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[BatchFlusher] Error acquiring cycle lock: %v", err)
		return
	}
	if !acquired {
		log.Println("[BatchFlusher] Cycle already running on another instance, skipping")
		return
	}
	defer lock.Release(ctx)

	start := time.Now()

	if released, err := f.queue.ReleaseStuck(ctx, stuckClaimAge); err != nil {
		log.Printf("[BatchFlusher] Error releasing stuck items: %v", err)
	} else if released > 0 {
		log.Printf("[BatchFlusher] Released %d stuck items back to pending", released)
	}

	items, err := f.queue.ClaimPending(ctx, f.cfg.BatchSize)
	if err != nil {
		log.Printf("[BatchFlusher] Error claiming pending items: %v", err)
		return
	}

	if len(items) > 0 {
		f.flush(ctx, items)
	}

	if requeued, err := f.queue.RequeueRetryable(ctx, f.cfg.MaxAttempts); err != nil {
		log.Printf("[BatchFlusher] Error requeueing retryable items: %v", err)
	} else if requeued > 0 {
		log.Printf("[BatchFlusher] Requeued %d failed items for retry", requeued)
	}

	f.purge(ctx)

	if len(items) > 0 {
		log.Printf("[BatchFlusher] Cycle flushed %d items in %s",
			len(items), time.Since(start).Round(time.Millisecond))
	}
}

// flush groups claimed items by destination list and submits one batch
// per group.
func (f *Flusher) flush(ctx context.Context, items []domain.QueueItem) {
	groups := make(map[string][]domain.QueueItem)
	for _, item := range items {
		groups[item.DestinationListID] = append(groups[item.DestinationListID], item)
	}

	for listID, group := range groups {
		f.flushGroup(ctx, listID, group)
	}
}

func (f *Flusher) flushGroup(ctx context.Context, listID string, group []domain.QueueItem) {
	var operations []mailchimp.Operation
	var sendable []uuid.UUID
	var noIdentity []uuid.UUID

	for _, item := range group {
		if item.Payload.Email == "" {
			noIdentity = append(noIdentity, item.ID)
			continue
		}
		op, err := mailchimp.UpsertOperation(listID, f.memberRequest(ctx, item))
		if err != nil {
			log.Printf("[BatchFlusher] Error encoding operation for item %s: %v", item.ID, err)
			noIdentity = append(noIdentity, item.ID)
			continue
		}
		operations = append(operations, op)
		sendable = append(sendable, item.ID)
	}

	if len(noIdentity) > 0 {
		if err := f.queue.MarkFailed(ctx, noIdentity, domain.QueueErrNoIdentity); err != nil {
			log.Printf("[BatchFlusher] Error failing identity-less items: %v", err)
		}
	}
	if len(operations) == 0 {
		return
	}

	handle, err := f.gateway.SubmitBatch(ctx, operations)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-submission. Leave the claims alone; the next
			// cycle's stuck-item release returns them to pending.
			log.Printf("[BatchFlusher] Cycle cancelled mid-submission, %d items left for recovery", len(sendable))
			return
		}
		log.Printf("[BatchFlusher] Batch submission failed for list %s: %v", listID, err)
		if err := f.queue.MarkFailed(ctx, sendable, err.Error()); err != nil {
			log.Printf("[BatchFlusher] Error failing batch group: %v", err)
		}
		return
	}

	if err := f.queue.MarkCompleted(ctx, sendable); err != nil {
		log.Printf("[BatchFlusher] Error completing batch group: %v", err)
		return
	}
	log.Printf("[BatchFlusher] Submitted %d operations for list %s (batch %s)",
		len(operations), listID, handle.ID)
}

// memberRequest builds the upsert payload for a queued item, applying
// the form's current double opt-in and tag options. Settings lookup
// failures degrade to a plain subscribed upsert.
func (f *Flusher) memberRequest(ctx context.Context, item domain.QueueItem) mailchimp.MemberRequest {
	member := mailchimp.MemberRequest{
		EmailAddress: item.Payload.Email,
		StatusIfNew:  mailchimp.StatusSubscribed,
		MergeFields:  item.Payload.MergeFields,
	}
	if f.settings == nil {
		return member
	}
	settings, err := f.settings.GetFormSettings(ctx, item.FormID)
	if err != nil || settings == nil {
		return member
	}
	if settings.DoubleOptIn {
		member.StatusIfNew = mailchimp.StatusPending
	}
	member.Tags = settings.Tags
	return member
}

func (f *Flusher) purge(ctx context.Context) {
	retention := time.Duration(f.cfg.RetentionDays) * 24 * time.Hour
	purged, err := f.queue.PurgeTerminal(ctx, retention, 1000)
	if err != nil {
		log.Printf("[BatchFlusher] Error purging terminal items: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("[BatchFlusher] Purged %d terminal items older than %dd", purged, f.cfg.RetentionDays)
	}
}
