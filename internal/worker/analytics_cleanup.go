package worker

import (
	"context"
	"log"
	"time"
)

// =============================================================================
// ANALYTICS CLEANUP WORKER — Enforces Event Retention
// =============================================================================
// Analytics events are append-only. Without periodic pruning the table
// grows without bound and the aggregate queries degrade. Deletes run in
// batches to avoid long transactions.

const (
	// DefaultAnalyticsCleanupInterval is how often the prune cycle runs.
	DefaultAnalyticsCleanupInterval = 6 * time.Hour

	// analyticsCleanupBatchSize limits each DELETE.
	analyticsCleanupBatchSize = 10000
)

// AnalyticsPruner deletes events past their retention window.
type AnalyticsPruner interface {
	Prune(ctx context.Context, olderThan time.Duration, batchSize int) (int64, error)
}

// AnalyticsCleanupWorker periodically prunes old analytics events.
type AnalyticsCleanupWorker struct {
	pruner    AnalyticsPruner
	interval  time.Duration
	retention time.Duration
}

// NewAnalyticsCleanupWorker creates a cleanup worker for the given
// retention window.
func NewAnalyticsCleanupWorker(pruner AnalyticsPruner, retention time.Duration) *AnalyticsCleanupWorker {
	return &AnalyticsCleanupWorker{
		pruner:    pruner,
		interval:  DefaultAnalyticsCleanupInterval,
		retention: retention,
	}
}

// Start begins the cleanup loop. It blocks until ctx is cancelled.
func (ac *AnalyticsCleanupWorker) Start(ctx context.Context) {
	log.Printf("[AnalyticsCleanup] Starting (interval=%s, retention=%s)", ac.interval, ac.retention)

	ac.cleanup(ctx)

	ticker := time.NewTicker(ac.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[AnalyticsCleanup] Stopping")
			return
		case <-ticker.C:
			ac.cleanup(ctx)
		}
	}
}

func (ac *AnalyticsCleanupWorker) cleanup(ctx context.Context) {
	pruned, err := ac.pruner.Prune(ctx, ac.retention, analyticsCleanupBatchSize)
	if err != nil {
		log.Printf("[AnalyticsCleanup] Error pruning events: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("[AnalyticsCleanup] Pruned %d events past retention", pruned)
	}
}
