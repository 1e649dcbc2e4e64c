package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/finknow/internal/telemetry"
)

// CachePruner drops content-cache entries whose documents are gone from the vector store.
type CachePruner interface {
	PruneCache(ctx context.Context) (int, error)
}

// ReconcileProcessor keeps the content cache consistent with the vector store. Documents deleted
// directly in the store would otherwise stay cached and block re-ingestion of the same file.
type ReconcileProcessor struct {
	pruner CachePruner
}

func NewReconcileProcessor(pruner CachePruner) *ReconcileProcessor {
	return &ReconcileProcessor{pruner: pruner}
}

func (p *ReconcileProcessor) ProcessJobs(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "ReconcileProcessor.ProcessJobs", telemetry.SpanAttributes{
		Operation: "reconcile",
	})
	defer span.End()

	pruned, err := p.pruner.PruneCache(ctx)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to prune content cache: %w", err)
	}
	if pruned > 0 {
		log.Printf("reconcile: dropped %d stale cache entries", pruned)
	}
	return nil
}
