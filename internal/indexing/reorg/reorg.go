// Package reorg reconciles persisted deposits with L1 reorganizations
// surfaced as removed=true filter logs.
package reorg

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vietddude/opwatcher/internal/core/domain"
	"github.com/vietddude/opwatcher/internal/indexing/metrics"
	"github.com/vietddude/opwatcher/internal/infra/storage"
)

// Reconciler deletes deposits whose blocks were reorged out.
type Reconciler struct {
	deposits storage.DepositRepository
	log      *slog.Logger
}

// NewReconciler creates a reconciler over the deposit repository.
func NewReconciler(deposits storage.DepositRepository) *Reconciler {
	return &Reconciler{deposits: deposits, log: slog.Default()}
}

// Partition splits a log stream into the set of reorged-out block numbers and
// the surviving logs, preserving order.
func Partition(logs []domain.Log) ([]uint64, []domain.Log) {
	removedSet := make(map[uint64]struct{})
	kept := make([]domain.Log, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			removedSet[l.BlockNumber] = struct{}{}
			continue
		}
		kept = append(kept, l)
	}

	removed := make([]uint64, 0, len(removedSet))
	for n := range removedSet {
		removed = append(removed, n)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed, kept
}

// Reconcile deletes every deposit in the removed blocks and returns the
// surviving logs for normal derivation. Idempotent: replaying the same
// removed set deletes zero rows.
func (r *Reconciler) Reconcile(ctx context.Context, logs []domain.Log) ([]domain.Log, error) {
	removed, kept := Partition(logs)
	if len(removed) == 0 {
		return kept, nil
	}

	deleted, err := r.deposits.DeleteByL1Blocks(ctx, removed)
	if err != nil {
		return nil, fmt.Errorf("delete reorged deposits: %w", err)
	}

	metrics.LogsProcessed.WithLabelValues("true").Add(float64(len(logs) - len(kept)))
	metrics.ReorgDeletions.Add(float64(deleted))
	r.log.Info("reorg reconciled",
		"removed_blocks", len(removed),
		"first_block", removed[0],
		"last_block", removed[len(removed)-1],
		"deleted_deposits", deleted,
	)
	return kept, nil
}
