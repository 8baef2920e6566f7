// Package worker holds background maintenance workers.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/opwatcher/internal/indexing/metrics"
	"github.com/vietddude/opwatcher/internal/infra/storage"
)

// Pruner deletes old deposits based on the retention policy.
type Pruner struct {
	retention time.Duration
	deposits  storage.DepositRepository
	log       *slog.Logger
}

// NewPruner creates a pruner. A zero retention disables it.
func NewPruner(retention time.Duration, deposits storage.DepositRepository) *Pruner {
	return &Pruner{retention: retention, deposits: deposits, log: slog.Default()}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return
	}

	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := uint64(time.Now().Add(-p.retention).Unix())

	deleted, err := p.deposits.DeleteOlderThan(ctx, threshold)
	if err != nil {
		p.log.Error("failed to prune deposits", "error", err)
		return
	}
	if deleted > 0 {
		metrics.DepositsPruned.Add(float64(deleted))
		p.log.Info("pruned old deposits", "deleted", deleted, "older_than", threshold)
	}
}
