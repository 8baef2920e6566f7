package fetcher

import (
	"context"

	"github.com/vietddude/opwatcher/internal/core/derive"
	"github.com/vietddude/opwatcher/internal/core/domain"
)

// handleFetch runs one catch-up window: [fromBlock, min(fromBlock+batch,
// safeBlock)]. The position only advances after a successful import, so a
// rescheduled step replays the same window.
func (w *Worker) handleFetch(ctx context.Context) {
	if w.mode != domain.ModeCatchUp {
		return
	}

	to := w.fromBlock + w.cfg.BatchSize
	if to > w.safeBlock {
		to = w.safeBlock
	}

	logs, err := w.client.FilterLogs(ctx, w.portal, derive.DepositEventABIHash, w.fromBlock, to)
	if err != nil {
		w.degrade("catch-up log fetch", err)
		w.schedule(ctx, w.cfg.RetryInterval, sigFetch)
		return
	}

	if err := w.importLogs(ctx, logs); err != nil {
		w.degrade("catch-up import", err)
		w.schedule(ctx, w.cfg.RetryInterval, sigFetch)
		return
	}
	w.clearDegraded()

	w.log.Debug("catch-up window imported", "from", w.fromBlock, "to", to, "logs", len(logs))

	if to == w.safeBlock {
		w.enqueue(sigSwitchToRealtime)
		return
	}
	w.fromBlock = to + 1
	w.enqueue(sigFetch)
}
