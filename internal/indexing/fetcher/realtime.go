package fetcher

import (
	"context"
	"time"

	"github.com/vietddude/opwatcher/internal/core/derive"
	"github.com/vietddude/opwatcher/internal/core/domain"
)

const defaultCheckInterval = 12 * time.Second

// handleSwitchToRealtime prepares realtime mode: close the gap between the
// catch-up position and the chain head, install the log filter, and start
// polling. If the safe head ran ahead by more than one batch while switching,
// the worker stays in catch-up with the refreshed safe head.
func (w *Worker) handleSwitchToRealtime(ctx context.Context) {
	newSafe, err := w.client.SafeBlockNumber(ctx)
	if err != nil {
		w.degrade("safe head refresh", err)
		w.schedule(ctx, w.cfg.RetryInterval, sigSwitchToRealtime)
		return
	}

	if newSafe > w.safeBlock && newSafe-w.safeBlock+1 > w.cfg.BatchSize {
		w.log.Info("fell behind during mode switch, staying in catch-up",
			"old_safe", w.safeBlock, "new_safe", newSafe)
		w.safeBlock = newSafe
		w.enqueue(sigFetch)
		return
	}

	from := max(w.safeBlock, w.fromBlock)

	gapLogs, err := w.client.FilterLogs(ctx, w.portal, derive.DepositEventABIHash, from, 0)
	if err != nil {
		w.degrade("realtime gap fetch", err)
		w.schedule(ctx, w.cfg.RetryInterval, sigSwitchToRealtime)
		return
	}

	filterID, err := w.client.NewFilter(ctx, w.portal, derive.DepositEventABIHash, from)
	if err != nil {
		w.degrade("filter install", err)
		w.schedule(ctx, w.cfg.RetryInterval, sigSwitchToRealtime)
		return
	}

	checkInterval, err := w.client.BlockCadence(ctx)
	if err != nil {
		w.log.Warn("block cadence lookup failed, using default poll interval", "error", err)
		checkInterval = defaultCheckInterval
	}

	w.filterID = filterID
	w.checkInterval = checkInterval
	w.mode = domain.ModeRealtime
	w.log.Info("switched to realtime mode",
		"filter_from", from, "check_interval", checkInterval)

	if err := w.importLogs(ctx, gapLogs); err != nil {
		// The filter is installed; recover the missed gap through a rebuild
		// from the DB-derived resume point.
		w.degrade("realtime gap import", err)
		w.schedule(ctx, w.cfg.RetryInterval, sigUpdateFilter)
		return
	}
	w.clearDegraded()

	w.schedule(ctx, w.checkInterval, sigPoll)
}

// handlePoll processes one getFilterChanges round.
func (w *Worker) handlePoll(ctx context.Context) {
	if w.mode != domain.ModeRealtime {
		return
	}

	logs, err := w.client.FilterChanges(ctx, w.filterID)
	if err != nil {
		if w.filterLost(err) {
			w.log.Warn("log filter lost, scheduling rebuild", "filter_id", w.filterID)
		} else {
			w.degrade("filter poll", err)
		}
		w.schedule(ctx, w.cfg.RetryInterval, sigUpdateFilter)
		return
	}

	if err := w.importLogs(ctx, logs); err != nil {
		// Rebuilding from the DB resume point replays whatever this poll
		// consumed; the upsert makes the replay harmless.
		w.degrade("realtime import", err)
		w.schedule(ctx, w.cfg.RetryInterval, sigUpdateFilter)
		return
	}
	w.clearDegraded()

	if len(logs) > 0 {
		w.log.Debug("filter poll imported", "logs", len(logs))
	}
	w.schedule(ctx, w.checkInterval, sigPoll)
}

// handleUpdateFilter is the single recovery path for a lost or abandoned
// filter: re-derive the resume point from the deposits table and install a
// fresh filter from the next block.
func (w *Worker) handleUpdateFilter(ctx context.Context) {
	if w.mode != domain.ModeRealtime {
		return
	}

	lastIndexed, _, err := w.deposits.LastIndexed(ctx)
	if err != nil {
		w.degrade("resume point lookup", err)
		w.schedule(ctx, w.cfg.RetryInterval, sigUpdateFilter)
		return
	}
	from := lastIndexed + 1
	if lastIndexed == 0 {
		from = w.startBlock
	}

	filterID, err := w.client.NewFilter(ctx, w.portal, derive.DepositEventABIHash, from)
	if err != nil {
		w.degrade("filter rebuild", err)
		w.schedule(ctx, w.cfg.RetryInterval, sigUpdateFilter)
		return
	}

	w.filterID = filterID
	w.clearDegraded()
	w.log.Info("filter rebuilt", "filter_from", from)

	w.schedule(ctx, w.checkInterval, sigPoll)
}
