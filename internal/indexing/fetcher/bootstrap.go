package fetcher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/opwatcher/internal/core/domain"
)

// bootstrap reads the SystemConfig contract, computes the resume point from
// the deposits table and validates the startup invariants.
//
// Errors wrapping ErrFatal require operator intervention; everything else is
// transient and safe to retry by restarting the worker.
func (w *Worker) bootstrap(ctx context.Context) error {
	if w.cfg.SystemConfigAddr == (common.Address{}) {
		return fmt.Errorf("%w: SystemConfig address is not set", ErrFatal)
	}

	sysCfg, err := w.client.SystemConfig(ctx, w.cfg.SystemConfigAddr)
	if err != nil {
		return fmt.Errorf("read SystemConfig: %w", err)
	}
	if sysCfg.OptimismPortal == (common.Address{}) {
		return fmt.Errorf("%w: SystemConfig returned a zero OptimismPortal address", ErrFatal)
	}
	if sysCfg.StartBlock == 0 {
		return fmt.Errorf("%w: SystemConfig start block is zero", ErrFatal)
	}

	lastIndexed, lastTxHash, err := w.deposits.LastIndexed(ctx)
	if err != nil {
		return fmt.Errorf("read last indexed deposit: %w", err)
	}
	if lastIndexed != 0 && sysCfg.StartBlock > lastIndexed {
		return fmt.Errorf("%w: start block %d is beyond the last indexed block %d; the deposits table is stale or tampered",
			ErrFatal, sysCfg.StartBlock, lastIndexed)
	}

	// Cheap reorg sanity check: the transaction behind the newest stored
	// deposit must still exist on L1. If it does not, a reorg deeper than
	// the indexed history happened while the fetcher was down.
	if lastTxHash != "" {
		exists, err := w.client.TransactionExists(ctx, lastTxHash)
		if err != nil {
			return fmt.Errorf("verify last indexed transaction: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: last indexed transaction %s at block %d is gone from L1; manual review required",
				ErrFatal, lastTxHash, lastIndexed)
		}
	}

	safe, err := w.client.SafeBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("read safe head: %w", err)
	}
	if sysCfg.StartBlock > safe {
		return fmt.Errorf("%w: start block %d is beyond the safe head %d", ErrFatal, sysCfg.StartBlock, safe)
	}

	w.portal = sysCfg.OptimismPortal
	w.startBlock = sysCfg.StartBlock
	w.fromBlock = max(sysCfg.StartBlock, lastIndexed)
	w.safeBlock = safe
	w.lastImported = lastIndexed
	w.mode = domain.ModeCatchUp
	w.publishStatus()

	w.log.Info("bootstrap complete",
		"portal", w.portal,
		"start_block", w.startBlock,
		"from_block", w.fromBlock,
		"safe_block", w.safeBlock,
	)
	return nil
}
