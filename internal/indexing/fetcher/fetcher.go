// Package fetcher implements the deposit ingestion worker: a single-threaded
// state machine that catches up to the L1 safe head in bounded log windows,
// then switches to polling an installed log filter, reconciling reorgs and
// rebuilding the filter when the node loses it.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/opwatcher/internal/broadcast"
	"github.com/vietddude/opwatcher/internal/core/derive"
	"github.com/vietddude/opwatcher/internal/core/domain"
	"github.com/vietddude/opwatcher/internal/indexing/metrics"
	"github.com/vietddude/opwatcher/internal/indexing/reorg"
	"github.com/vietddude/opwatcher/internal/infra/ethereum"
	"github.com/vietddude/opwatcher/internal/infra/storage"
)

// ErrFatal marks configuration and consistency errors that must stop the
// worker instead of being retried.
var ErrFatal = errors.New("fatal fetcher error")

// L1Client is the JSON-RPC surface the worker depends on.
type L1Client interface {
	SystemConfig(ctx context.Context, contract common.Address) (*ethereum.SystemConfig, error)
	SafeBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, address common.Address, topic0 common.Hash, from, to uint64) ([]domain.Log, error)
	NewFilter(ctx context.Context, address common.Address, topic0 common.Hash, from uint64) (string, error)
	FilterChanges(ctx context.Context, filterID string) ([]domain.Log, error)
	UninstallFilter(ctx context.Context, filterID string) (bool, error)
	TransactionExists(ctx context.Context, txHash string) (bool, error)
	BlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error)
	BlockCadence(ctx context.Context) (time.Duration, error)
}

// FilterLost reports whether an error means the installed filter is gone.
// Injected so the worker does not depend on the transport package directly.
type FilterLost func(error) bool

// Config holds the worker parameters fixed at bootstrap.
type Config struct {
	SystemConfigAddr common.Address
	BatchSize        uint64
	TransactionType  byte
	RetryInterval    time.Duration
}

type signal int

const (
	sigFetch signal = iota
	sigSwitchToRealtime
	sigPoll
	sigUpdateFilter
)

// Status is a read-only snapshot of the worker state.
type Status struct {
	Mode            domain.Mode `json:"mode"`
	StartBlock      uint64      `json:"start_block"`
	FromBlock       uint64      `json:"from_block"`
	SafeBlock       uint64      `json:"safe_block"`
	LastImported    uint64      `json:"last_imported_block"`
	FilterInstalled bool        `json:"filter_installed"`
	Degraded        bool        `json:"degraded"`
}

// Worker is the deposit fetcher. All fields other than the signal channel and
// the status snapshot are owned by the Run goroutine; no handler runs
// concurrently with another.
type Worker struct {
	cfg         Config
	client      L1Client
	deposits    storage.DepositRepository
	reconciler  *reorg.Reconciler
	broadcaster broadcast.Broadcaster
	filterLost  FilterLost
	log         *slog.Logger

	mode          domain.Mode
	portal        common.Address
	startBlock    uint64
	fromBlock     uint64
	safeBlock     uint64
	filterID      string
	checkInterval time.Duration
	lastImported  uint64
	degraded      bool

	signals chan signal

	statusMu sync.RWMutex
	status   Status
}

// NewWorker creates a worker. Run must be called to start it.
func NewWorker(
	cfg Config,
	client L1Client,
	deposits storage.DepositRepository,
	broadcaster broadcast.Broadcaster,
	filterLost FilterLost,
) *Worker {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 500
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 3 * time.Minute
	}
	if filterLost == nil {
		filterLost = func(error) bool { return false }
	}
	return &Worker{
		cfg:         cfg,
		client:      client,
		deposits:    deposits,
		reconciler:  reorg.NewReconciler(deposits),
		broadcaster: broadcaster,
		filterLost:  filterLost,
		log:         slog.Default().With("component", "fetcher"),
		signals:     make(chan signal, 16),
	}
}

// Run bootstraps the worker and drives the event loop until ctx is
// cancelled. Configuration and consistency failures return an error wrapping
// ErrFatal; transient bootstrap failures return a plain error so a
// supervisor may restart the worker.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.bootstrap(ctx); err != nil {
		return err
	}

	if w.fromBlock > w.safeBlock {
		w.enqueue(sigSwitchToRealtime)
	} else {
		w.enqueue(sigFetch)
	}

	for {
		select {
		case <-ctx.Done():
			w.terminate()
			return nil
		case s := <-w.signals:
			w.step(ctx, s)
		}
	}
}

// Status returns the latest published snapshot.
func (w *Worker) Status() Status {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()
	return w.status
}

func (w *Worker) step(ctx context.Context, s signal) {
	switch s {
	case sigFetch:
		w.handleFetch(ctx)
	case sigSwitchToRealtime:
		w.handleSwitchToRealtime(ctx)
	case sigPoll:
		w.handlePoll(ctx)
	case sigUpdateFilter:
		w.handleUpdateFilter(ctx)
	}
	w.publishStatus()
}

func (w *Worker) enqueue(s signal) {
	select {
	case w.signals <- s:
	default:
		w.log.Warn("signal queue full, dropping", "signal", s)
	}
}

// schedule re-enters the handler with s after d. Timers die with the context.
func (w *Worker) schedule(ctx context.Context, d time.Duration, s signal) {
	if d <= 0 {
		w.enqueue(s)
		return
	}
	go func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			w.enqueue(s)
		}
	}()
}

// importLogs is the shared ingestion path for catch-up windows, the realtime
// gap fetch and filter polls: reconcile removed entries, derive, resolve
// timestamps, import, broadcast. Broadcast failures never fail the import.
func (w *Worker) importLogs(ctx context.Context, logs []domain.Log) error {
	kept, err := w.reconciler.Reconcile(ctx, logs)
	if err != nil {
		return err
	}
	if len(kept) == 0 {
		return nil
	}

	deposits := make([]*domain.Deposit, 0, len(kept))
	blockNumbers := make([]uint64, 0, len(kept))
	for i := range kept {
		l := &kept[i]
		dep, err := derive.DepositFromLog(l, w.cfg.TransactionType)
		if err != nil {
			w.log.Error("skipping malformed deposit log",
				"block", l.BlockNumber, "log_index", l.Index, "error", err)
			continue
		}
		deposits = append(deposits, dep)
		blockNumbers = append(blockNumbers, l.BlockNumber)
	}
	if len(deposits) == 0 {
		return nil
	}

	timestamps, err := w.client.BlockTimestamps(ctx, blockNumbers)
	if err != nil {
		// Degraded, not failed: the deposit is still imported, with a null
		// timestamp.
		w.log.Warn("block timestamp lookup failed, storing null timestamps", "error", err)
		timestamps = nil
	}
	for _, d := range deposits {
		if ts, ok := timestamps[d.L1BlockNumber]; ok {
			t := ts
			d.L1BlockTimestamp = &t
		}
	}

	if err := w.deposits.SaveBatch(ctx, deposits); err != nil {
		return fmt.Errorf("import deposits: %w", err)
	}

	for _, d := range deposits {
		if d.L1BlockNumber > w.lastImported {
			w.lastImported = d.L1BlockNumber
		}
	}
	metrics.DepositsIndexed.Add(float64(len(deposits)))
	metrics.LogsProcessed.WithLabelValues("false").Add(float64(len(kept)))
	metrics.LastIndexedBlock.Set(float64(w.lastImported))

	if err := w.broadcaster.Broadcast(ctx, deposits); err != nil {
		metrics.BroadcastFailures.Inc()
		w.log.Warn("deposit broadcast failed", "count", len(deposits), "error", err)
	}
	return nil
}

// terminate runs the shutdown path: best-effort filter uninstall.
func (w *Worker) terminate() {
	if w.filterID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := w.client.UninstallFilter(ctx, w.filterID)
	if err != nil {
		w.log.Warn("failed to uninstall filter", "filter_id", w.filterID, "error", err)
	} else if !ok {
		w.log.Warn("filter was already gone at shutdown", "filter_id", w.filterID)
	}
	w.filterID = ""
}

func (w *Worker) degrade(stage string, err error) {
	w.degraded = true
	w.log.Error(stage+" failed, rescheduling",
		"retry_in", w.cfg.RetryInterval, "error", err)
}

func (w *Worker) clearDegraded() {
	w.degraded = false
}

func (w *Worker) publishStatus() {
	if w.mode == domain.ModeRealtime {
		metrics.WorkerMode.Set(1)
	} else {
		metrics.WorkerMode.Set(0)
	}
	metrics.SafeHead.Set(float64(w.safeBlock))

	w.statusMu.Lock()
	w.status = Status{
		Mode:            w.mode,
		StartBlock:      w.startBlock,
		FromBlock:       w.fromBlock,
		SafeBlock:       w.safeBlock,
		LastImported:    w.lastImported,
		FilterInstalled: w.filterID != "",
		Degraded:        w.degraded,
	}
	w.statusMu.Unlock()
}
