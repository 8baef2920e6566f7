// Package control wires the storage, transport, broadcast and fetcher
// components into the running application.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/opwatcher/internal/broadcast"
	"github.com/vietddude/opwatcher/internal/core/config"
	"github.com/vietddude/opwatcher/internal/core/worker"
	"github.com/vietddude/opwatcher/internal/indexing/fetcher"
	"github.com/vietddude/opwatcher/internal/indexing/health"
	"github.com/vietddude/opwatcher/internal/infra/ethereum"
	"github.com/vietddude/opwatcher/internal/infra/rpc"
	"github.com/vietddude/opwatcher/internal/infra/rpc/provider"
	"github.com/vietddude/opwatcher/internal/infra/storage"
	"github.com/vietddude/opwatcher/internal/infra/storage/memory"
	"github.com/vietddude/opwatcher/internal/infra/storage/postgres"
)

// Config holds the application configuration.
type Config struct {
	Port     int
	L1       config.L1Config
	Database postgres.Config
	Redis    broadcast.Config
}

// Watcher is the main application struct that manages the fetcher lifecycle.
type Watcher struct {
	cfg          Config
	worker       *fetcher.Worker
	pruner       *worker.Pruner
	healthServer *health.Server
	db           *postgres.DB
	broadcaster  broadcast.Broadcaster
	rpcProvider  provider.Provider
	deposits     storage.DepositRepository
	log          *slog.Logger

	done chan error
}

// NewWatcher creates a new Watcher instance with all dependencies initialized.
func NewWatcher(cfg Config) (*Watcher, error) {
	// 1. Storage
	var deposits storage.DepositRepository
	var db *postgres.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return nil, err
		}
		deposits = postgres.NewDepositRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		deposits = memory.NewDepositRepo()
		slog.Info("Using in-memory storage; deposits will not survive a restart")
	}

	// 2. Broadcaster
	var broadcaster broadcast.Broadcaster
	if cfg.Redis.URL != "" {
		var err error
		broadcaster, err = broadcast.NewRedisBroadcaster(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis broadcaster: %w", err)
		}
		slog.Info("Broadcasting deposits to Redis", "channel", broadcast.Channel)
	} else {
		broadcaster = broadcast.NewLogBroadcaster()
	}

	// 3. L1 transport
	httpProvider := provider.NewHTTPProvider("l1", cfg.L1.RPCURL, 30*time.Second)
	rpcClient := rpc.NewClient(httpProvider, rpc.DefaultRetryConfig)
	l1Client := ethereum.NewClient(rpcClient)

	// 4. Fetcher worker
	fetchWorker := fetcher.NewWorker(fetcher.Config{
		SystemConfigAddr: cfg.L1.SystemConfigAddress(),
		BatchSize:        cfg.L1.BatchSize,
		TransactionType:  byte(cfg.L1.TransactionType),
		RetryInterval:    cfg.L1.RetryInterval.Std(),
	}, l1Client, deposits, broadcaster, rpc.IsFilterNotFound)

	// 5. Retention pruner
	var pruner *worker.Pruner
	if cfg.L1.RetentionPeriod.Std() > 0 {
		pruner = worker.NewPruner(cfg.L1.RetentionPeriod.Std(), deposits)
	}

	// 6. Health server
	monitor := health.NewMonitor(fetchWorker, deposits, httpProvider)
	healthServer := health.NewServer(monitor, cfg.Port)

	return &Watcher{
		cfg:          cfg,
		worker:       fetchWorker,
		pruner:       pruner,
		healthServer: healthServer,
		db:           db,
		broadcaster:  broadcaster,
		rpcProvider:  httpProvider,
		deposits:     deposits,
		log:          slog.Default(),
		done:         make(chan error, 1),
	}, nil
}

// Start starts the watcher and all its components.
func (w *Watcher) Start(ctx context.Context) error {
	go func() {
		if err := w.healthServer.Start(); err != nil && ctx.Err() == nil {
			w.log.Error("Health server failed", "error", err)
		}
	}()

	go func() {
		w.done <- w.worker.Run(ctx)
	}()

	if w.pruner != nil {
		w.log.Info("Starting retention pruner", "retention", w.cfg.L1.RetentionPeriod.Std())
		go w.pruner.Start(ctx)
	}

	return nil
}

// Done delivers the worker's exit error. A nil error is a clean shutdown;
// an error wrapping fetcher.ErrFatal requires operator intervention.
func (w *Watcher) Done() <-chan error {
	return w.done
}

// Stop stops the watcher.
func (w *Watcher) Stop(ctx context.Context) error {
	w.log.Info("Stopping opwatcher...")

	if err := w.broadcaster.Close(); err != nil {
		w.log.Warn("Failed to close broadcaster", "error", err)
	}
	if err := w.rpcProvider.Close(); err != nil {
		w.log.Warn("Failed to close rpc provider", "error", err)
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			w.log.Warn("Failed to close database", "error", err)
		}
	}

	return w.healthServer.Stop(ctx)
}
