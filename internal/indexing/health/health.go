// Package health exposes the ops surface: a liveness report over the worker
// snapshot and the Prometheus metrics endpoint.
package health

import (
	"context"
	"log/slog"

	"github.com/vietddude/opwatcher/internal/core/domain"
	"github.com/vietddude/opwatcher/internal/indexing/fetcher"
	"github.com/vietddude/opwatcher/internal/infra/rpc/provider"
	"github.com/vietddude/opwatcher/internal/infra/storage"
)

// Status levels, worst wins.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"
)

// StatusProvider yields the current worker snapshot.
type StatusProvider interface {
	Status() fetcher.Status
}

// Report is the detailed health payload.
type Report struct {
	Status          string                `json:"status"`
	Mode            domain.Mode           `json:"mode"`
	StartBlock      uint64                `json:"start_block"`
	FromBlock       uint64                `json:"from_block"`
	SafeBlock       uint64                `json:"safe_block"`
	LastImported    uint64                `json:"last_imported_block"`
	FilterInstalled bool                  `json:"filter_installed"`
	Lag             int64                 `json:"lag_blocks"`
	Deposits        int64                 `json:"deposits"`
	RPC             provider.HealthStatus `json:"rpc"`
}

// Monitor assembles health reports.
type Monitor struct {
	worker   StatusProvider
	deposits storage.DepositRepository
	rpc      provider.Provider
	log      *slog.Logger
}

// NewMonitor creates a monitor.
func NewMonitor(worker StatusProvider, deposits storage.DepositRepository, rpc provider.Provider) *Monitor {
	return &Monitor{worker: worker, deposits: deposits, rpc: rpc, log: slog.Default()}
}

// Check builds the current report.
func (m *Monitor) Check(ctx context.Context) Report {
	snap := m.worker.Status()

	count, err := m.deposits.Count(ctx)
	if err != nil {
		m.log.Warn("deposit count failed", "error", err)
		count = -1
	}

	rpcHealth := m.rpc.GetHealth()

	status := StatusHealthy
	if snap.Degraded {
		status = StatusDegraded
	}
	if !rpcHealth.Available || count < 0 {
		status = StatusCritical
	}

	return Report{
		Status:          status,
		Mode:            snap.Mode,
		StartBlock:      snap.StartBlock,
		FromBlock:       snap.FromBlock,
		SafeBlock:       snap.SafeBlock,
		LastImported:    snap.LastImported,
		FilterInstalled: snap.FilterInstalled,
		Lag:             int64(snap.SafeBlock) - int64(snap.LastImported),
		Deposits:        count,
		RPC:             rpcHealth,
	}
}
