package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DepositsIndexed tracks total deposit rows imported.
	DepositsIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opwatcher_deposits_indexed_total",
			Help: "Total number of deposits imported",
		},
	)

	// LogsProcessed tracks TransactionDeposited logs seen, by removed flag.
	LogsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opwatcher_logs_processed_total",
			Help: "Total number of deposit logs processed",
		},
		[]string{"removed"},
	)

	// ReorgDeletions tracks deposit rows deleted by reorg reconciliation.
	ReorgDeletions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opwatcher_reorg_deletions_total",
			Help: "Total number of deposit rows deleted after L1 reorgs",
		},
	)

	// RPCCallsTotal tracks RPC calls per provider and method.
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opwatcher_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider and method.
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opwatcher_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "method"},
	)

	// RPCLatency tracks RPC call latency.
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opwatcher_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// BroadcastFailures tracks dropped deposit broadcasts.
	BroadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opwatcher_broadcast_failures_total",
			Help: "Total number of failed deposit broadcasts",
		},
	)

	// WorkerMode is 0 in catch-up mode, 1 in realtime mode.
	WorkerMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opwatcher_worker_mode",
			Help: "Current fetcher mode (0 = catch_up, 1 = realtime)",
		},
	)

	// LastIndexedBlock tracks the highest imported L1 block number.
	LastIndexedBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opwatcher_last_indexed_l1_block",
			Help: "Highest L1 block number with an imported deposit",
		},
	)

	// SafeHead tracks the last known L1 safe head.
	SafeHead = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opwatcher_l1_safe_head",
			Help: "Last known L1 safe head block number",
		},
	)

	// DepositsPruned tracks rows removed by the retention pruner.
	DepositsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opwatcher_deposits_pruned_total",
			Help: "Total number of deposit rows removed by retention pruning",
		},
	)
)
