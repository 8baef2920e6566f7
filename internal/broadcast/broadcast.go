// Package broadcast notifies downstream consumers of newly indexed deposits.
// Delivery is fire-and-forget: the fetcher never rolls back an import because
// a broadcast failed.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/opwatcher/internal/core/domain"
)

// EventTypeNewDeposits labels the only event this worker emits.
const EventTypeNewDeposits = "new_optimism_deposits"

// Event is the envelope published for each imported batch.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Deposits  []*domain.Deposit `json:"deposits"`
	EmittedAt time.Time         `json:"emitted_at"`
}

// Broadcaster delivers deposit batches to subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, deposits []*domain.Deposit) error
	Close() error
}

// LogBroadcaster writes batches to the log. Used when no Redis is configured.
type LogBroadcaster struct {
	log *slog.Logger
}

// NewLogBroadcaster creates a slog-backed broadcaster.
func NewLogBroadcaster() *LogBroadcaster {
	return &LogBroadcaster{log: slog.Default()}
}

func (b *LogBroadcaster) Broadcast(ctx context.Context, deposits []*domain.Deposit) error {
	for _, d := range deposits {
		b.log.Info("new optimism deposit",
			"l1_block", d.L1BlockNumber,
			"l1_tx", d.L1TransactionHash,
			"l2_tx", d.L2TransactionHash,
		)
	}
	return nil
}

func (b *LogBroadcaster) Close() error { return nil }
