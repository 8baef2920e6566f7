package storage

import (
	"context"

	"github.com/vietddude/opwatcher/internal/core/domain"
)

// DepositRepository handles deposit persistence.
type DepositRepository interface {
	// SaveBatch imports deposits as one atomic batch. Idempotent on the
	// primary key: replaying a batch inserts nothing new.
	SaveBatch(ctx context.Context, deposits []*domain.Deposit) error

	// DeleteByL1Blocks deletes every deposit whose l1_block_number is in
	// blockNumbers and returns the deleted count.
	DeleteByL1Blocks(ctx context.Context, blockNumbers []uint64) (int64, error)

	// LastIndexed returns the highest indexed L1 block number and the
	// L1 transaction hash stored for it, or (0, "") when the table is empty.
	LastIndexed(ctx context.Context) (uint64, string, error)

	// Count returns the total number of deposit rows.
	Count(ctx context.Context) (int64, error)

	// DeleteOlderThan deletes deposits with a known block timestamp below
	// the threshold and returns the deleted count. Used by retention pruning.
	DeleteOlderThan(ctx context.Context, timestamp uint64) (int64, error)
}
