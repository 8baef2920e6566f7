// Package memory provides an in-memory DepositRepository for tests and for
// running without a database.
package memory

import (
	"context"
	"sync"

	"github.com/vietddude/opwatcher/internal/core/domain"
)

type depositKey struct {
	l1TxHash string
	origin   string
	l2TxHash string
}

// DepositRepo is a map-backed deposit repository.
type DepositRepo struct {
	mu       sync.RWMutex
	deposits map[depositKey]*domain.Deposit
}

// NewDepositRepo creates an empty in-memory repository.
func NewDepositRepo() *DepositRepo {
	return &DepositRepo{deposits: make(map[depositKey]*domain.Deposit)}
}

// SaveBatch imports deposits; existing keys are left untouched.
func (r *DepositRepo) SaveBatch(ctx context.Context, deposits []*domain.Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range deposits {
		key := depositKey{d.L1TransactionHash, d.L1TransactionOrigin, d.L2TransactionHash}
		if _, ok := r.deposits[key]; ok {
			continue
		}
		cp := *d
		r.deposits[key] = &cp
	}
	return nil
}

// DeleteByL1Blocks deletes deposits at the given block numbers.
func (r *DepositRepo) DeleteByL1Blocks(ctx context.Context, blockNumbers []uint64) (int64, error) {
	blocks := make(map[uint64]struct{}, len(blockNumbers))
	for _, n := range blockNumbers {
		blocks[n] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for key, d := range r.deposits {
		if _, ok := blocks[d.L1BlockNumber]; ok {
			delete(r.deposits, key)
			deleted++
		}
	}
	return deleted, nil
}

// LastIndexed returns the highest indexed block and its L1 transaction hash.
func (r *DepositRepo) LastIndexed(ctx context.Context) (uint64, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.Deposit
	for _, d := range r.deposits {
		if best == nil || d.L1BlockNumber > best.L1BlockNumber {
			best = d
		}
	}
	if best == nil {
		return 0, "", nil
	}
	return best.L1BlockNumber, best.L1TransactionHash, nil
}

// Count returns the number of stored deposits.
func (r *DepositRepo) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.deposits)), nil
}

// DeleteOlderThan removes deposits with a known timestamp below the threshold.
func (r *DepositRepo) DeleteOlderThan(ctx context.Context, timestamp uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for key, d := range r.deposits {
		if d.L1BlockTimestamp != nil && *d.L1BlockTimestamp < timestamp {
			delete(r.deposits, key)
			deleted++
		}
	}
	return deleted, nil
}

// All returns a copy of every stored deposit. Test helper.
func (r *DepositRepo) All() []*domain.Deposit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Deposit, 0, len(r.deposits))
	for _, d := range r.deposits {
		cp := *d
		out = append(out, &cp)
	}
	return out
}
