package reorg

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/opwatcher/internal/core/domain"
	"github.com/vietddude/opwatcher/internal/infra/storage/memory"
)

func removedLog(block uint64) domain.Log {
	return domain.Log{BlockNumber: block, Removed: true}
}

func liveLog(block uint64, index uint64) domain.Log {
	return domain.Log{
		BlockNumber: block,
		Index:       index,
		BlockHash:   common.Hash{0x01},
	}
}

func TestPartition(t *testing.T) {
	logs := []domain.Log{
		removedLog(1500),
		removedLog(1501),
		removedLog(1500), // duplicate block
		liveLog(1502, 0),
		liveLog(1502, 1),
	}

	removed, kept := Partition(logs)

	if len(removed) != 2 || removed[0] != 1500 || removed[1] != 1501 {
		t.Errorf("unexpected removed set: %v", removed)
	}
	if len(kept) != 2 || kept[0].Index != 0 || kept[1].Index != 1 {
		t.Errorf("kept logs out of order: %v", kept)
	}
}

func TestReconcileDeletesRemovedBlocks(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDepositRepo()
	repo.SaveBatch(ctx, []*domain.Deposit{
		{L1BlockNumber: 1500, L1TransactionHash: "0x1", L1TransactionOrigin: "0xa", L2TransactionHash: "0xa1"},
		{L1BlockNumber: 1501, L1TransactionHash: "0x2", L1TransactionOrigin: "0xb", L2TransactionHash: "0xb1"},
		{L1BlockNumber: 1499, L1TransactionHash: "0x3", L1TransactionOrigin: "0xc", L2TransactionHash: "0xc1"},
	})

	kept, err := NewReconciler(repo).Reconcile(ctx, []domain.Log{
		removedLog(1500),
		removedLog(1501),
		liveLog(1502, 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(kept) != 1 || kept[0].BlockNumber != 1502 {
		t.Errorf("unexpected surviving logs: %v", kept)
	}

	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Errorf("expected only the untouched deposit to remain, got %d rows", count)
	}
	last, _, _ := repo.LastIndexed(ctx)
	if last != 1499 {
		t.Errorf("expected last indexed 1499, got %d", last)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDepositRepo()

	rec := NewReconciler(repo)
	logs := []domain.Log{removedLog(1500)}

	if _, err := rec.Reconcile(ctx, logs); err != nil {
		t.Fatal(err)
	}
	// Replaying against an already-clean store is a no-op.
	if _, err := rec.Reconcile(ctx, logs); err != nil {
		t.Fatal(err)
	}
}

func TestReconcileNoRemoved(t *testing.T) {
	kept, err := NewReconciler(memory.NewDepositRepo()).Reconcile(context.Background(), []domain.Log{
		liveLog(10, 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 1 {
		t.Errorf("expected pass-through, got %v", kept)
	}
}
