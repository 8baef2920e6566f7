package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/opwatcher/internal/core/domain"
)

// DepositRepo implements storage.DepositRepository using PostgreSQL.
type DepositRepo struct {
	db *DB
}

// NewDepositRepo creates a new PostgreSQL deposit repository.
func NewDepositRepo(db *DB) *DepositRepo {
	return &DepositRepo{db: db}
}

// SaveBatch imports deposits in one transaction. ON CONFLICT DO NOTHING makes
// the import idempotent on the primary key, which is what lets filter rebuild
// replay overlapping ranges safely.
func (r *DepositRepo) SaveBatch(ctx context.Context, deposits []*domain.Deposit) error {
	if len(deposits) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO optimism_deposits (
			l1_block_number, l1_block_timestamp, l1_transaction_hash, l1_transaction_origin, l2_transaction_hash
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (l1_transaction_hash, l1_transaction_origin, l2_transaction_hash) DO NOTHING
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	for _, d := range deposits {
		var ts sql.NullInt64
		if d.L1BlockTimestamp != nil {
			ts = sql.NullInt64{Int64: int64(*d.L1BlockTimestamp), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			d.L1BlockNumber, ts,
			d.L1TransactionHash, d.L1TransactionOrigin, d.L2TransactionHash,
		); err != nil {
			return fmt.Errorf("insert deposit %s: %w", d.L2TransactionHash, err)
		}
	}

	return tx.Commit()
}

// DeleteByL1Blocks deletes deposits at the given block numbers in a single
// statement and returns the deleted count.
func (r *DepositRepo) DeleteByL1Blocks(ctx context.Context, blockNumbers []uint64) (int64, error) {
	if len(blockNumbers) == 0 {
		return 0, nil
	}

	blocks := make([]int64, len(blockNumbers))
	for i, n := range blockNumbers {
		blocks[i] = int64(n)
	}

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM optimism_deposits WHERE l1_block_number = ANY($1)`,
		pq.Array(blocks),
	)
	if err != nil {
		return 0, fmt.Errorf("delete deposits: %w", err)
	}
	return res.RowsAffected()
}

// LastIndexed returns the resume point: the highest l1_block_number in the
// table and the l1_transaction_hash stored with it, or (0, "") when empty.
func (r *DepositRepo) LastIndexed(ctx context.Context) (uint64, string, error) {
	var row struct {
		BlockNumber int64  `db:"l1_block_number"`
		TxHash      string `db:"l1_transaction_hash"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT l1_block_number, l1_transaction_hash
		FROM optimism_deposits
		ORDER BY l1_block_number DESC
		LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("query last indexed block: %w", err)
	}
	return uint64(row.BlockNumber), row.TxHash, nil
}

// Count returns the total number of deposit rows.
func (r *DepositRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM optimism_deposits`); err != nil {
		return 0, fmt.Errorf("count deposits: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes deposits whose block timestamp is known and below
// the threshold. Rows with a null timestamp are never pruned.
func (r *DepositRepo) DeleteOlderThan(ctx context.Context, timestamp uint64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM optimism_deposits WHERE l1_block_timestamp IS NOT NULL AND l1_block_timestamp < $1`,
		int64(timestamp),
	)
	if err != nil {
		return 0, fmt.Errorf("prune deposits: %w", err)
	}
	return res.RowsAffected()
}
