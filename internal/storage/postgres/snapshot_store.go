package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert appends one PnL snapshot.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.PnLSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pnl_snapshots (
			at, cash_lamports, starting_lamports, open_positions, spent_lamports, received_lamports
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, snap.At, snap.CashLamports, snap.StartingLamports, snap.OpenPositions, snap.SpentLamports, snap.ReceivedLamports)
	if err != nil {
		return fmt.Errorf("insert pnl snapshot: %w", err)
	}
	return nil
}

// PruneBefore deletes snapshots taken before cutoff.
func (s *SnapshotStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pnl_snapshots WHERE at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune pnl snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ComparisonStore implements storage.ComparisonStore using PostgreSQL.
type ComparisonStore struct {
	pool *Pool
}

// NewComparisonStore creates a new ComparisonStore.
func NewComparisonStore(pool *Pool) *ComparisonStore {
	return &ComparisonStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ComparisonStore = (*ComparisonStore)(nil)

// Insert appends one execution comparison.
func (s *ComparisonStore) Insert(ctx context.Context, c *domain.ExecutionComparison) error {
	if c == nil || c.Signature == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO execution_comparisons (
			signature, mint, direction, quoted_lamports, real_lamports,
			quoted_token_raw, real_token_raw, fee_lamports, compute_units,
			slippage_pct, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		c.Signature, c.Mint, c.Direction, c.QuotedLamports, c.RealLamports,
		numericFromBig(c.QuotedTokenRaw), numericFromBig(c.RealTokenRaw),
		c.FeeLamports, c.ComputeUnits, c.SlippagePct, c.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution comparison: %w", err)
	}
	return nil
}
