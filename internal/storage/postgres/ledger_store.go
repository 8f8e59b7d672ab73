package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-copy-trader/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// CheckAndInsert atomically records a signature, returning true only on the
// first insert. ON CONFLICT DO NOTHING makes concurrent callers race-safe:
// exactly one observes a rows-affected count of 1.
func (s *LedgerStore) CheckAndInsert(ctx context.Context, signature string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO processed_events (signature, admitted_at)
		VALUES ($1, now())
		ON CONFLICT (signature) DO NOTHING
	`, signature)
	if err != nil {
		return false, fmt.Errorf("insert processed event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Has reports whether a signature is already recorded.
func (s *LedgerStore) Has(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_events WHERE signature = $1)
	`, signature).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe processed event: %w", err)
	}
	return exists, nil
}

// PruneBefore deletes ledger entries admitted before cutoff.
func (s *LedgerStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM processed_events WHERE admitted_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune processed events: %w", err)
	}
	return tag.RowsAffected(), nil
}
