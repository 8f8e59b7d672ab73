package postgres

import (
	"context"
	"fmt"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// SourceTradeStore implements storage.SourceTradeStore using PostgreSQL.
type SourceTradeStore struct {
	pool *Pool
}

// NewSourceTradeStore creates a new SourceTradeStore.
func NewSourceTradeStore(pool *Pool) *SourceTradeStore {
	return &SourceTradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SourceTradeStore = (*SourceTradeStore)(nil)

// Insert records an admitted upstream swap.
func (s *SourceTradeStore) Insert(ctx context.Context, t *domain.SourceTrade) error {
	if t == nil || t.Signature == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_trades (
			signature, direction, mint, sol_lamports, token_raw, decimals,
			source, unsafe_parse, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		t.Signature, t.Direction, t.Mint, t.SolLamports, numericFromBig(t.TokenRaw),
		t.Decimals, t.Source, t.UnsafeParse, t.DetectedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert source trade: %w", err)
	}
	return nil
}
