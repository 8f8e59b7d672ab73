package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// VirtualStore implements storage.VirtualStore using PostgreSQL.
// The wallet is a single row with id=1.
type VirtualStore struct {
	pool *Pool
}

// NewVirtualStore creates a new VirtualStore.
func NewVirtualStore(pool *Pool) *VirtualStore {
	return &VirtualStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VirtualStore = (*VirtualStore)(nil)

// InitWallet creates the wallet row if it does not exist yet.
func (s *VirtualStore) InitWallet(ctx context.Context, startingLamports int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO virtual_wallet (id, starting_lamports, cash_lamports, updated_at)
		VALUES (1, $1, $1, now())
		ON CONFLICT (id) DO NOTHING
	`, startingLamports)
	if err != nil {
		return fmt.Errorf("init virtual wallet: %w", err)
	}
	return nil
}

// Wallet returns the current wallet state.
func (s *VirtualStore) Wallet(ctx context.Context) (*domain.VirtualWallet, error) {
	var w domain.VirtualWallet
	err := s.pool.QueryRow(ctx, `
		SELECT starting_lamports, cash_lamports, updated_at FROM virtual_wallet WHERE id = 1
	`).Scan(&w.StartingLamports, &w.CashLamports, &w.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read virtual wallet: %w", err)
	}
	return &w, nil
}

// RecordTrade applies one simulated fill in a single transaction.
func (s *VirtualStore) RecordTrade(ctx context.Context, t *domain.VirtualTrade) error {
	if t == nil || t.Signature == "" {
		return storage.ErrInvalidInput
	}

	// BUY: cash -= amount + fee. SELL: cash += amount - fee.
	cashDelta := -(t.SolLamports + t.FeeLamports)
	spentDelta, receivedDelta := t.SolLamports, int64(0)
	tokenDelta := numericFromBig(t.TokenRaw)
	if t.Direction == domain.DirectionSell {
		cashDelta = t.SolLamports - t.FeeLamports
		spentDelta, receivedDelta = 0, t.SolLamports
		neg := numericFromBig(t.TokenRaw)
		neg.Int.Neg(neg.Int)
		tokenDelta = neg
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE virtual_wallet SET
			cash_lamports = cash_lamports + $1,
			updated_at    = now()
		WHERE id = 1
	`, cashDelta)
	if err != nil {
		return fmt.Errorf("update virtual cash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO virtual_trades (
			signature, direction, mint, sol_lamports, token_raw, fee_lamports, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.Signature, t.Direction, t.Mint, t.SolLamports, numericFromBig(t.TokenRaw), t.FeeLamports, t.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert virtual trade: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO virtual_portfolio (mint, spent_lamports, received_lamports, token_raw, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (mint) DO UPDATE SET
			spent_lamports    = virtual_portfolio.spent_lamports + EXCLUDED.spent_lamports,
			received_lamports = virtual_portfolio.received_lamports + EXCLUDED.received_lamports,
			token_raw         = virtual_portfolio.token_raw + EXCLUDED.token_raw,
			updated_at        = now()
	`, t.Mint, spentDelta, receivedDelta, tokenDelta)
	if err != nil {
		return fmt.Errorf("update virtual portfolio: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Trades returns all simulated fills, oldest first.
func (s *VirtualStore) Trades(ctx context.Context) ([]*domain.VirtualTrade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT signature, direction, mint, sol_lamports, token_raw, fee_lamports, created_at
		FROM virtual_trades
		ORDER BY created_at ASC, signature ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list virtual trades: %w", err)
	}
	defer rows.Close()

	return scanVirtualTrades(rows)
}

// Holdings returns the per-mint portfolio aggregates.
func (s *VirtualStore) Holdings(ctx context.Context) ([]*domain.VirtualHolding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT mint, spent_lamports, received_lamports, token_raw, updated_at
		FROM virtual_portfolio
		ORDER BY mint
	`)
	if err != nil {
		return nil, fmt.Errorf("list virtual holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*domain.VirtualHolding
	for rows.Next() {
		var (
			h   domain.VirtualHolding
			raw pgtype.Numeric
		)
		if err := rows.Scan(&h.Mint, &h.SpentLamports, &h.ReceivedLamports, &raw, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan holding row: %w", err)
		}
		if h.TokenRaw, err = bigFromNumeric(raw); err != nil {
			return nil, fmt.Errorf("decode holding token_raw: %w", err)
		}
		holdings = append(holdings, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holding rows: %w", err)
	}
	return holdings, nil
}

func scanVirtualTrades(rows pgx.Rows) ([]*domain.VirtualTrade, error) {
	var trades []*domain.VirtualTrade
	for rows.Next() {
		var (
			t   domain.VirtualTrade
			raw pgtype.Numeric
		)
		if err := rows.Scan(&t.Signature, &t.Direction, &t.Mint, &t.SolLamports, &raw, &t.FeeLamports, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan virtual trade row: %w", err)
		}
		var err error
		if t.TokenRaw, err = bigFromNumeric(raw); err != nil {
			return nil, fmt.Errorf("decode trade token_raw: %w", err)
		}
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate virtual trade rows: %w", err)
	}
	return trades, nil
}
