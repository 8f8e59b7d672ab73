package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-copy-trader/internal/storage"
)

// BudgetStore implements storage.BudgetStore using PostgreSQL.
type BudgetStore struct {
	pool *Pool
}

// NewBudgetStore creates a new BudgetStore.
func NewBudgetStore(pool *Pool) *BudgetStore {
	return &BudgetStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BudgetStore = (*BudgetStore)(nil)

// Add atomically increments the day's spent total and returns the new value.
func (s *BudgetStore) Add(ctx context.Context, day string, lamports int64) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO budgets (day, spent_lamports, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (day) DO UPDATE SET
			spent_lamports = budgets.spent_lamports + EXCLUDED.spent_lamports,
			updated_at     = now()
		RETURNING spent_lamports
	`, day, lamports).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("add budget: %w", err)
	}
	return total, nil
}

// SpentOn returns the day's spent total, zero if absent.
func (s *BudgetStore) SpentOn(ctx context.Context, day string) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT spent_lamports FROM budgets WHERE day = $1
	`, day).Scan(&total)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read budget: %w", err)
	}
	return total, nil
}

// CooldownStore implements storage.CooldownStore using PostgreSQL.
type CooldownStore struct {
	pool *Pool
}

// NewCooldownStore creates a new CooldownStore.
func NewCooldownStore(pool *Pool) *CooldownStore {
	return &CooldownStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CooldownStore = (*CooldownStore)(nil)

// Touch records a trade for the mint at the given time.
func (s *CooldownStore) Touch(ctx context.Context, mint string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cooldowns (mint, last_trade_at)
		VALUES ($1, $2)
		ON CONFLICT (mint) DO UPDATE SET last_trade_at = EXCLUDED.last_trade_at
	`, mint, at)
	if err != nil {
		return fmt.Errorf("touch cooldown: %w", err)
	}
	return nil
}

// LastTrade returns the last trade time for a mint.
func (s *CooldownStore) LastTrade(ctx context.Context, mint string) (time.Time, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT last_trade_at FROM cooldowns WHERE mint = $1
	`, mint).Scan(&at)
	if err != nil {
		if isNotFoundError(err) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("read cooldown: %w", err)
	}
	return at, nil
}
