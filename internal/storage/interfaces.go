package storage

import (
	"context"
	"time"

	"solana-copy-trader/internal/domain"
)

// LedgerStore provides access to processed_events, the idempotency ledger.
type LedgerStore interface {
	// CheckAndInsert atomically records a signature. Returns true only on
	// the first insert; every later call for the same signature returns
	// false. This is the pipeline's at-most-once primitive.
	CheckAndInsert(ctx context.Context, signature string) (bool, error)

	// Has reports whether a signature is already recorded. Read-only probe
	// for producers; it must not mark the signature processed.
	Has(ctx context.Context, signature string) (bool, error)

	// PruneBefore deletes ledger entries admitted before cutoff.
	// Returns the number of rows removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PositionStore provides access to positions, keyed by mint.
type PositionStore interface {
	// Get retrieves the position for a mint. Returns ErrNotFound if absent.
	Get(ctx context.Context, mint string) (*domain.Position, error)

	// Upsert writes a position. When expectStatus is non-empty the write
	// only applies if the stored row currently has that status; a mismatch
	// returns ErrStatusConflict.
	Upsert(ctx context.Context, p *domain.Position, expectStatus domain.PositionStatus) error

	// Delete removes the position for a mint. Deleting a missing row is not
	// an error.
	Delete(ctx context.Context, mint string) error

	// Count returns the number of open positions (any status).
	Count(ctx context.Context) (int, error)

	// List returns all positions.
	List(ctx context.Context) ([]*domain.Position, error)

	// ListStaleSent returns SENT positions last updated before cutoff.
	ListStaleSent(ctx context.Context, cutoff time.Time) ([]*domain.Position, error)
}

// BudgetStore provides access to budgets, keyed by UTC day.
type BudgetStore interface {
	// Add atomically increments the day's spent total and returns the new
	// value.
	Add(ctx context.Context, day string, lamports int64) (int64, error)

	// SpentOn returns the day's spent total, zero if absent.
	SpentOn(ctx context.Context, day string) (int64, error)
}

// CooldownStore provides access to cooldowns, keyed by mint.
type CooldownStore interface {
	// Touch records a trade for the mint at the given time.
	Touch(ctx context.Context, mint string, at time.Time) error

	// LastTrade returns the last trade time for a mint.
	// Returns ErrNotFound if the mint has never traded.
	LastTrade(ctx context.Context, mint string) (time.Time, error)
}

// MetricStore provides access to trade_pipeline_metrics.
type MetricStore interface {
	// Insert appends one pipeline metric row.
	Insert(ctx context.Context, m *domain.PipelineMetric) error

	// List returns all metric rows, oldest first.
	List(ctx context.Context) ([]*domain.PipelineMetric, error)

	// PruneBefore deletes metric rows created before cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SourceTradeStore provides access to source_trades.
type SourceTradeStore interface {
	// Insert records an admitted upstream swap. Returns ErrDuplicateKey on
	// signature collision.
	Insert(ctx context.Context, t *domain.SourceTrade) error
}

// VirtualStore provides access to the simulation ledger: virtual_wallet,
// virtual_trades, and virtual_portfolio.
type VirtualStore interface {
	// InitWallet creates the wallet row with the starting balance if it does
	// not exist yet. An existing wallet is left untouched.
	InitWallet(ctx context.Context, startingLamports int64) error

	// Wallet returns the current wallet state.
	Wallet(ctx context.Context) (*domain.VirtualWallet, error)

	// RecordTrade applies one simulated fill atomically: debits or credits
	// cash (amount plus fee for a BUY, amount minus fee for a SELL), appends
	// the trade row, and folds the fill into the per-mint holding.
	RecordTrade(ctx context.Context, t *domain.VirtualTrade) error

	// Trades returns all simulated fills, oldest first.
	Trades(ctx context.Context) ([]*domain.VirtualTrade, error)

	// Holdings returns the per-mint portfolio aggregates.
	Holdings(ctx context.Context) ([]*domain.VirtualHolding, error)
}

// SnapshotStore provides access to pnl_snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, s *domain.PnLSnapshot) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ComparisonStore provides access to execution_comparisons.
type ComparisonStore interface {
	Insert(ctx context.Context, c *domain.ExecutionComparison) error
}
