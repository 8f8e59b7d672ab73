// Package executor turns an approved trade plan into a fill, either against
// the chain or against the virtual ledger.
package executor

import (
	"context"
	"math/big"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/risk"
)

// Result is one completed (or broadcast) fill.
type Result struct {
	// Signature of the copy transaction: a chain signature in live mode,
	// a synthetic one in dry-run.
	Signature string

	// Lamports is the base amount spent (BUY) or received (SELL),
	// excluding fees.
	Lamports int64

	// TokenRaw is the raw token amount acquired (BUY) or disposed (SELL).
	TokenRaw *big.Int

	FeeLamports int64

	// Confirmed is true when the fill is final. The simulator always
	// confirms; a live buy is broadcast-only and confirms asynchronously
	// through Confirm.
	Confirmed bool

	// LastValidBlockHeight bounds live confirmation.
	LastValidBlockHeight uint64

	// BudgetDay is the UTC day the fill was charged against, set for live
	// BUYs so a failed confirmation can refund the reservation.
	BudgetDay string
}

// Executor is the execution collaborator used by the pipeline.
type Executor interface {
	// Execute performs the plan. Errors map to the FAILED outcome.
	Execute(ctx context.Context, d *domain.SwapDescriptor, plan *risk.TradePlan) (*Result, error)

	// Confirm blocks until a broadcast fill reaches finality. Returns
	// immediately for already-confirmed results.
	Confirm(ctx context.Context, res *Result) error

	// PostTradeCheck runs the deferred quoted-vs-real comparison for a
	// confirmed fill. No-op for simulated fills.
	PostTradeCheck(ctx context.Context, d *domain.SwapDescriptor, plan *risk.TradePlan, res *Result)

	// Rollback releases resources reserved at broadcast time for a fill
	// that failed to confirm. No-op for simulated fills.
	Rollback(ctx context.Context, plan *risk.TradePlan, res *Result)
}
