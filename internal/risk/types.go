package risk

import (
	"math/big"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/domain"
)

// TradePlan is the approved execution order handed to the executor. The
// embedded quote is the one the executor must use; it is never re-fetched.
type TradePlan struct {
	Direction domain.Direction
	Mint      string
	Decimals  int

	// SpendLamports is the base amount to swap on a BUY.
	SpendLamports int64
	// SellTokenRaw is the raw token amount to swap on a SELL.
	SellTokenRaw *big.Int

	Quote *aggregator.Quote
	// QuoteOutRaw is the parsed quote output amount.
	QuoteOutRaw *big.Int

	// EstimatedFeeLamports from the adaptive fee guard, reused by the
	// simulated executor in ESTIMATE mode.
	EstimatedFeeLamports int64
	// NewToken is true when no position existed before this trade.
	NewToken bool
}

// Verdict is the outcome of the risk evaluation.
type Verdict struct {
	Approved bool
	// Reason is the stable reject tag, empty when approved.
	Reason string
	Plan   *TradePlan

	// DriftPct is the measured price drift when computed, approved or not.
	DriftPct *float64
	// SentWaitMs is time spent polling for a SENT position to confirm.
	SentWaitMs int64
}

func reject(reason string) Verdict {
	return Verdict{Reason: reason}
}
