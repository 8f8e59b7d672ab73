package domain

import (
	"math/big"
	"time"
)

// VirtualWallet is the simulated cash account used in dry-run mode.
// Invariant once reconciled: Cash = Starting + Σ received − Σ spent.
type VirtualWallet struct {
	StartingLamports int64
	CashLamports     int64
	UpdatedAt        time.Time
}

// VirtualTrade is one simulated fill.
type VirtualTrade struct {
	Signature   string
	Direction   Direction
	Mint        string
	SolLamports int64 // debited on BUY, credited on SELL (fee excluded)
	TokenRaw    *big.Int
	FeeLamports int64
	CreatedAt   time.Time
}

// VirtualHolding is the per-mint aggregate of the simulated portfolio.
type VirtualHolding struct {
	Mint             string
	SpentLamports    int64 // lifetime SOL spent buying this mint
	ReceivedLamports int64 // lifetime SOL received selling this mint
	TokenRaw         *big.Int
	UpdatedAt        time.Time
}

// PnLSnapshot is a periodic point-in-time view of the book.
type PnLSnapshot struct {
	At               time.Time
	CashLamports     int64
	StartingLamports int64
	OpenPositions    int
	SpentLamports    int64
	ReceivedLamports int64
}

// ExecutionComparison records quoted-vs-realised amounts for a live fill,
// captured a few seconds after confirmation.
type ExecutionComparison struct {
	Signature      string
	Mint           string
	Direction      Direction
	QuotedLamports int64
	RealLamports   int64
	QuotedTokenRaw *big.Int
	RealTokenRaw   *big.Int
	FeeLamports    int64
	ComputeUnits   int64
	SlippagePct    float64
	CreatedAt      time.Time
}
