package domain

import (
	"math/big"
	"time"
)

// PositionStatus is the position state-machine state.
type PositionStatus string

const (
	// PositionConfirmed means the balance is final and spendable by SELLs.
	PositionConfirmed PositionStatus = "CONFIRMED"
	// PositionSent means a live buy was broadcast but not yet confirmed;
	// PendingRaw holds the unconfirmed quantity.
	PositionSent PositionStatus = "SENT"
)

// Position is the durable per-token holding, keyed by mint.
// Invariant: BalanceRaw > 0; a zero-balance position is deleted.
type Position struct {
	Mint       string
	BalanceRaw *big.Int
	Decimals   int
	Status     PositionStatus
	PendingRaw *big.Int // unconfirmed portion of BalanceRaw while SENT
	UpdatedAt  time.Time
}

// SourceTrade is the durable record of an upstream swap admitted into the
// pipeline, written before the risk stage runs.
type SourceTrade struct {
	Signature   string
	Direction   Direction
	Mint        string
	SolLamports int64
	TokenRaw    *big.Int
	Decimals    int
	Source      SourceTag
	UnsafeParse bool
	DetectedAt  time.Time
}
