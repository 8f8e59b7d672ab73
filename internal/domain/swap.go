package domain

import (
	"math/big"
	"time"
)

// Direction of a swap relative to the upstream wallet.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// SourceTag identifies which ingestion producer detected a swap.
type SourceTag string

const (
	SourceWebhook         SourceTag = "webhook"
	SourceWebhookFallback SourceTag = "webhook-fallback"
	SourceSubscription    SourceTag = "subscription"
	SourcePoll            SourceTag = "poll"
)

// SwapDescriptor is the canonical in-flight representation of one upstream
// swap. It is ephemeral: produced by the parser, consumed by the pipeline,
// never persisted as-is (source_trades keeps the durable copy).
type SwapDescriptor struct {
	Signature   string
	Direction   Direction
	Mint        string
	SolLamports int64    // base asset the upstream paid (BUY) or received (SELL)
	TokenRaw    *big.Int // raw token amount, native decimals
	Decimals    int
	Source      SourceTag
	UnsafeParse bool // decimals were approximated from a UI amount
	DetectedAt  time.Time
}

// LamportsPerSOL is the base-asset minor-unit scale (9 decimals).
const LamportsPerSOL = 1_000_000_000

// MinSwapLamports is the parser's noise floor: net base-asset movements
// below this are not considered swaps.
const MinSwapLamports = 50_000

// Well-known mints that must never be selected as the canonical swap token.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	MSOLMint       = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"
	JitoSOLMint    = "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn"
	BSOLMint       = "bSo13r4TkiE4KumL71LsHTPpL2euBYLFx6h9HP3piy1"
	StSOLMint      = "7dHbWXmci3dT8UFYWYZweBLXgycu7Y3iL6trKn1Y7ARj"
)

// IntermediateMints is the fixed set of wrapped-base, stablecoin, and
// staked-base mints excluded from canonical token selection.
var IntermediateMints = map[string]bool{
	WrappedSOLMint: true,
	USDCMint:       true,
	USDTMint:       true,
	MSOLMint:       true,
	JitoSOLMint:    true,
	BSOLMint:       true,
	StSOLMint:      true,
}

// IsIntermediateMint reports whether mint belongs to the intermediate set.
func IsIntermediateMint(mint string) bool {
	return IntermediateMints[mint]
}
