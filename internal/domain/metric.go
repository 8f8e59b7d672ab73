package domain

import "time"

// Outcome classifies how the pipeline disposed of one swap.
type Outcome string

const (
	OutcomeCopied         Outcome = "COPIED"
	OutcomeRejected       Outcome = "REJECTED"
	OutcomeFailed         Outcome = "FAILED"
	OutcomeCircuitBreaker Outcome = "CIRCUIT_BREAKER"
)

// Stable reject reason tags. They appear in metrics, alerting, and the
// circuit breaker's NO_POSITION spike detector; renaming one is a breaking
// change for dashboards.
const (
	ReasonPaused               = "PAUSED"
	ReasonCircuitBreaker       = "CIRCUIT_BREAKER"
	ReasonUnsafeParse          = "UNSAFE_PARSE"
	ReasonMaxOpenPositions     = "MAX_OPEN_POSITIONS"
	ReasonTradeTooSmall        = "TRADE_TOO_SMALL"
	ReasonBudgetExhausted      = "BUDGET_EXHAUSTED"
	ReasonCooldownActive       = "COOLDOWN_ACTIVE"
	ReasonFeeOverhead          = "FEE_OVERHEAD"
	ReasonInsufficientBalance  = "INSUFFICIENT_BALANCE"
	ReasonTokenUnsafe          = "TOKEN_UNSAFE"
	ReasonUnroutableToken      = "UNROUTABLE_TOKEN"
	ReasonPriceImpactTooHigh   = "PRICE_IMPACT_TOO_HIGH"
	ReasonPriceDriftTooHigh    = "PRICE_DRIFT_TOO_HIGH"
	ReasonNoPosition           = "NO_POSITION"
	ReasonPositionNotConfirmed = "POSITION_NOT_CONFIRMED"
	// ReasonInternal tags rejections caused by store or RPC failures rather
	// than policy, so policy dashboards stay clean.
	ReasonInternal = "INTERNAL"
)

// PipelineMetric records the disposition and timing of one signature's trip
// through the decision-execute stage. Exactly one row per admitted signature.
type PipelineMetric struct {
	Signature    string
	Direction    Direction
	Mint         string
	Source       SourceTag
	Outcome      Outcome
	RejectReason string
	SellBuffered bool
	SellBufferMs int64
	SentWaitMs   int64
	RiskMs       int64
	ExecMs       int64
	TotalMs      int64
	DriftPct     *float64 // measured price drift, nil when not computed
	UnsafeParse  bool
	CreatedAt    time.Time
}
