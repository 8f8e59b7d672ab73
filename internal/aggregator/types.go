package aggregator

import "encoding/json"

// Quote is the aggregator's routing answer for one swap. Amounts are raw
// minor units carried as decimal strings, matching the wire format.
type Quote struct {
	InputMint      string          `json:"inputMint"`
	OutputMint     string          `json:"outputMint"`
	InAmount       string          `json:"inAmount"`
	OutAmount      string          `json:"outAmount"`
	PriceImpactPct string          `json:"priceImpactPct"`
	SlippageBps    int             `json:"slippageBps"`
	RoutePlan      json.RawMessage `json:"routePlan"`
}

// SwapResponse carries the prebuilt unsigned transaction for a quote.
type SwapResponse struct {
	SwapTransaction      string `json:"swapTransaction"` // base64
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// swapRequest is the body of the swap endpoint.
type swapRequest struct {
	QuoteResponse             *Quote `json:"quoteResponse"`
	UserPublicKey             string `json:"userPublicKey"`
	WrapAndUnwrapSol          bool   `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports int64  `json:"prioritizationFeeLamports,omitempty"`
}
