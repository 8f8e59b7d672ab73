package solana

import "math/big"

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// TokenBalance is one entry of preTokenBalances/postTokenBalances.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Decimals     int
	AmountRaw    *big.Int
}

// ParsedTransaction is the subset of a jsonParsed transaction the copy
// pipeline needs: account keys and pre/post balance tables.
type ParsedTransaction struct {
	Signature         string
	Slot              int64
	BlockTime         *int64
	Err               interface{}
	Fee               uint64
	AccountKeys       []string
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
}

// AccountIndexOf returns the index of pubkey in the transaction's account
// keys, -1 if absent.
func (t *ParsedTransaction) AccountIndexOf(pubkey string) int {
	for i, key := range t.AccountKeys {
		if key == pubkey {
			return i
		}
	}
	return -1
}

// MintInfo is the decoded SPL mint metadata used by the token-safety check.
type MintInfo struct {
	Mint            string
	Decimals        int
	Supply          string
	MintAuthority   string // empty when revoked
	FreezeAuthority string // empty when revoked
}

// SimulationResult is the outcome of simulateTransaction.
type SimulationResult struct {
	Err           interface{}
	Logs          []string
	UnitsConsumed uint64
}

// LogsFilter defines a logsSubscribe filter.
type LogsFilter struct {
	// Mentions restricts notifications to transactions mentioning these
	// addresses. Empty means all transactions.
	Mentions []string
}

// LogNotification is one logsSubscribe notification.
type LogNotification struct {
	Signature string
	Err       interface{}
	Logs      []string
	Slot      int64
}
