package solana

import (
	"context"
	"math/big"
)

// RPCClient is the chain RPC collaborator contract used by the parser, risk
// engine, and executor. Implemented by HTTPClient; tests use stubs.
type RPCClient interface {
	// GetParsedTransaction retrieves a transaction with balance tables.
	// Returns nil when the transaction is unknown to the node.
	GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)

	// GetSignaturesForAddress retrieves the most recent signatures for an
	// address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error)

	// GetBalance returns the lamport balance of a pubkey.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenBalance returns the owner's total raw balance for a mint,
	// summed over its token accounts.
	GetTokenBalance(ctx context.Context, owner, mint string) (*big.Int, error)

	// GetMintInfo decodes the SPL mint account for a mint address.
	GetMintInfo(ctx context.Context, mint string) (*MintInfo, error)

	// SimulateTransaction runs a base64 transaction through simulate-only
	// execution and reports consumed compute units.
	SimulateTransaction(ctx context.Context, txBase64 string) (*SimulationResult, error)

	// SendRawTransaction broadcasts a base64 signed transaction with
	// preflight skipped and returns its signature.
	SendRawTransaction(ctx context.Context, txBase64 string) (string, error)

	// ConfirmTransaction waits until the signature reaches confirmed
	// commitment or the chain passes lastValidBlockHeight.
	ConfirmTransaction(ctx context.Context, signature string, lastValidBlockHeight uint64) error
}

// WSClient is the chain subscription collaborator contract.
type WSClient interface {
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)
	Healthy() bool
	Close() error
}
