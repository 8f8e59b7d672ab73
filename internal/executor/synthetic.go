package executor

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-copy-trader/internal/domain"
)

// syntheticSignature derives a deterministic signature-shaped id for a
// simulated fill. Formula: SHA256(source_signature|direction|mint|nanos),
// base58-encoded so it sorts and displays like a real signature.
func syntheticSignature(sourceSignature string, direction domain.Direction, mint string, nanos int64) string {
	data := fmt.Sprintf("%s|%s|%s|%d", sourceSignature, direction, mint, nanos)
	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
