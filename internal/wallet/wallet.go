package wallet

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet holds the bot keypair used to sign outgoing transactions.
type Wallet struct {
	key solana.PrivateKey
}

// Load parses a base58-encoded 64-byte private key.
func Load(privateKeyBase58 string) (*Wallet, error) {
	key, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if !key.IsValid() {
		return nil, fmt.Errorf("private key is not on the ed25519 curve")
	}
	return &Wallet{key: key}, nil
}

// PublicKey returns the wallet's base58 public key.
func (w *Wallet) PublicKey() string {
	return w.key.PublicKey().String()
}

// SignTransaction signs a deserialized transaction in place with the wallet
// key and returns its serialized bytes.
func (w *Wallet) SignTransaction(tx *solana.Transaction) ([]byte, error) {
	_, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return raw, nil
}

// ValidateAddress checks that an address is a base58-encoded 32-byte ed25519
// point on the curve. Used to validate configured wallet addresses at
// startup; off-curve program-derived addresses are rejected.
func ValidateAddress(address string) error {
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("address must be 32 bytes, got %d", len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("address is not a valid ed25519 point: %w", err)
	}
	return nil
}
