package wallet

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRoundTripsKeypair(t *testing.T) {
	generated := solana.NewWallet()

	w, err := Load(generated.PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, generated.PublicKey().String(), w.PublicKey())
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Load("not-a-key")
	assert.Error(t, err)
}

func TestValidateAddress(t *testing.T) {
	// Freshly generated keypair pubkeys are on-curve by construction.
	assert.NoError(t, ValidateAddress(solana.NewWallet().PublicKey().String()))

	// The system program id decodes to 32 zero bytes, a valid point.
	assert.NoError(t, ValidateAddress("11111111111111111111111111111111"))

	assert.Error(t, ValidateAddress(""), "empty address")
	assert.Error(t, ValidateAddress("0OIl"), "invalid base58 alphabet")
	assert.Error(t, ValidateAddress("abc"), "too short")
}
