package parser

import (
	"context"
	"math/big"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/solana"
)

const (
	testWallet = "DfMxre4cKmvogbLrPigxmibVTTQDuzjdXojWzjCXXhzj"
	otherUser  = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	memeMint   = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	smallMint  = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// stubRPC serves canned parsed transactions for the balance-delta path.
type stubRPC struct {
	solana.RPCClient
	txs map[string]*solana.ParsedTransaction
}

func (s *stubRPC) GetParsedTransaction(ctx context.Context, signature string) (*solana.ParsedTransaction, error) {
	return s.txs[signature], nil
}

func swapEventTx(sig string, nativeIn, nativeOut string, inputs, outputs []TokenBalance) *RawTransaction {
	raw := &RawTransaction{Signature: sig, FeePayer: testWallet, Type: "SWAP"}
	raw.Events.Swap = &SwapEvent{TokenInputs: inputs, TokenOutputs: outputs}
	if nativeIn != "" {
		raw.Events.Swap.NativeInput = &NativeAmount{Account: testWallet, Amount: nativeIn}
	}
	if nativeOut != "" {
		raw.Events.Swap.NativeOutput = &NativeAmount{Account: testWallet, Amount: nativeOut}
	}
	return raw
}

func tokenLeg(user, mint, raw string, decimals int) TokenBalance {
	return TokenBalance{
		UserAccount:    user,
		Mint:           mint,
		RawTokenAmount: RawTokenAmount{TokenAmount: raw, Decimals: decimals},
	}
}

func TestParseSwapEventBuy(t *testing.T) {
	p := New(testWallet, nil, true, testLogger())

	raw := swapEventTx("sig-buy", "1500000000", "",
		nil,
		[]TokenBalance{tokenLeg(testWallet, memeMint, "420000000000", 6)},
	)

	desc, ok := p.Parse(context.Background(), raw, domain.SourceWebhook)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionBuy, desc.Direction)
	assert.Equal(t, memeMint, desc.Mint)
	assert.Equal(t, int64(1_500_000_000), desc.SolLamports)
	assert.Equal(t, "420000000000", desc.TokenRaw.String())
	assert.Equal(t, 6, desc.Decimals)
	assert.False(t, desc.UnsafeParse)
}

func TestParseSwapEventSell(t *testing.T) {
	p := New(testWallet, nil, true, testLogger())

	raw := swapEventTx("sig-sell", "", "800000000",
		[]TokenBalance{tokenLeg(testWallet, memeMint, "210000000000", 6)},
		nil,
	)

	desc, ok := p.Parse(context.Background(), raw, domain.SourceWebhook)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionSell, desc.Direction)
	assert.Equal(t, memeMint, desc.Mint)
	assert.Equal(t, int64(800_000_000), desc.SolLamports)
}

func TestParseSwapEventBelowNoiseFloor(t *testing.T) {
	p := New(testWallet, nil, true, testLogger())

	// 49,999 lamports is below the floor; 50,000 is exactly at it.
	raw := swapEventTx("sig-dust", "49999", "",
		nil,
		[]TokenBalance{tokenLeg(testWallet, memeMint, "1000000", 6)},
	)
	_, ok := p.Parse(context.Background(), raw, domain.SourceWebhook)
	assert.False(t, ok)

	raw = swapEventTx("sig-floor", "50000", "",
		nil,
		[]TokenBalance{tokenLeg(testWallet, memeMint, "1000000", 6)},
	)
	_, ok = p.Parse(context.Background(), raw, domain.SourceWebhook)
	assert.True(t, ok)
}

func TestParseSwapEventCanonicalLegSelection(t *testing.T) {
	p := New(testWallet, nil, true, testLogger())

	// Intermediate mints and other users' legs are filtered; among the
	// wallet's remaining legs the largest absolute amount wins.
	raw := swapEventTx("sig-multi", "2000000000", "",
		nil,
		[]TokenBalance{
			tokenLeg(testWallet, domain.USDCMint, "999999999999", 6),
			tokenLeg(otherUser, memeMint, "888888888888", 6),
			tokenLeg(testWallet, smallMint, "100", 6),
			tokenLeg(testWallet, memeMint, "500000", 6),
		},
	)

	desc, ok := p.Parse(context.Background(), raw, domain.SourceWebhook)
	require.True(t, ok)
	assert.Equal(t, memeMint, desc.Mint)
}

func TestParseSwapEventIntermediatesAllowedWhenUnrestricted(t *testing.T) {
	p := New(testWallet, nil, false, testLogger())

	// Same legs as the restricted case, but with the intermediate filter
	// off the USDC leg is the largest and becomes canonical.
	raw := swapEventTx("sig-unrestricted", "2000000000", "",
		nil,
		[]TokenBalance{
			tokenLeg(testWallet, domain.USDCMint, "999999999999", 6),
			tokenLeg(testWallet, memeMint, "500000", 6),
		},
	)

	desc, ok := p.Parse(context.Background(), raw, domain.SourceWebhook)
	require.True(t, ok)
	assert.Equal(t, domain.USDCMint, desc.Mint)
}

func TestParseSwapEventTieKeepsFirstSeen(t *testing.T) {
	p := New(testWallet, nil, true, testLogger())

	raw := swapEventTx("sig-tie", "2000000000", "",
		nil,
		[]TokenBalance{
			tokenLeg(testWallet, memeMint, "500000", 6),
			tokenLeg(testWallet, smallMint, "500000", 6),
		},
	)

	desc, ok := p.Parse(context.Background(), raw, domain.SourceWebhook)
	require.True(t, ok)
	assert.Equal(t, memeMint, desc.Mint)
}

func TestParseSkipsFailedTransaction(t *testing.T) {
	p := New(testWallet, nil, true, testLogger())

	raw := swapEventTx("sig-err", "1500000000", "",
		nil,
		[]TokenBalance{tokenLeg(testWallet, memeMint, "420000000000", 6)},
	)
	raw.TransactionError = map[string]interface{}{"InstructionError": []interface{}{0}}

	_, ok := p.Parse(context.Background(), raw, domain.SourceWebhook)
	assert.False(t, ok)
}

func TestParseBalanceDeltasBuy(t *testing.T) {
	rpc := &stubRPC{txs: map[string]*solana.ParsedTransaction{
		"sig-bd": {
			Signature:    "sig-bd",
			Fee:          5000,
			AccountKeys:  []string{testWallet, otherUser},
			PreBalances:  []uint64{10_000_000_000, 1_000_000},
			PostBalances: []uint64{8_999_995_000, 1_000_000},
			PreTokenBalances: []solana.TokenBalance{
				{Mint: memeMint, Owner: testWallet, Decimals: 6, AmountRaw: big.NewInt(0)},
			},
			PostTokenBalances: []solana.TokenBalance{
				{Mint: memeMint, Owner: testWallet, Decimals: 6, AmountRaw: big.NewInt(350_000_000)},
			},
		},
	}}
	p := New(testWallet, rpc, true, testLogger())

	desc, ok := p.ParseSignature(context.Background(), "sig-bd", domain.SourceSubscription)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionBuy, desc.Direction)
	assert.Equal(t, memeMint, desc.Mint)
	// Fee payer delta has the 5000-lamport fee stripped.
	assert.Equal(t, int64(1_000_000_000), desc.SolLamports)
	assert.Equal(t, "350000000", desc.TokenRaw.String())
	assert.False(t, desc.UnsafeParse)
}

func TestParseBalanceDeltasRejectsMatchingSigns(t *testing.T) {
	// Base went down but the token balance also went down: not a swap by
	// the wallet (e.g. it funded someone else's trade).
	rpc := &stubRPC{txs: map[string]*solana.ParsedTransaction{
		"sig-signs": {
			Signature:    "sig-signs",
			Fee:          5000,
			AccountKeys:  []string{testWallet},
			PreBalances:  []uint64{10_000_000_000},
			PostBalances: []uint64{8_999_995_000},
			PreTokenBalances: []solana.TokenBalance{
				{Mint: memeMint, Owner: testWallet, Decimals: 6, AmountRaw: big.NewInt(500)},
			},
			PostTokenBalances: []solana.TokenBalance{
				{Mint: memeMint, Owner: testWallet, Decimals: 6, AmountRaw: big.NewInt(100)},
			},
		},
	}}
	p := New(testWallet, rpc, true, testLogger())

	_, ok := p.ParseSignature(context.Background(), "sig-signs", domain.SourceSubscription)
	assert.False(t, ok)
}

func TestParseBalanceDeltasPureTransferIgnored(t *testing.T) {
	// Fee-only delta after stripping: below the noise floor.
	rpc := &stubRPC{txs: map[string]*solana.ParsedTransaction{
		"sig-xfer": {
			Signature:    "sig-xfer",
			Fee:          5000,
			AccountKeys:  []string{testWallet, otherUser},
			PreBalances:  []uint64{10_000_000_000, 0},
			PostBalances: []uint64{9_999_995_000, 0},
		},
	}}
	p := New(testWallet, rpc, true, testLogger())

	_, ok := p.ParseSignature(context.Background(), "sig-xfer", domain.SourcePoll)
	assert.False(t, ok)
}

func TestParseTransferListFallback(t *testing.T) {
	p := New(testWallet, nil, true, testLogger())

	raw := &RawTransaction{
		Signature: "sig-tl",
		FeePayer:  testWallet,
		TokenTransfers: []TokenTransfer{
			{FromUserAccount: otherUser, ToUserAccount: testWallet, Mint: memeMint, TokenAmount: 1234.5},
		},
		NativeTransfers: []NativeTransfer{
			{FromUserAccount: testWallet, ToUserAccount: otherUser, Amount: 750_000_000},
		},
	}

	desc, ok := p.Parse(context.Background(), raw, domain.SourceWebhook)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionBuy, desc.Direction)
	assert.Equal(t, memeMint, desc.Mint)
	assert.Equal(t, int64(750_000_000), desc.SolLamports)
	assert.True(t, desc.UnsafeParse)
	assert.Equal(t, unsafeDecimals, desc.Decimals)
	// 1234.5 at 6 assumed decimals.
	assert.Equal(t, "1234500000", desc.TokenRaw.String())
}

func TestParseTransferListUsesAccountDataWhenNoNativeTransfers(t *testing.T) {
	p := New(testWallet, nil, true, testLogger())

	raw := &RawTransaction{
		Signature: "sig-ad",
		TokenTransfers: []TokenTransfer{
			{FromUserAccount: testWallet, ToUserAccount: otherUser, Mint: memeMint, TokenAmount: 50},
		},
		AccountData: []AccountData{
			{Account: testWallet, NativeBalanceChange: 600_000_000},
		},
	}

	desc, ok := p.Parse(context.Background(), raw, domain.SourceWebhook)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionSell, desc.Direction)
	assert.Equal(t, int64(600_000_000), desc.SolLamports)
	assert.True(t, desc.UnsafeParse)
}

func TestParseNonSwapReturnsFalse(t *testing.T) {
	p := New(testWallet, nil, true, testLogger())

	_, ok := p.Parse(context.Background(), &RawTransaction{Signature: "sig-none"}, domain.SourceWebhook)
	assert.False(t, ok)
}
