package postgres_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
	"solana-copy-trader/internal/storage/postgres"
)

func TestVirtualInitWalletIsIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := postgres.NewVirtualStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InitWallet(ctx, 10_000_000_000))
	// A second init with a different value must not reset the wallet.
	require.NoError(t, store.InitWallet(ctx, 99))

	w, err := store.Wallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000_000), w.StartingLamports)
	assert.Equal(t, int64(10_000_000_000), w.CashLamports)
}

func TestVirtualRecordTradeCashIdentity(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := postgres.NewVirtualStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InitWallet(ctx, 10_000_000_000))

	require.NoError(t, store.RecordTrade(ctx, &domain.VirtualTrade{
		Signature:   "vt-buy",
		Direction:   domain.DirectionBuy,
		Mint:        "mint-a",
		SolLamports: 500_000_000,
		TokenRaw:    big.NewInt(1_000_000),
		FeeLamports: 105_000,
		CreatedAt:   time.Now(),
	}))
	require.NoError(t, store.RecordTrade(ctx, &domain.VirtualTrade{
		Signature:   "vt-sell",
		Direction:   domain.DirectionSell,
		Mint:        "mint-a",
		SolLamports: 450_000_000,
		TokenRaw:    big.NewInt(1_000_000),
		FeeLamports: 105_000,
		CreatedAt:   time.Now(),
	}))

	w, err := store.Wallet(ctx)
	require.NoError(t, err)
	// cash = starting - (buy + fee) + (sell - fee)
	want := int64(10_000_000_000) - (500_000_000 + 105_000) + (450_000_000 - 105_000)
	assert.Equal(t, want, w.CashLamports)

	trades, err := store.Trades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "vt-buy", trades[0].Signature)
	assert.Equal(t, "1000000", trades[0].TokenRaw.String())
}

func TestVirtualHoldingsAggregatePerMint(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := postgres.NewVirtualStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InitWallet(ctx, 10_000_000_000))

	require.NoError(t, store.RecordTrade(ctx, &domain.VirtualTrade{
		Signature:   "h-buy-1",
		Direction:   domain.DirectionBuy,
		Mint:        "mint-a",
		SolLamports: 100_000_000,
		TokenRaw:    big.NewInt(500),
		FeeLamports: 5_000,
		CreatedAt:   time.Now(),
	}))
	require.NoError(t, store.RecordTrade(ctx, &domain.VirtualTrade{
		Signature:   "h-buy-2",
		Direction:   domain.DirectionBuy,
		Mint:        "mint-a",
		SolLamports: 100_000_000,
		TokenRaw:    big.NewInt(300),
		FeeLamports: 5_000,
		CreatedAt:   time.Now(),
	}))
	require.NoError(t, store.RecordTrade(ctx, &domain.VirtualTrade{
		Signature:   "h-sell-1",
		Direction:   domain.DirectionSell,
		Mint:        "mint-a",
		SolLamports: 80_000_000,
		TokenRaw:    big.NewInt(200),
		FeeLamports: 5_000,
		CreatedAt:   time.Now(),
	}))

	holdings, err := store.Holdings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	h := holdings[0]
	assert.Equal(t, "mint-a", h.Mint)
	assert.Equal(t, int64(200_000_000), h.SpentLamports)
	assert.Equal(t, int64(80_000_000), h.ReceivedLamports)
	assert.Equal(t, "600", h.TokenRaw.String())
}

func TestVirtualRecordTradeRequiresWallet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := postgres.NewVirtualStore(pool)

	err := store.RecordTrade(context.Background(), &domain.VirtualTrade{
		Signature:   "vt-nowallet",
		Direction:   domain.DirectionBuy,
		Mint:        "mint-a",
		SolLamports: 1,
		TokenRaw:    big.NewInt(1),
		CreatedAt:   time.Now(),
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVirtualRecordTradeDuplicateSignature(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := postgres.NewVirtualStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InitWallet(ctx, 10_000_000_000))

	trade := &domain.VirtualTrade{
		Signature:   "vt-dup",
		Direction:   domain.DirectionBuy,
		Mint:        "mint-a",
		SolLamports: 1_000,
		TokenRaw:    big.NewInt(1),
		FeeLamports: 10,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.RecordTrade(ctx, trade))
	assert.ErrorIs(t, store.RecordTrade(ctx, trade), storage.ErrDuplicateKey)

	// The rejected duplicate must not have moved cash.
	w, err := store.Wallet(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000_000-1_010), w.CashLamports)
}
