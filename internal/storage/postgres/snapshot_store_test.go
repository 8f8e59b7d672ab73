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

func TestSnapshotInsertAndPrune(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := postgres.NewSnapshotStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &domain.PnLSnapshot{
		At:               time.Now().Add(-48 * time.Hour),
		CashLamports:     9_500_000_000,
		StartingLamports: 10_000_000_000,
		OpenPositions:    2,
		SpentLamports:    600_000_000,
		ReceivedLamports: 100_000_000,
	}))
	require.NoError(t, store.Insert(ctx, &domain.PnLSnapshot{
		At:               time.Now(),
		CashLamports:     9_600_000_000,
		StartingLamports: 10_000_000_000,
		OpenPositions:    1,
		SpentLamports:    600_000_000,
		ReceivedLamports: 200_000_000,
	}))

	removed, err := store.PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestSnapshotInsertNilIsInvalid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := postgres.NewSnapshotStore(pool)

	assert.ErrorIs(t, store.Insert(context.Background(), nil), storage.ErrInvalidInput)
}

func TestComparisonInsertAndDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	store := postgres.NewComparisonStore(pool)
	ctx := context.Background()

	cmp := &domain.ExecutionComparison{
		Signature:      "cmp-1",
		Mint:           "mint-a",
		Direction:      domain.DirectionBuy,
		QuotedLamports: 500_000_000,
		RealLamports:   498_000_000,
		QuotedTokenRaw: big.NewInt(1_000_000),
		RealTokenRaw:   big.NewInt(995_000),
		FeeLamports:    105_000,
		ComputeUnits:   143_221,
		SlippagePct:    0.5,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, store.Insert(ctx, cmp))
	assert.ErrorIs(t, store.Insert(ctx, cmp), storage.ErrDuplicateKey)
}
