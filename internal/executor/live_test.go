package executor

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/config"
	"solana-copy-trader/internal/notify"
	"solana-copy-trader/internal/storage/memory"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestRollbackRefundsBudgetReservation(t *testing.T) {
	budget := memory.NewBudgetStore()
	l := NewLive(&config.Config{}, nil, nil, nil, budget, memory.NewCooldownStore(),
		nil, notify.NewLogNotifier(testLogger()), testLogger())
	ctx := context.Background()

	day := "2026-03-01"
	_, err := budget.Add(ctx, day, 500_000_000)
	require.NoError(t, err)

	l.Rollback(ctx, nil, &Result{Signature: "sig-rb", Lamports: 500_000_000, BudgetDay: day})

	spent, err := budget.SpentOn(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, spent, "failed confirmation must return the reserved spend")
}

func TestRollbackIgnoresUnreservedFills(t *testing.T) {
	budget := memory.NewBudgetStore()
	l := NewLive(&config.Config{}, nil, nil, nil, budget, memory.NewCooldownStore(),
		nil, notify.NewLogNotifier(testLogger()), testLogger())
	ctx := context.Background()

	day := "2026-03-01"
	_, err := budget.Add(ctx, day, 500_000_000)
	require.NoError(t, err)

	// A SELL result carries no budget day and must not touch the budget.
	l.Rollback(ctx, nil, &Result{Signature: "sig-sell", Lamports: 200_000_000})
	l.Rollback(ctx, nil, nil)

	spent, err := budget.SpentOn(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000_000), spent)
}
