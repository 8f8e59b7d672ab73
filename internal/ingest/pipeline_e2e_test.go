package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/breaker"
	"solana-copy-trader/internal/config"
	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/executor"
	"solana-copy-trader/internal/notify"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/parser"
	"solana-copy-trader/internal/pending"
	"solana-copy-trader/internal/pipeline"
	"solana-copy-trader/internal/position"
	"solana-copy-trader/internal/risk"
	"solana-copy-trader/internal/solana"
	"solana-copy-trader/internal/storage/memory"
)

// e2eAgg quotes a fixed token fill for buys and a fixed lamport fill for
// sells, keyed on the output mint.
type e2eAgg struct{}

func (e2eAgg) Quote(_ context.Context, inputMint, outputMint string, _ *big.Int, slippageBps int) (*aggregator.Quote, error) {
	out := "1000000000"
	if outputMint == domain.WrappedSOLMint {
		out = "450000000"
	}
	return &aggregator.Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		OutAmount:      out,
		PriceImpactPct: "0.001",
		SlippageBps:    slippageBps,
	}, nil
}

func (e2eAgg) Swap(context.Context, *aggregator.Quote, string, int64) (*aggregator.SwapResponse, error) {
	return nil, nil
}

type e2eChain struct {
	solana.RPCClient
	upstreamBalance *big.Int
}

func (c *e2eChain) GetMintInfo(context.Context, string) (*solana.MintInfo, error) {
	return &solana.MintInfo{Mint: intakeMint, Decimals: 6}, nil
}

func (c *e2eChain) GetTokenBalance(context.Context, string, string) (*big.Int, error) {
	return c.upstreamBalance, nil
}

// pipelineFixture is the full producer-to-book stack on memory stores:
// intake, serializer, processor, risk engine, and the dry-run executor.
type pipelineFixture struct {
	intake     *Intake
	serializer *pipeline.Serializer
	ledger     *memory.LedgerStore
	positions  *memory.PositionStore
	budget     *memory.BudgetStore
	virtual    *memory.VirtualStore
	metrics    *memory.MetricStore
	pendings   *pending.Registry
	prom       *observability.Metrics
}

func newPipelineFixture(t *testing.T, upstreamBalance *big.Int) *pipelineFixture {
	t.Helper()

	cfg := &config.Config{
		UpstreamWallet:           intakeWallet,
		CopyRatio:                0.5,
		MaxSOLPerTrade:           0.5,
		MinSOLPerTrade:           0.01,
		MaxSOLPerDay:             5.0,
		MaxOpenPositions:         10,
		SlippageBps:              300,
		MaxPriceImpactBps:        500,
		PriorityFee:              100_000,
		CooldownSeconds:          60,
		MaxFeePct:                1.0,
		MinReserveSOL:            0.05,
		SellOnSentTimeoutSeconds: 1,
		DryRun:                   true,
		DryRunFee:                config.FeeModeEstimate,
	}

	f := &pipelineFixture{
		ledger:    memory.NewLedgerStore(),
		positions: memory.NewPositionStore(),
		budget:    memory.NewBudgetStore(),
		virtual:   memory.NewVirtualStore(),
		metrics:   memory.NewMetricStore(),
		pendings:  pending.NewRegistry(),
		prom:      observability.NewMetricsWith(prometheus.NewRegistry(), "test"),
	}
	require.NoError(t, f.virtual.InitWallet(context.Background(), 10*domain.LamportsPerSOL))

	log := testLogger()
	brk := breaker.New(breaker.Config{}, log)
	cooldowns := memory.NewCooldownStore()
	chain := &e2eChain{upstreamBalance: upstreamBalance}
	engine := risk.NewEngine(cfg, f.positions, f.budget, cooldowns, f.virtual,
		chain, e2eAgg{}, brk, "", log)
	exec := executor.NewSimulator(cfg, f.virtual, f.budget, cooldowns, nil, nil, "", log)
	manager := position.NewManager(f.positions, notify.NewLogNotifier(log), log)

	proc := pipeline.NewProcessor(f.ledger, memory.NewSourceTradeStore(), f.metrics, engine,
		exec, manager, brk, f.pendings, notify.NewLogNotifier(log), nil, f.prom, log)
	f.serializer = pipeline.NewSerializer(proc, f.prom)
	f.intake = NewIntake(f.ledger, f.positions, f.pendings,
		parser.New(intakeWallet, nil, true, log), f.serializer, f.prom, log)
	return f
}

func buyRawTx(sig string) *parser.RawTransaction {
	raw := &parser.RawTransaction{Signature: sig, FeePayer: intakeWallet, Type: "SWAP"}
	raw.Events.Swap = &parser.SwapEvent{
		NativeInput: &parser.NativeAmount{Account: intakeWallet, Amount: "1000000000"},
		TokenOutputs: []parser.TokenBalance{{
			UserAccount:    intakeWallet,
			Mint:           intakeMint,
			RawTokenAmount: parser.RawTokenAmount{TokenAmount: "1000000000", Decimals: 6},
		}},
	}
	return raw
}

func sellRawTx(sig string) *parser.RawTransaction {
	raw := &parser.RawTransaction{Signature: sig, FeePayer: intakeWallet, Type: "SWAP"}
	raw.Events.Swap = &parser.SwapEvent{
		NativeOutput: &parser.NativeAmount{Account: intakeWallet, Amount: "400000000"},
		TokenInputs: []parser.TokenBalance{{
			UserAccount:    intakeWallet,
			Mint:           intakeMint,
			RawTokenAmount: parser.RawTokenAmount{TokenAmount: "300000000", Decimals: 6},
		}},
	}
	return raw
}

// A SELL observed before its BUY has been executed must be held back until
// the BUY lands, then copied proportionally against the resulting position.
func TestSellRacingBuyIsBufferedEndToEnd(t *testing.T) {
	// Upstream sold 300M of its original 1000M (700M remain).
	f := newPipelineFixture(t, big.NewInt(700_000_000))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The buy is queued before the worker starts, so the racing sell is
	// guaranteed to arrive while the buy is still pending.
	f.intake.HandleRaw(ctx, buyRawTx("sig-race-buy"), domain.SourceWebhook)

	go f.intake.HandleRaw(ctx, sellRawTx("sig-race-sell"), domain.SourceSubscription)

	// Let the sell producer enter its hold loop, then release the queue.
	time.Sleep(150 * time.Millisecond)
	f.serializer.Start(ctx)
	defer f.serializer.Stop()

	require.Eventually(t, func() bool {
		rows, err := f.metrics.List(context.Background())
		return err == nil && len(rows) == 2
	}, 8*time.Second, 50*time.Millisecond, "buy and sell did not both complete")

	rows, err := f.metrics.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "sig-race-buy", rows[0].Signature)
	assert.Equal(t, domain.OutcomeCopied, rows[0].Outcome)

	assert.Equal(t, "sig-race-sell", rows[1].Signature)
	assert.Equal(t, domain.OutcomeCopied, rows[1].Outcome)
	assert.True(t, rows[1].SellBuffered)
	assert.Greater(t, rows[1].SellBufferMs, int64(0))
	assert.LessOrEqual(t, rows[1].SellBufferMs, int64(sellBufferMax/time.Millisecond))

	// 30% exit against the 1000M position copied from the buy.
	pos, err := f.positions.Get(ctx, intakeMint)
	require.NoError(t, err)
	assert.Equal(t, "700000000", pos.BalanceRaw.String())
}

// The same webhook payload delivered repeatedly must change persisted state
// exactly once.
func TestWebhookReplayIsExactlyOnce(t *testing.T) {
	f := newPipelineFixture(t, new(big.Int))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.serializer.Start(ctx)
	defer f.serializer.Stop()

	srv := NewWebhookServer("127.0.0.1:0", f.intake, 1000, f.prom, testLogger())
	srv.Start(ctx)
	defer func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	body, err := json.Marshal(buyRawTx("sig-replay"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/enhanced", bytes.NewReader(body))
		srv.server.Handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Eventually(t, func() bool {
		rows, err := f.metrics.List(context.Background())
		return err == nil && len(rows) >= 1
	}, 5*time.Second, 50*time.Millisecond, "webhook buy did not complete")

	// Give the replayed batches time to drain before asserting.
	time.Sleep(300 * time.Millisecond)

	rows, err := f.metrics.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1, "replays must not produce extra metric rows")
	assert.Equal(t, domain.OutcomeCopied, rows[0].Outcome)

	pos, err := f.positions.Get(ctx, intakeMint)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", pos.BalanceRaw.String(), "replays must not double the position")

	trades, err := f.virtual.Trades(ctx)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	day := time.Now().UTC().Format("2006-01-02")
	charged, err := f.budget.SpentOn(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000_000), charged, "budget must be charged exactly once")
}
