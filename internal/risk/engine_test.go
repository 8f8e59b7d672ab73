package risk

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/breaker"
	"solana-copy-trader/internal/config"
	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/solana"
	"solana-copy-trader/internal/storage"
	"solana-copy-trader/internal/storage/memory"
)

const (
	upstreamWallet = "DfMxre4cKmvogbLrPigxmibVTTQDuzjdXojWzjCXXhzj"
	testMint       = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testConfig() *config.Config {
	return &config.Config{
		UpstreamWallet:            upstreamWallet,
		CopyRatio:                 0.5,
		MaxSOLPerTrade:            0.5,
		MinSOLPerTrade:            0.01,
		MaxSOLPerDay:              5.0,
		MaxOpenPositions:          10,
		SlippageBps:               300,
		MaxPriceImpactBps:         500,
		PriorityFee:               100_000,
		CooldownSeconds:           60,
		MaxFeePct:                 1.0,
		MinReserveSOL:             0.05,
		MaxPriceDriftPct:          20,
		DisableDriftGuardOnUnsafe: true,
		SellOnSentTimeoutSeconds:  10,
		DryRun:                    true,
	}
}

// stubAgg answers quotes from a queue, nil entries meaning "no route".
type stubAgg struct {
	quotes []*aggregator.Quote
	calls  int
}

func (s *stubAgg) Quote(_ context.Context, _, _ string, _ *big.Int, _ int) (*aggregator.Quote, error) {
	s.calls++
	if len(s.quotes) == 0 {
		return nil, nil
	}
	q := s.quotes[0]
	s.quotes = s.quotes[1:]
	return q, nil
}

func (s *stubAgg) Swap(context.Context, *aggregator.Quote, string, int64) (*aggregator.SwapResponse, error) {
	return nil, nil
}

// stubChain answers the engine's chain lookups.
type stubChain struct {
	solana.RPCClient
	mintInfo        *solana.MintInfo
	upstreamBalance *big.Int
	balanceErr      error
}

func (s *stubChain) GetMintInfo(context.Context, string) (*solana.MintInfo, error) {
	if s.mintInfo == nil {
		return &solana.MintInfo{Mint: testMint, Decimals: 6}, nil
	}
	return s.mintInfo, nil
}

func (s *stubChain) GetTokenBalance(context.Context, string, string) (*big.Int, error) {
	return s.upstreamBalance, s.balanceErr
}

func (s *stubChain) GetBalance(context.Context, string) (uint64, error) {
	return 0, nil
}

func goodQuote(outAmount string) *aggregator.Quote {
	return &aggregator.Quote{
		InputMint:      domain.WrappedSOLMint,
		OutputMint:     testMint,
		OutAmount:      outAmount,
		PriceImpactPct: "0.001",
	}
}

type engineFixture struct {
	engine    *Engine
	cfg       *config.Config
	positions *memory.PositionStore
	budget    *memory.BudgetStore
	cooldowns *memory.CooldownStore
	virtual   *memory.VirtualStore
	agg       *stubAgg
	chain     *stubChain
	now       time.Time
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		cfg:       testConfig(),
		positions: memory.NewPositionStore(),
		budget:    memory.NewBudgetStore(),
		cooldowns: memory.NewCooldownStore(),
		virtual:   memory.NewVirtualStore(),
		agg:       &stubAgg{quotes: []*aggregator.Quote{goodQuote("1000000000")}},
		chain:     &stubChain{},
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.virtual.InitWallet(context.Background(), 10*domain.LamportsPerSOL))

	brk := breaker.New(breaker.Config{}, testLogger())
	f.engine = NewEngine(f.cfg, f.positions, f.budget, f.cooldowns, f.virtual,
		f.chain, f.agg, brk, "", testLogger())
	f.engine.now = func() time.Time { return f.now }
	f.engine.sleep = func(context.Context, time.Duration) error { return nil }
	return f
}

func buyDescriptor(lamports int64, tokenRaw int64) *domain.SwapDescriptor {
	return &domain.SwapDescriptor{
		Signature:   "sig-1",
		Direction:   domain.DirectionBuy,
		Mint:        testMint,
		SolLamports: lamports,
		TokenRaw:    big.NewInt(tokenRaw),
		Decimals:    6,
		Source:      domain.SourceWebhook,
	}
}

func sellDescriptor(lamports int64, tokenRaw int64) *domain.SwapDescriptor {
	d := buyDescriptor(lamports, tokenRaw)
	d.Direction = domain.DirectionSell
	return d
}

func TestBuyApproved(t *testing.T) {
	f := newFixture(t)

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	require.True(t, v.Approved, "reason: %s", v.Reason)
	require.NotNil(t, v.Plan)
	// 1 SOL upstream at ratio 0.5, within the per-trade cap.
	assert.Equal(t, int64(domain.LamportsPerSOL/2), v.Plan.SpendLamports)
	assert.True(t, v.Plan.NewToken)
	assert.Equal(t, "1000000000", v.Plan.QuoteOutRaw.String())
}

func TestBuySizeCappedAtMaxPerTrade(t *testing.T) {
	f := newFixture(t)

	// 10 SOL upstream: ratio gives 5 SOL, cap brings it down to 0.5.
	v := f.engine.Evaluate(context.Background(), buyDescriptor(10*domain.LamportsPerSOL, 1_000_000_000))
	require.True(t, v.Approved, "reason: %s", v.Reason)
	assert.Equal(t, f.cfg.MaxPerTradeLamports(), v.Plan.SpendLamports)
}

func TestBuyRejectedWhenPaused(t *testing.T) {
	f := newFixture(t)
	f.cfg.PauseTrading = true

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.False(t, v.Approved)
	assert.Equal(t, domain.ReasonPaused, v.Reason)
}

func TestBuyRejectedWhenBreakerOpen(t *testing.T) {
	f := newFixture(t)
	brk := breaker.New(breaker.Config{FailRatePct: 50, Window: 10 * time.Minute}, testLogger())
	brk.Record(breaker.KindFailed, 0)
	brk.Record(breaker.KindFailed, 0)
	brk.Record(breaker.KindFailed, 0)
	f.engine.brk = brk

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.Equal(t, domain.ReasonCircuitBreaker, v.Reason)
}

func TestBuyRejectedOnUnsafeParse(t *testing.T) {
	f := newFixture(t)

	d := buyDescriptor(domain.LamportsPerSOL, 1_000_000_000)
	d.UnsafeParse = true

	v := f.engine.Evaluate(context.Background(), d)
	assert.Equal(t, domain.ReasonUnsafeParse, v.Reason)
	assert.Zero(t, f.agg.calls, "no quote should be fetched for a gated trade")
}

func TestBuyRejectedAtMaxOpenPositions(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxOpenPositions = 1
	require.NoError(t, f.positions.Upsert(context.Background(), &domain.Position{
		Mint:       "othermint",
		BalanceRaw: big.NewInt(100),
		Status:     domain.PositionConfirmed,
	}, ""))

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.Equal(t, domain.ReasonMaxOpenPositions, v.Reason)
}

// failingCountStore simulates a position store whose Count call errors.
type failingCountStore struct {
	storage.PositionStore
}

func (failingCountStore) Count(context.Context) (int, error) {
	return 0, errors.New("connection refused")
}

func TestBuyStoreErrorRejectedAsInternal(t *testing.T) {
	f := newFixture(t)
	f.engine.positions = failingCountStore{PositionStore: f.positions}

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.False(t, v.Approved)
	assert.Equal(t, domain.ReasonInternal, v.Reason,
		"store failures must not masquerade as policy rejections")
}

func TestBuyRejectedBelowMinFloor(t *testing.T) {
	f := newFixture(t)

	// 0.015 SOL upstream scales to 0.0075, under the 0.01 floor.
	v := f.engine.Evaluate(context.Background(), buyDescriptor(15_000_000, 1_000_000))
	assert.Equal(t, domain.ReasonTradeTooSmall, v.Reason)
}

func TestBuyShrinksToRemainingBudget(t *testing.T) {
	f := newFixture(t)

	day := f.now.UTC().Format("2006-01-02")
	_, err := f.budget.Add(context.Background(), day, f.cfg.MaxPerDayLamports()-200_000_000)
	require.NoError(t, err)

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	require.True(t, v.Approved, "reason: %s", v.Reason)
	assert.Equal(t, int64(200_000_000), v.Plan.SpendLamports)
}

func TestBuyRejectedWhenBudgetExhausted(t *testing.T) {
	f := newFixture(t)

	day := f.now.UTC().Format("2006-01-02")
	_, err := f.budget.Add(context.Background(), day, f.cfg.MaxPerDayLamports()-1_000_000)
	require.NoError(t, err)

	// Remaining 0.001 SOL is under the per-trade floor.
	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.Equal(t, domain.ReasonBudgetExhausted, v.Reason)
}

func TestBuyRejectedDuringCooldown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cooldowns.Touch(context.Background(), testMint, f.now.Add(-30*time.Second)))

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.Equal(t, domain.ReasonCooldownActive, v.Reason)
}

func TestBuyAllowedAfterCooldownExpires(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cooldowns.Touch(context.Background(), testMint, f.now.Add(-61*time.Second)))

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.True(t, v.Approved, "reason: %s", v.Reason)
}

func TestFeeOverheadTiers(t *testing.T) {
	// Fee for an existing token: 5,000 base + 100,000 priority = 105,000.
	// The threshold scales with trade size: 1% at >= 0.5 SOL, 2% in
	// [0.1, 0.5), 3% below.
	cases := []struct {
		name   string
		spend  int64
		fee    int64
		reject bool
	}{
		{"large trade under 1pct", 500_000_000, 105_000, false},
		{"mid trade under 2pct", 100_000_000, 105_000, false},
		{"small trade under 3pct", 30_000_000, 105_000, false},
		{"small trade over 3pct", 30_000_000, 2_144_280, true},
		{"mid trade over 2pct", 100_000_000, 2_144_280, true},
	}

	f := newFixture(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := f.engine.checkFeeOverhead(tc.spend, tc.fee)
			if tc.reject {
				require.NotNil(t, v)
				assert.Equal(t, domain.ReasonFeeOverhead, v.Reason)
			} else {
				assert.Nil(t, v)
			}
		})
	}
}

func TestEstimateFeeIncludesRentForNewToken(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, int64(105_000), f.engine.EstimateFee(false))
	assert.Equal(t, int64(105_000+ATARentLamports), f.engine.EstimateFee(true))
}

func TestBuyRejectedOnInsufficientVirtualBalance(t *testing.T) {
	f := newFixture(t)

	// Drain virtual cash below spend + fee + reserve.
	require.NoError(t, f.virtual.RecordTrade(context.Background(), &domain.VirtualTrade{
		Signature:   "drain",
		Direction:   domain.DirectionBuy,
		Mint:        "othermint",
		SolLamports: 10*domain.LamportsPerSOL - 400_000_000,
		TokenRaw:    big.NewInt(1),
	}))

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.Equal(t, domain.ReasonInsufficientBalance, v.Reason)
}

func TestBuyRejectedOnMintAuthority(t *testing.T) {
	f := newFixture(t)
	f.cfg.BlockIfMintAuthority = true
	f.chain.mintInfo = &solana.MintInfo{Mint: testMint, MintAuthority: "somekey"}

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.Equal(t, domain.ReasonTokenUnsafe, v.Reason)
}

func TestBuyRejectedOnFreezeAuthority(t *testing.T) {
	f := newFixture(t)
	f.cfg.BlockIfFreezeAuthority = true
	f.chain.mintInfo = &solana.MintInfo{Mint: testMint, FreezeAuthority: "somekey"}

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.Equal(t, domain.ReasonTokenUnsafe, v.Reason)
}

func TestBuyQuoteRetriesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.agg.quotes = nil

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.Equal(t, domain.ReasonUnroutableToken, v.Reason)
	assert.Equal(t, 2, f.agg.calls)
}

func TestBuyQuoteSucceedsOnRetry(t *testing.T) {
	f := newFixture(t)
	f.agg.quotes = []*aggregator.Quote{nil, goodQuote("1000000000")}

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.True(t, v.Approved, "reason: %s", v.Reason)
	assert.Equal(t, 2, f.agg.calls)
}

func TestBuyRejectedOnPriceImpact(t *testing.T) {
	f := newFixture(t)
	q := goodQuote("1000000000")
	q.PriceImpactPct = "0.06" // 600 bps > 500 cap
	f.agg.quotes = []*aggregator.Quote{q}

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.Equal(t, domain.ReasonPriceImpactTooHigh, v.Reason)
}

func TestBuyRejectedOnPriceDrift(t *testing.T) {
	f := newFixture(t)
	// Upstream paid 1 SOL for 1e9 raw tokens. Our quote returns only
	// 0.25e9 raw for the 0.5 SOL spend, so the quoted price is double
	// the upstream price: drift 100% against a 20% threshold.
	f.agg.quotes = []*aggregator.Quote{goodQuote("250000000")}

	v := f.engine.Evaluate(context.Background(), buyDescriptor(domain.LamportsPerSOL, 1_000_000_000))
	assert.Equal(t, domain.ReasonPriceDriftTooHigh, v.Reason)
	require.NotNil(t, v.DriftPct)
	assert.InDelta(t, 100.0, *v.DriftPct, 0.01)
}

func TestBuyDriftGuardSkippedForUnsafeParse(t *testing.T) {
	f := newFixture(t)
	f.cfg.AllowUnsafeParseTrades = true
	f.agg.quotes = []*aggregator.Quote{goodQuote("250000000")}

	d := buyDescriptor(domain.LamportsPerSOL, 1_000_000_000)
	d.UnsafeParse = true

	v := f.engine.Evaluate(context.Background(), d)
	assert.True(t, v.Approved, "reason: %s", v.Reason)
	assert.Nil(t, v.DriftPct)
}

func TestSellRejectedWithoutPosition(t *testing.T) {
	f := newFixture(t)

	v := f.engine.Evaluate(context.Background(), sellDescriptor(domain.LamportsPerSOL, 300_000_000))
	assert.Equal(t, domain.ReasonNoPosition, v.Reason)
}

func TestSellProportionalSizing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.positions.Upsert(context.Background(), &domain.Position{
		Mint:       testMint,
		BalanceRaw: big.NewInt(100_000_000),
		Decimals:   6,
		Status:     domain.PositionConfirmed,
	}, ""))
	// Upstream sold 300 of its original 1000 (700 remain).
	f.chain.upstreamBalance = big.NewInt(700_000_000)
	f.agg.quotes = []*aggregator.Quote{{
		InputMint:      testMint,
		OutputMint:     domain.WrappedSOLMint,
		OutAmount:      "150000000",
		PriceImpactPct: "0.001",
	}}

	v := f.engine.Evaluate(context.Background(), sellDescriptor(domain.LamportsPerSOL, 300_000_000))
	require.True(t, v.Approved, "reason: %s", v.Reason)
	// 30% of our 100M balance.
	assert.Equal(t, "30000000", v.Plan.SellTokenRaw.String())
	assert.Equal(t, domain.DirectionSell, v.Plan.Direction)
}

func TestSellFullExitWhenUpstreamBalanceUnknown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.positions.Upsert(context.Background(), &domain.Position{
		Mint:       testMint,
		BalanceRaw: big.NewInt(100_000_000),
		Decimals:   6,
		Status:     domain.PositionConfirmed,
	}, ""))
	f.chain.balanceErr = context.DeadlineExceeded
	f.agg.quotes = []*aggregator.Quote{{
		InputMint:      testMint,
		OutputMint:     domain.WrappedSOLMint,
		OutAmount:      "500000000",
		PriceImpactPct: "0.001",
	}}

	v := f.engine.Evaluate(context.Background(), sellDescriptor(domain.LamportsPerSOL, 300_000_000))
	require.True(t, v.Approved, "reason: %s", v.Reason)
	assert.Equal(t, "100000000", v.Plan.SellTokenRaw.String())
}

func TestSellHighImpactLoggedNotRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.positions.Upsert(context.Background(), &domain.Position{
		Mint:       testMint,
		BalanceRaw: big.NewInt(100_000_000),
		Decimals:   6,
		Status:     domain.PositionConfirmed,
	}, ""))
	f.chain.upstreamBalance = big.NewInt(700_000_000)
	f.agg.quotes = []*aggregator.Quote{{
		InputMint:      testMint,
		OutputMint:     domain.WrappedSOLMint,
		OutAmount:      "150000000",
		PriceImpactPct: "0.30", // 3000 bps, far over the cap
	}}

	v := f.engine.Evaluate(context.Background(), sellDescriptor(domain.LamportsPerSOL, 300_000_000))
	assert.True(t, v.Approved, "reason: %s", v.Reason)
}

func TestSellWaitsForSentPositionToConfirm(t *testing.T) {
	f := newFixture(t)
	pos := &domain.Position{
		Mint:       testMint,
		BalanceRaw: big.NewInt(100_000_000),
		Decimals:   6,
		Status:     domain.PositionSent,
		PendingRaw: big.NewInt(100_000_000),
	}
	require.NoError(t, f.positions.Upsert(context.Background(), pos, ""))
	f.chain.upstreamBalance = big.NewInt(700_000_000)
	f.agg.quotes = []*aggregator.Quote{{
		InputMint:      testMint,
		OutputMint:     domain.WrappedSOLMint,
		OutAmount:      "150000000",
		PriceImpactPct: "0.001",
	}}

	// Confirmation lands during the second poll sleep.
	polls := 0
	f.engine.sleep = func(context.Context, time.Duration) error {
		f.now = f.now.Add(sentPollInterval)
		polls++
		if polls == 2 {
			confirmed := *pos
			confirmed.Status = domain.PositionConfirmed
			confirmed.PendingRaw = nil
			require.NoError(t, f.positions.Upsert(context.Background(), &confirmed, ""))
		}
		return nil
	}

	v := f.engine.Evaluate(context.Background(), sellDescriptor(domain.LamportsPerSOL, 300_000_000))
	require.True(t, v.Approved, "reason: %s", v.Reason)
	assert.Equal(t, int64(1000), v.SentWaitMs)
}

func TestSellTimesOutOnStuckSentPosition(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.positions.Upsert(context.Background(), &domain.Position{
		Mint:       testMint,
		BalanceRaw: big.NewInt(100_000_000),
		Decimals:   6,
		Status:     domain.PositionSent,
		PendingRaw: big.NewInt(100_000_000),
	}, ""))

	f.engine.sleep = func(context.Context, time.Duration) error {
		f.now = f.now.Add(sentPollInterval)
		return nil
	}

	v := f.engine.Evaluate(context.Background(), sellDescriptor(domain.LamportsPerSOL, 300_000_000))
	assert.False(t, v.Approved)
	assert.Equal(t, domain.ReasonPositionNotConfirmed, v.Reason)
	assert.GreaterOrEqual(t, v.SentWaitMs, f.cfg.SellOnSentTimeout().Milliseconds())
}

func TestPriceDriftNilOnZeroDenominator(t *testing.T) {
	assert.Nil(t, priceDrift(0, big.NewInt(100), 50, big.NewInt(100)))
	assert.Nil(t, priceDrift(100, big.NewInt(0), 50, big.NewInt(100)))
	assert.Nil(t, priceDrift(100, big.NewInt(100), 50, big.NewInt(0)))
}
