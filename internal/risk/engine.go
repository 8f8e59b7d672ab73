// Package risk decides whether an upstream swap is copied. It runs inside
// the pipeline's serialized stage, so reads of positions, budget, and
// cooldowns are consistent for the duration of one evaluation.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/breaker"
	"solana-copy-trader/internal/config"
	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/solana"
	"solana-copy-trader/internal/storage"
)

// Chain fee constants in lamports.
const (
	BaseTxFeeLamports = 5_000
	// ATARentLamports is the rent-exempt deposit for a new associated
	// token account, paid on the first buy of a token.
	ATARentLamports = 2_039_280
)

const (
	quoteRetryDelay  = 1500 * time.Millisecond
	sentPollInterval = 500 * time.Millisecond
)

// Engine evaluates buy and sell policy for one descriptor at a time.
type Engine struct {
	cfg       *config.Config
	positions storage.PositionStore
	budget    storage.BudgetStore
	cooldowns storage.CooldownStore
	virtual   storage.VirtualStore
	rpc       solana.RPCClient
	agg       aggregator.Client
	brk       *breaker.Breaker
	botPubkey string
	log       *logrus.Entry
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a risk engine. botPubkey is only consulted in live mode
// for the balance guard.
func NewEngine(
	cfg *config.Config,
	positions storage.PositionStore,
	budget storage.BudgetStore,
	cooldowns storage.CooldownStore,
	virtual storage.VirtualStore,
	rpc solana.RPCClient,
	agg aggregator.Client,
	brk *breaker.Breaker,
	botPubkey string,
	log *logrus.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		positions: positions,
		budget:    budget,
		cooldowns: cooldowns,
		virtual:   virtual,
		rpc:       rpc,
		agg:       agg,
		brk:       brk,
		botPubkey: botPubkey,
		log:       log.WithField("component", "risk"),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Evaluate applies the common gates then the direction-specific pipeline.
func (e *Engine) Evaluate(ctx context.Context, d *domain.SwapDescriptor) Verdict {
	if e.cfg.PauseTrading {
		return reject(domain.ReasonPaused)
	}
	if e.brk.IsOpen() {
		return reject(domain.ReasonCircuitBreaker)
	}

	if d.Direction == domain.DirectionBuy {
		return e.evaluateBuy(ctx, d)
	}
	return e.evaluateSell(ctx, d)
}

func (e *Engine) evaluateBuy(ctx context.Context, d *domain.SwapDescriptor) Verdict {
	if d.UnsafeParse && !e.cfg.AllowUnsafeParseTrades {
		return reject(domain.ReasonUnsafeParse)
	}

	count, err := e.positions.Count(ctx)
	if err != nil {
		e.log.WithError(err).Error("count positions")
		return reject(domain.ReasonInternal)
	}
	if count >= e.cfg.MaxOpenPositions {
		return reject(domain.ReasonMaxOpenPositions)
	}

	// Proposed spend, scaled and capped.
	spend := int64(float64(d.SolLamports) * e.cfg.CopyRatio)
	if max := e.cfg.MaxPerTradeLamports(); spend > max {
		spend = max
	}
	if spend < e.cfg.MinPerTradeLamports() {
		return reject(domain.ReasonTradeTooSmall)
	}

	// Daily budget: shrink to what's left, reject if that is dust.
	day := e.now().UTC().Format("2006-01-02")
	spent, err := e.budget.SpentOn(ctx, day)
	if err != nil {
		e.log.WithError(err).Error("read daily budget")
		return reject(domain.ReasonInternal)
	}
	if remaining := e.cfg.MaxPerDayLamports() - spent; spend > remaining {
		if remaining < e.cfg.MinPerTradeLamports() {
			return reject(domain.ReasonBudgetExhausted)
		}
		spend = remaining
	}

	// Cooldown applies to buys only.
	if last, err := e.cooldowns.LastTrade(ctx, d.Mint); err == nil {
		elapsed := e.now().Sub(last)
		if elapsed < e.cfg.Cooldown() {
			e.log.WithFields(logrus.Fields{
				"mint":          d.Mint,
				"remaining_sec": int((e.cfg.Cooldown() - elapsed).Seconds()),
			}).Info("cooldown active")
			return reject(domain.ReasonCooldownActive)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		e.log.WithError(err).Error("read cooldown")
	}

	// New token means an ATA must be created and its rent paid.
	newToken := false
	if _, err := e.positions.Get(ctx, d.Mint); errors.Is(err, storage.ErrNotFound) {
		newToken = true
	}

	fee := e.EstimateFee(newToken)
	if v := e.checkFeeOverhead(spend, fee); v != nil {
		return *v
	}

	if v := e.checkBalance(ctx, spend, fee); v != nil {
		return *v
	}

	if e.cfg.BlockIfMintAuthority || e.cfg.BlockIfFreezeAuthority {
		if v := e.checkTokenSafety(ctx, d.Mint); v != nil {
			return *v
		}
	}

	quote, err := e.quoteWithRetry(ctx, domain.WrappedSOLMint, d.Mint, big.NewInt(spend))
	if err != nil || quote == nil {
		return reject(domain.ReasonUnroutableToken)
	}

	if impact := quote.PriceImpactBps(); impact > e.cfg.MaxPriceImpactBps {
		e.log.WithFields(logrus.Fields{
			"mint":       d.Mint,
			"impact_bps": impact,
		}).Info("price impact above cap")
		return reject(domain.ReasonPriceImpactTooHigh)
	}

	quoteOut, ok := quote.OutAmountRaw()
	if !ok || quoteOut.Sign() <= 0 {
		return reject(domain.ReasonUnroutableToken)
	}

	var driftPct *float64
	skipDrift := d.UnsafeParse && e.cfg.DisableDriftGuardOnUnsafe
	if e.cfg.MaxPriceDriftPct > 0 && !skipDrift {
		drift := priceDrift(d.SolLamports, d.TokenRaw, spend, quoteOut)
		driftPct = drift
		if drift != nil && *drift > e.cfg.MaxPriceDriftPct {
			return Verdict{Reason: domain.ReasonPriceDriftTooHigh, DriftPct: driftPct}
		}
	}

	return Verdict{
		Approved: true,
		DriftPct: driftPct,
		Plan: &TradePlan{
			Direction:            domain.DirectionBuy,
			Mint:                 d.Mint,
			Decimals:             d.Decimals,
			SpendLamports:        spend,
			Quote:                quote,
			QuoteOutRaw:          quoteOut,
			EstimatedFeeLamports: fee,
			NewToken:             newToken,
		},
	}
}

func (e *Engine) evaluateSell(ctx context.Context, d *domain.SwapDescriptor) Verdict {
	pos, err := e.positions.Get(ctx, d.Mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return reject(domain.ReasonNoPosition)
		}
		e.log.WithError(err).Error("read position")
		return reject(domain.ReasonInternal)
	}

	var sentWaitMs int64
	if pos.Status == domain.PositionSent && !e.cfg.AllowSellOnSentPosition {
		pos, sentWaitMs, err = e.waitForConfirmed(ctx, d.Mint)
		if err != nil {
			return Verdict{Reason: domain.ReasonPositionNotConfirmed, SentWaitMs: sentWaitMs}
		}
	}

	sellRaw := e.proportionalSellSize(ctx, d, pos.BalanceRaw)
	if sellRaw.Sign() <= 0 {
		return Verdict{Reason: domain.ReasonNoPosition, SentWaitMs: sentWaitMs}
	}

	quote, err := e.quoteWithRetry(ctx, d.Mint, domain.WrappedSOLMint, sellRaw)
	if err != nil || quote == nil {
		return Verdict{Reason: domain.ReasonUnroutableToken, SentWaitMs: sentWaitMs}
	}

	// High impact on a SELL is logged, never rejected: exiting matters
	// more than exit quality.
	if impact := quote.PriceImpactBps(); impact > e.cfg.MaxPriceImpactBps {
		e.log.WithFields(logrus.Fields{
			"mint":       d.Mint,
			"impact_bps": impact,
		}).Warn("selling through high price impact")
	}

	quoteOut, ok := quote.OutAmountRaw()
	if !ok {
		quoteOut = new(big.Int)
	}

	return Verdict{
		Approved:   true,
		SentWaitMs: sentWaitMs,
		Plan: &TradePlan{
			Direction:            domain.DirectionSell,
			Mint:                 d.Mint,
			Decimals:             pos.Decimals,
			SellTokenRaw:         sellRaw,
			Quote:                quote,
			QuoteOutRaw:          quoteOut,
			EstimatedFeeLamports: e.EstimateFee(false),
		},
	}
}

// waitForConfirmed polls the store until the SENT position confirms or the
// configured timeout elapses.
func (e *Engine) waitForConfirmed(ctx context.Context, mint string) (*domain.Position, int64, error) {
	deadline := e.now().Add(e.cfg.SellOnSentTimeout())
	start := e.now()

	for {
		if !e.now().Before(deadline) {
			return nil, e.now().Sub(start).Milliseconds(), fmt.Errorf("position still SENT after %s", e.cfg.SellOnSentTimeout())
		}
		if err := e.sleep(ctx, sentPollInterval); err != nil {
			return nil, e.now().Sub(start).Milliseconds(), err
		}

		pos, err := e.positions.Get(ctx, mint)
		if err != nil {
			return nil, e.now().Sub(start).Milliseconds(), err
		}
		if pos.Status == domain.PositionConfirmed {
			return pos, e.now().Sub(start).Milliseconds(), nil
		}
	}
}

// proportionalSellSize mirrors the upstream's sell fraction against our own
// balance. When the fraction cannot be determined a full exit is the safe
// default.
func (e *Engine) proportionalSellSize(ctx context.Context, d *domain.SwapDescriptor, myBalance *big.Int) *big.Int {
	upstreamNow, err := e.rpc.GetTokenBalance(ctx, e.cfg.UpstreamWallet, d.Mint)
	if err != nil || upstreamNow == nil {
		return new(big.Int).Set(myBalance)
	}

	// balance before the sell = balance now + amount sold
	before := new(big.Int).Add(upstreamNow, d.TokenRaw)
	if before.Sign() <= 0 {
		return new(big.Int).Set(myBalance)
	}

	// my_sell = floor(my_balance * sold / before), fraction capped at 1
	sold := d.TokenRaw
	if sold.Cmp(before) > 0 {
		sold = before
	}
	sell := new(big.Int).Mul(myBalance, sold)
	sell.Quo(sell, before)
	if sell.Cmp(myBalance) > 0 {
		sell.Set(myBalance)
	}
	return sell
}

// EstimateFee is the fixed fee formula shared with the simulated executor.
func (e *Engine) EstimateFee(newToken bool) int64 {
	fee := int64(BaseTxFeeLamports) + e.cfg.PriorityFee
	if newToken {
		fee += ATARentLamports
	}
	return fee
}

// checkFeeOverhead applies the adaptive fee guard: smaller trades tolerate a
// proportionally higher fee share.
func (e *Engine) checkFeeOverhead(spend, fee int64) *Verdict {
	if e.cfg.MaxFeePct <= 0 || spend == 0 {
		return nil
	}

	feePct := float64(fee) / float64(spend) * 100
	threshold := e.cfg.MaxFeePct
	switch {
	case spend >= domain.LamportsPerSOL/2: // >= 0.5 SOL
	case spend >= domain.LamportsPerSOL/10: // >= 0.1 SOL
		threshold *= 2
	default:
		threshold *= 3
	}

	if feePct > threshold {
		e.log.WithFields(logrus.Fields{
			"fee_pct":   feePct,
			"threshold": threshold,
		}).Info("fee overhead too high")
		v := reject(domain.ReasonFeeOverhead)
		return &v
	}
	return nil
}

// checkBalance verifies the spend plus fee leaves the reserve intact. Live
// mode asks the chain; dry-run asks the virtual wallet.
func (e *Engine) checkBalance(ctx context.Context, spend, fee int64) *Verdict {
	var available int64
	if e.cfg.DryRun {
		w, err := e.virtual.Wallet(ctx)
		if err != nil {
			e.log.WithError(err).Error("read virtual wallet")
			v := reject(domain.ReasonInternal)
			return &v
		}
		available = w.CashLamports
	} else {
		balance, err := e.rpc.GetBalance(ctx, e.botPubkey)
		if err != nil {
			e.log.WithError(err).Error("read wallet balance")
			v := reject(domain.ReasonInternal)
			return &v
		}
		available = int64(balance)
	}

	if spend+fee+e.cfg.MinReserveLamports() > available {
		v := reject(domain.ReasonInsufficientBalance)
		return &v
	}
	return nil
}

// checkTokenSafety rejects tokens whose supply can still be inflated or
// whose accounts can be frozen.
func (e *Engine) checkTokenSafety(ctx context.Context, mint string) *Verdict {
	info, err := e.rpc.GetMintInfo(ctx, mint)
	if err != nil || info == nil {
		// Unreadable mint metadata is treated as unsafe.
		v := reject(domain.ReasonTokenUnsafe)
		return &v
	}
	if e.cfg.BlockIfMintAuthority && info.MintAuthority != "" {
		v := reject(domain.ReasonTokenUnsafe)
		return &v
	}
	if e.cfg.BlockIfFreezeAuthority && info.FreezeAuthority != "" {
		v := reject(domain.ReasonTokenUnsafe)
		return &v
	}
	return nil
}

// quoteWithRetry asks the aggregator once, then exactly once more after a
// pause. A nil quote means no route.
func (e *Engine) quoteWithRetry(ctx context.Context, inputMint, outputMint string, amount *big.Int) (*aggregator.Quote, error) {
	quote, err := e.agg.Quote(ctx, inputMint, outputMint, amount, e.cfg.SlippageBps)
	if err == nil && quote != nil {
		return quote, nil
	}

	if err := e.sleep(ctx, quoteRetryDelay); err != nil {
		return nil, err
	}
	return e.agg.Quote(ctx, inputMint, outputMint, amount, e.cfg.SlippageBps)
}

// priceDrift compares the upstream's realised price with our quoted price at
// identical decimals. Returns nil when either side divides by zero.
func priceDrift(upstreamLamports int64, upstreamTokenRaw *big.Int, spendLamports int64, quoteOutRaw *big.Int) *float64 {
	upTok, _ := new(big.Float).SetInt(upstreamTokenRaw).Float64()
	qOut, _ := new(big.Float).SetInt(quoteOutRaw).Float64()
	if upTok == 0 || qOut == 0 || upstreamLamports == 0 {
		return nil
	}

	// The 10^decimals scale cancels in the ratio, so raw amounts suffice.
	pSrc := float64(upstreamLamports) / upTok
	pQuote := float64(spendLamports) / qOut
	if pSrc == 0 {
		return nil
	}
	drift := (pQuote/pSrc - 1) * 100
	return &drift
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
