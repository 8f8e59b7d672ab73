package executor

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/config"
	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/notify"
	"solana-copy-trader/internal/risk"
	"solana-copy-trader/internal/solana"
	"solana-copy-trader/internal/storage"
	"solana-copy-trader/internal/wallet"
)

// comparisonDelay is how long after confirmation the quoted-vs-real check
// waits for the transaction to be queryable with final balances.
const comparisonDelay = 2500 * time.Millisecond

// Live is the on-chain executor: it builds, signs, broadcasts, and confirms
// real transactions through the aggregator and RPC.
type Live struct {
	cfg         *config.Config
	agg         aggregator.Client
	rpc         solana.RPCClient
	wallet      *wallet.Wallet
	budget      storage.BudgetStore
	cooldowns   storage.CooldownStore
	comparisons storage.ComparisonStore
	notifier    notify.Notifier
	log         *logrus.Entry
}

var _ Executor = (*Live)(nil)

// NewLive creates the live executor.
func NewLive(
	cfg *config.Config,
	agg aggregator.Client,
	rpc solana.RPCClient,
	w *wallet.Wallet,
	budget storage.BudgetStore,
	cooldowns storage.CooldownStore,
	comparisons storage.ComparisonStore,
	notifier notify.Notifier,
	log *logrus.Logger,
) *Live {
	return &Live{
		cfg:         cfg,
		agg:         agg,
		rpc:         rpc,
		wallet:      w,
		budget:      budget,
		cooldowns:   cooldowns,
		comparisons: comparisons,
		notifier:    notifier,
		log:         log.WithField("component", "executor"),
	}
}

// Execute builds the swap transaction from the plan's pre-fetched quote,
// signs it, and broadcasts it with preflight skipped. The fill is returned
// unconfirmed; finality is established through Confirm.
func (l *Live) Execute(ctx context.Context, d *domain.SwapDescriptor, plan *risk.TradePlan) (*Result, error) {
	swap, err := l.agg.Swap(ctx, plan.Quote, l.wallet.PublicKey(), l.cfg.PriorityFee)
	if err != nil {
		return nil, fmt.Errorf("build swap transaction: %w", err)
	}

	tx, err := solanago.TransactionFromBase64(swap.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}

	raw, err := l.wallet.SignTransaction(tx)
	if err != nil {
		return nil, fmt.Errorf("sign swap transaction: %w", err)
	}

	signature, err := l.rpc.SendRawTransaction(ctx, base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		return nil, fmt.Errorf("broadcast transaction: %w", err)
	}

	now := time.Now()
	var lamports int64
	var budgetDay string
	tokenRaw := plan.QuoteOutRaw
	if plan.Direction == domain.DirectionBuy {
		lamports = plan.SpendLamports

		// Reserve the spend against today's budget at broadcast so a
		// concurrent buy cannot overspend; Rollback refunds it if the
		// transaction never confirms.
		budgetDay = now.UTC().Format("2006-01-02")
		if _, err := l.budget.Add(ctx, budgetDay, lamports); err != nil {
			l.log.WithError(err).Warn("add daily budget")
		}
		if err := l.cooldowns.Touch(ctx, plan.Mint, now); err != nil {
			l.log.WithError(err).Warn("touch cooldown")
		}
	} else {
		lamports = plan.QuoteOutRaw.Int64()
		tokenRaw = plan.SellTokenRaw
	}

	l.log.WithFields(logrus.Fields{
		"signature": signature,
		"direction": plan.Direction,
		"mint":      plan.Mint,
	}).Info("transaction broadcast")

	return &Result{
		Signature:            signature,
		Lamports:             lamports,
		TokenRaw:             tokenRaw,
		FeeLamports:          plan.EstimatedFeeLamports,
		LastValidBlockHeight: swap.LastValidBlockHeight,
		BudgetDay:            budgetDay,
	}, nil
}

// Rollback refunds the budget reservation of an unconfirmed BUY. The
// cooldown touch is deliberately left in place: a failed broadcast is still
// recent activity on the mint.
func (l *Live) Rollback(ctx context.Context, plan *risk.TradePlan, res *Result) {
	if res == nil || res.BudgetDay == "" || res.Lamports <= 0 {
		return
	}
	if _, err := l.budget.Add(ctx, res.BudgetDay, -res.Lamports); err != nil {
		l.log.WithError(err).WithField("signature", res.Signature).Warn("refund daily budget")
		return
	}
	l.log.WithFields(logrus.Fields{
		"signature": res.Signature,
		"lamports":  res.Lamports,
	}).Info("budget reservation refunded")
}

// Confirm waits for the broadcast transaction to reach confirmed commitment.
func (l *Live) Confirm(ctx context.Context, res *Result) error {
	if res.Confirmed {
		return nil
	}
	if err := l.rpc.ConfirmTransaction(ctx, res.Signature, res.LastValidBlockHeight); err != nil {
		return err
	}
	res.Confirmed = true
	return nil
}

// PostTradeCheck fetches the finalised transaction a moment after
// confirmation and records how the real fill compares to the quote.
func (l *Live) PostTradeCheck(ctx context.Context, d *domain.SwapDescriptor, plan *risk.TradePlan, res *Result) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(comparisonDelay):
	}

	tx, err := l.rpc.GetParsedTransaction(ctx, res.Signature)
	if err != nil || tx == nil {
		l.log.WithError(err).WithField("signature", res.Signature).Warn("execution comparison lookup failed")
		return
	}

	realLamports, realTokenRaw := l.realDeltas(tx, plan.Mint)

	var quotedLamports int64
	var quotedTokenRaw *big.Int
	if plan.Direction == domain.DirectionBuy {
		quotedLamports = plan.SpendLamports
		quotedTokenRaw = plan.QuoteOutRaw
	} else {
		quotedLamports = plan.QuoteOutRaw.Int64()
		quotedTokenRaw = plan.SellTokenRaw
	}

	slippage := slippagePct(plan.Direction, quotedLamports, realLamports, quotedTokenRaw, realTokenRaw)

	err = l.comparisons.Insert(ctx, &domain.ExecutionComparison{
		Signature:      res.Signature,
		Mint:           plan.Mint,
		Direction:      plan.Direction,
		QuotedLamports: quotedLamports,
		RealLamports:   realLamports,
		QuotedTokenRaw: quotedTokenRaw,
		RealTokenRaw:   realTokenRaw,
		FeeLamports:    int64(tx.Fee),
		ComputeUnits:   computeUnitsFromLogs(tx.LogMessages),
		SlippagePct:    slippage,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		l.log.WithError(err).Warn("record execution comparison")
	}

	if math.Abs(slippage) > l.cfg.CompareAlertPct {
		l.notifier.SlippageAlert(res.Signature, plan.Mint, slippage)
	}
}

// realDeltas extracts the bot wallet's base and token movement from the
// confirmed transaction's balance tables.
func (l *Live) realDeltas(tx *solana.ParsedTransaction, mint string) (int64, *big.Int) {
	var baseDelta int64
	idx := tx.AccountIndexOf(l.wallet.PublicKey())
	if idx >= 0 && idx < len(tx.PreBalances) && idx < len(tx.PostBalances) {
		baseDelta = int64(tx.PostBalances[idx]) - int64(tx.PreBalances[idx])
		if idx == 0 {
			baseDelta += int64(tx.Fee)
		}
	}

	tokenDelta := new(big.Int)
	for _, b := range tx.PostTokenBalances {
		if b.Owner == l.wallet.PublicKey() && b.Mint == mint {
			tokenDelta.Add(tokenDelta, b.AmountRaw)
		}
	}
	for _, b := range tx.PreTokenBalances {
		if b.Owner == l.wallet.PublicKey() && b.Mint == mint {
			tokenDelta.Sub(tokenDelta, b.AmountRaw)
		}
	}

	if baseDelta < 0 {
		baseDelta = -baseDelta
	}
	tokenDelta.Abs(tokenDelta)
	return baseDelta, tokenDelta
}

// computeUnitsFromLogs recovers total consumed compute units from the
// runtime's "consumed X of Y compute units" log lines.
func computeUnitsFromLogs(logs []string) int64 {
	var total int64
	for _, line := range logs {
		var consumed, budget int64
		var program string
		if _, err := fmt.Sscanf(line, "Program %s consumed %d of %d compute units", &program, &consumed, &budget); err == nil {
			total += consumed
		}
	}
	return total
}

// slippagePct measures how much worse the real fill was than the quote, on
// the received side of the swap.
func slippagePct(direction domain.Direction, quotedLamports, realLamports int64, quotedTokenRaw, realTokenRaw *big.Int) float64 {
	if direction == domain.DirectionBuy {
		quoted, _ := new(big.Float).SetInt(quotedTokenRaw).Float64()
		real, _ := new(big.Float).SetInt(realTokenRaw).Float64()
		if quoted == 0 {
			return 0
		}
		return (real/quoted - 1) * 100
	}
	if quotedLamports == 0 {
		return 0
	}
	return (float64(realLamports)/float64(quotedLamports) - 1) * 100
}
