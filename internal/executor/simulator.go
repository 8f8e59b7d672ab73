package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/config"
	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/risk"
	"solana-copy-trader/internal/solana"
	"solana-copy-trader/internal/storage"
)

// defaultComputeUnits is the compute budget the configured priority fee is
// denominated against when scaling by simulated consumption.
const defaultComputeUnits = 200_000

// Simulator is the dry-run executor: it fills trades against the virtual
// ledger instead of the chain.
type Simulator struct {
	cfg       *config.Config
	virtual   storage.VirtualStore
	budget    storage.BudgetStore
	cooldowns storage.CooldownStore
	agg       aggregator.Client
	rpc       solana.RPCClient
	botPubkey string
	log       *logrus.Entry
}

var _ Executor = (*Simulator)(nil)

// NewSimulator creates a dry-run executor. agg, rpc, and botPubkey are only
// used by the ACCURATE fee mode and may be zero-valued in ESTIMATE mode.
func NewSimulator(
	cfg *config.Config,
	virtual storage.VirtualStore,
	budget storage.BudgetStore,
	cooldowns storage.CooldownStore,
	agg aggregator.Client,
	rpc solana.RPCClient,
	botPubkey string,
	log *logrus.Logger,
) *Simulator {
	return &Simulator{
		cfg:       cfg,
		virtual:   virtual,
		budget:    budget,
		cooldowns: cooldowns,
		agg:       agg,
		rpc:       rpc,
		botPubkey: botPubkey,
		log:       log.WithField("component", "simulator"),
	}
}

// Execute records a virtual fill: cash and portfolio move atomically, the
// cooldown is touched, and a BUY is charged against the daily budget.
func (s *Simulator) Execute(ctx context.Context, d *domain.SwapDescriptor, plan *risk.TradePlan) (*Result, error) {
	fee := s.estimateFee(ctx, plan)

	var lamports int64
	var tokenRaw = plan.QuoteOutRaw
	if plan.Direction == domain.DirectionBuy {
		lamports = plan.SpendLamports

		wallet, err := s.virtual.Wallet(ctx)
		if err != nil {
			return nil, fmt.Errorf("read virtual wallet: %w", err)
		}
		if wallet.CashLamports < lamports+fee {
			return nil, fmt.Errorf("virtual cash %d below spend %d + fee %d", wallet.CashLamports, lamports, fee)
		}
	} else {
		// SELL: the quote output is the lamports we receive.
		lamports = plan.QuoteOutRaw.Int64()
		tokenRaw = plan.SellTokenRaw
	}

	now := time.Now()
	signature := syntheticSignature(d.Signature, plan.Direction, plan.Mint, now.UnixNano())

	err := s.virtual.RecordTrade(ctx, &domain.VirtualTrade{
		Signature:   signature,
		Direction:   plan.Direction,
		Mint:        plan.Mint,
		SolLamports: lamports,
		TokenRaw:    tokenRaw,
		FeeLamports: fee,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("record virtual trade: %w", err)
	}

	if err := s.cooldowns.Touch(ctx, plan.Mint, now); err != nil {
		s.log.WithError(err).Warn("touch cooldown")
	}
	if plan.Direction == domain.DirectionBuy {
		day := now.UTC().Format("2006-01-02")
		if _, err := s.budget.Add(ctx, day, lamports); err != nil {
			s.log.WithError(err).Warn("add daily budget")
		}
	}

	return &Result{
		Signature:   signature,
		Lamports:    lamports,
		TokenRaw:    tokenRaw,
		FeeLamports: fee,
		Confirmed:   true,
	}, nil
}

// Confirm is immediate for simulated fills.
func (s *Simulator) Confirm(ctx context.Context, res *Result) error {
	return nil
}

// PostTradeCheck is a no-op: there is no chain fill to compare against.
func (s *Simulator) PostTradeCheck(ctx context.Context, d *domain.SwapDescriptor, plan *risk.TradePlan, res *Result) {
}

// Rollback is a no-op: simulated fills always confirm.
func (s *Simulator) Rollback(ctx context.Context, plan *risk.TradePlan, res *Result) {
}

// estimateFee returns the plan's fixed estimate, or in ACCURATE mode derives
// the priority fee from the compute units a simulated run actually consumes.
func (s *Simulator) estimateFee(ctx context.Context, plan *risk.TradePlan) int64 {
	if s.cfg.DryRunFee != config.FeeModeAccurate || s.agg == nil || s.rpc == nil {
		return plan.EstimatedFeeLamports
	}

	fee, err := s.accurateFee(ctx, plan)
	if err != nil {
		s.log.WithError(err).Debug("accurate fee estimation failed, using estimate")
		return plan.EstimatedFeeLamports
	}
	return fee
}

func (s *Simulator) accurateFee(ctx context.Context, plan *risk.TradePlan) (int64, error) {
	swap, err := s.agg.Swap(ctx, plan.Quote, s.botPubkey, s.cfg.PriorityFee)
	if err != nil {
		return 0, fmt.Errorf("build swap transaction: %w", err)
	}

	sim, err := s.rpc.SimulateTransaction(ctx, swap.SwapTransaction)
	if err != nil {
		return 0, fmt.Errorf("simulate transaction: %w", err)
	}
	if sim.Err != nil {
		return 0, fmt.Errorf("simulation failed: %v", sim.Err)
	}
	if sim.UnitsConsumed == 0 {
		return 0, fmt.Errorf("simulation reported zero compute units")
	}

	// Scale the configured priority budget by real consumption.
	priority := s.cfg.PriorityFee * int64(sim.UnitsConsumed) / defaultComputeUnits
	fee := int64(risk.BaseTxFeeLamports) + priority
	if plan.NewToken {
		fee += risk.ATARentLamports
	}
	return fee, nil
}
