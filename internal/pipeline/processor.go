// Package pipeline linearises the decision-execute stage: descriptors from
// all ingestion sources pass through an ordered queue into a single worker,
// so risk checks always see a consistent book.
package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/breaker"
	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/executor"
	"solana-copy-trader/internal/notify"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/pending"
	"solana-copy-trader/internal/position"
	"solana-copy-trader/internal/risk"
	"solana-copy-trader/internal/storage"
)

// AnalyticsSink is the optional secondary metric mirror (ClickHouse).
type AnalyticsSink interface {
	InsertMetric(ctx context.Context, m *domain.PipelineMetric) error
}

// Processor runs the serialized stage for one descriptor: ledger admission,
// risk, execution, position updates, metric emission, breaker feedback.
type Processor struct {
	ledger       storage.LedgerStore
	sourceTrades storage.SourceTradeStore
	metrics      storage.MetricStore
	engine       *risk.Engine
	exec         executor.Executor
	positions    *position.Manager
	brk          *breaker.Breaker
	pendings     *pending.Registry
	notifier     notify.Notifier
	sink         AnalyticsSink // nil when ClickHouse is not configured
	prom         *observability.Metrics
	log          *logrus.Entry
}

// NewProcessor wires the stage.
func NewProcessor(
	ledger storage.LedgerStore,
	sourceTrades storage.SourceTradeStore,
	metrics storage.MetricStore,
	engine *risk.Engine,
	exec executor.Executor,
	positions *position.Manager,
	brk *breaker.Breaker,
	pendings *pending.Registry,
	notifier notify.Notifier,
	sink AnalyticsSink,
	prom *observability.Metrics,
	log *logrus.Logger,
) *Processor {
	return &Processor{
		ledger:       ledger,
		sourceTrades: sourceTrades,
		metrics:      metrics,
		engine:       engine,
		exec:         exec,
		positions:    positions,
		brk:          brk,
		pendings:     pendings,
		notifier:     notifier,
		sink:         sink,
		prom:         prom,
		log:          log.WithField("component", "pipeline"),
	}
}

// Process runs one descriptor through the stage. Called only from the
// serializer's worker goroutine.
func (p *Processor) Process(ctx context.Context, d *domain.SwapDescriptor, sellBuffered bool, sellBufferMs int64) {
	start := time.Now()

	// The pending-buy flag must clear no matter how the stage exits.
	if d.Direction == domain.DirectionBuy {
		defer func() {
			p.pendings.Remove(d.Mint)
			p.prom.PendingBuys.Set(float64(p.pendings.Len()))
		}()
	}

	// At-most-once admission: exactly one producer wins this insert.
	first, err := p.ledger.CheckAndInsert(ctx, d.Signature)
	if err != nil {
		p.log.WithError(err).WithField("signature", d.Signature).Error("ledger admission failed")
		return
	}
	if !first {
		return
	}

	if err := p.sourceTrades.Insert(ctx, &domain.SourceTrade{
		Signature:   d.Signature,
		Direction:   d.Direction,
		Mint:        d.Mint,
		SolLamports: d.SolLamports,
		TokenRaw:    d.TokenRaw,
		Decimals:    d.Decimals,
		Source:      d.Source,
		UnsafeParse: d.UnsafeParse,
		DetectedAt:  d.DetectedAt,
	}); err != nil {
		p.log.WithError(err).Warn("persist source trade")
	}

	metric := &domain.PipelineMetric{
		Signature:    d.Signature,
		Direction:    d.Direction,
		Mint:         d.Mint,
		Source:       d.Source,
		SellBuffered: sellBuffered,
		SellBufferMs: sellBufferMs,
		UnsafeParse:  d.UnsafeParse,
	}

	riskStart := time.Now()
	verdict := p.engine.Evaluate(ctx, d)
	metric.RiskMs = time.Since(riskStart).Milliseconds()
	metric.DriftPct = verdict.DriftPct
	metric.SentWaitMs = verdict.SentWaitMs

	if !verdict.Approved {
		p.recordRejection(d, verdict.Reason, metric, start)
		return
	}

	execStart := time.Now()
	res, err := p.exec.Execute(ctx, d, verdict.Plan)
	metric.ExecMs = time.Since(execStart).Milliseconds()

	if err == nil {
		if perr := p.applyPosition(ctx, verdict.Plan, res); perr != nil {
			err = perr
		}
	}

	if err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{
			"signature": d.Signature,
			"mint":      d.Mint,
		}).Error("execution failed")
		metric.Outcome = domain.OutcomeFailed
		metric.RejectReason = err.Error()
		p.finishMetric(ctx, metric, start)
		p.feedBreaker(breaker.KindFailed, metric.TotalMs)
		p.notifier.TradeFailed(d, err.Error())
		return
	}

	if !res.Confirmed {
		go p.confirmAsync(d, verdict.Plan, res)
	}

	metric.Outcome = domain.OutcomeCopied
	p.finishMetric(ctx, metric, start)
	p.feedBreaker(breaker.KindCopied, metric.TotalMs)
	p.notifier.TradeCopied(d, res.Signature, res.Lamports)
}

// applyPosition folds the fill into the book. Position writes are on the
// critical path, so their errors surface as execution failures.
func (p *Processor) applyPosition(ctx context.Context, plan *risk.TradePlan, res *executor.Result) error {
	if plan.Direction == domain.DirectionBuy {
		return p.positions.ApplyBuy(ctx, plan.Mint, plan.Decimals, res.TokenRaw, res.Confirmed)
	}
	return p.positions.ApplySell(ctx, plan.Mint, plan.SellTokenRaw)
}

// confirmAsync settles a broadcast buy outside the serialized stage, so the
// queue is not blocked on chain finality.
func (p *Processor) confirmAsync(d *domain.SwapDescriptor, plan *risk.TradePlan, res *executor.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	if err := p.exec.Confirm(ctx, res); err != nil {
		p.log.WithError(err).WithField("signature", res.Signature).Error("confirmation failed")
		if ferr := p.positions.FailBuy(ctx, plan.Mint); ferr != nil {
			p.log.WithError(ferr).WithField("mint", plan.Mint).Error("rollback after failed confirm")
		}
		p.exec.Rollback(ctx, plan, res)
		p.feedBreaker(breaker.KindFailed, 0)
		p.notifier.TradeFailed(d, "confirmation failed: "+err.Error())
		return
	}

	if err := p.positions.ConfirmBuy(ctx, plan.Mint); err != nil {
		p.log.WithError(err).WithField("mint", plan.Mint).Error("confirm position")
	}
	p.exec.PostTradeCheck(ctx, d, plan, res)
}

func (p *Processor) recordRejection(d *domain.SwapDescriptor, reason string, metric *domain.PipelineMetric, start time.Time) {
	metric.Outcome = domain.OutcomeRejected
	if reason == domain.ReasonCircuitBreaker {
		metric.Outcome = domain.OutcomeCircuitBreaker
	}
	metric.RejectReason = reason

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.finishMetric(ctx, metric, start)

	kind := breaker.KindRejected
	if reason == domain.ReasonNoPosition {
		kind = breaker.KindNoPosition
	}
	p.feedBreaker(kind, metric.TotalMs)
	p.notifier.TradeRejected(d, reason)
}

// finishMetric stamps totals and writes the row to Postgres, Prometheus,
// and the optional analytics sink. Metric writes never fail the stage.
func (p *Processor) finishMetric(ctx context.Context, m *domain.PipelineMetric, start time.Time) {
	m.TotalMs = time.Since(start).Milliseconds()
	m.CreatedAt = time.Now()

	if err := p.metrics.Insert(ctx, m); err != nil {
		p.log.WithError(err).Warn("insert pipeline metric")
	}
	if p.sink != nil {
		if err := p.sink.InsertMetric(ctx, m); err != nil {
			p.log.WithError(err).Debug("mirror pipeline metric")
		}
	}

	p.prom.Outcomes.WithLabelValues(string(m.Outcome), m.RejectReason).Inc()
	p.prom.RiskLatency.Observe(float64(m.RiskMs) / 1000)
	p.prom.ExecLatency.Observe(float64(m.ExecMs) / 1000)
	p.prom.TotalLatency.Observe(float64(m.TotalMs) / 1000)
	if m.SellBuffered {
		p.prom.SellBuffered.Inc()
	}
}

func (p *Processor) feedBreaker(kind string, latencyMs int64) {
	if p.brk.Record(kind, latencyMs) {
		p.prom.BreakerOpen.Set(1)
		p.prom.BreakerTrips.WithLabelValues(p.brk.Reason()).Inc()
		p.notifier.BreakerOpened(p.brk.Reason())
	}
	if !p.brk.IsOpen() {
		p.prom.BreakerOpen.Set(0)
	}
}
