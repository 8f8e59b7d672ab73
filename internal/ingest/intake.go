// Package ingest runs the three redundant producers (webhook push, log
// subscription, signature polling) and their shared path into the pipeline.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/parser"
	"solana-copy-trader/internal/pending"
	"solana-copy-trader/internal/pipeline"
	"solana-copy-trader/internal/storage"
)

// Sell-before-buy buffer bounds.
const (
	sellBufferStep = 500 * time.Millisecond
	sellBufferMax  = 4 * time.Second
)

// Intake is the shared producer path: ledger probe, parse, pending-buy
// registration, sell buffering, and submission to the serializer. All three
// sources funnel through it.
type Intake struct {
	ledger     storage.LedgerStore
	positions  storage.PositionStore
	pendings   *pending.Registry
	parser     *parser.Parser
	serializer *pipeline.Serializer
	prom       *observability.Metrics
	log        *logrus.Entry
}

// NewIntake creates the shared intake.
func NewIntake(
	ledger storage.LedgerStore,
	positions storage.PositionStore,
	pendings *pending.Registry,
	p *parser.Parser,
	serializer *pipeline.Serializer,
	prom *observability.Metrics,
	log *logrus.Logger,
) *Intake {
	return &Intake{
		ledger:     ledger,
		positions:  positions,
		pendings:   pendings,
		parser:     p,
		serializer: serializer,
		prom:       prom,
		log:        log.WithField("component", "intake"),
	}
}

// HandleRaw ingests one enriched transaction record (webhook payload).
func (i *Intake) HandleRaw(ctx context.Context, raw *parser.RawTransaction, source domain.SourceTag) {
	if raw.Signature == "" {
		return
	}
	i.prom.SignaturesSeen.WithLabelValues(string(source)).Inc()

	if i.alreadyProcessed(ctx, raw.Signature) {
		return
	}

	d, ok := i.parser.Parse(ctx, raw, source)
	if !ok {
		i.markNotSwap(ctx, raw.Signature)
		return
	}
	i.admit(ctx, d)
}

// HandleSignature ingests a bare signature (subscription and poll sources),
// parsing through the balance-delta path.
func (i *Intake) HandleSignature(ctx context.Context, signature string, source domain.SourceTag) {
	if signature == "" {
		return
	}
	i.prom.SignaturesSeen.WithLabelValues(string(source)).Inc()

	if i.alreadyProcessed(ctx, signature) {
		return
	}

	d, ok := i.parser.ParseSignature(ctx, signature, source)
	if !ok {
		i.markNotSwap(ctx, signature)
		return
	}
	i.admit(ctx, d)
}

// admit registers a pending buy before submission, buffers racing sells, and
// hands the descriptor to the serializer.
func (i *Intake) admit(ctx context.Context, d *domain.SwapDescriptor) {
	i.prom.SwapsParsed.WithLabelValues(string(d.Source)).Inc()

	if d.Direction == domain.DirectionBuy {
		// Set before Submit so a concurrent SELL producer sees the flag.
		i.pendings.Add(d.Mint)
		i.prom.PendingBuys.Set(float64(i.pendings.Len()))
	}

	var sellBuffered bool
	var sellBufferMs int64
	if d.Direction == domain.DirectionSell {
		sellBuffered, sellBufferMs = i.bufferSell(ctx, d.Mint)
	}

	i.serializer.Submit(ctx, d, sellBuffered, sellBufferMs)
}

// bufferSell delays a SELL whose BUY is still in flight: no position in the
// store but the mint flagged pending. Waits in 500 ms steps up to 4 s,
// breaking early when the position appears or the pending flag clears. Runs
// in the producer goroutine, outside the serialized stage, so the BUY can
// overtake the waiting SELL.
func (i *Intake) bufferSell(ctx context.Context, mint string) (bool, int64) {
	if i.hasPosition(ctx, mint) || !i.pendings.Has(mint) {
		return false, 0
	}

	i.log.WithField("mint", mint).Info("buffering sell behind pending buy")
	start := time.Now()
	deadline := start.Add(sellBufferMax)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return true, time.Since(start).Milliseconds()
		case <-time.After(sellBufferStep):
		}
		if i.hasPosition(ctx, mint) || !i.pendings.Has(mint) {
			break
		}
	}
	return true, time.Since(start).Milliseconds()
}

func (i *Intake) hasPosition(ctx context.Context, mint string) bool {
	_, err := i.positions.Get(ctx, mint)
	return err == nil
}

// alreadyProcessed is the read-only ledger probe. The authoritative mark
// happens inside the serialized stage.
func (i *Intake) alreadyProcessed(ctx context.Context, signature string) bool {
	seen, err := i.ledger.Has(ctx, signature)
	if err != nil {
		i.log.WithError(err).Warn("ledger probe failed")
		return false
	}
	return seen
}

// markNotSwap records a non-swap signature so no source re-parses it.
func (i *Intake) markNotSwap(ctx context.Context, signature string) {
	if _, err := i.ledger.CheckAndInsert(ctx, signature); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			i.log.WithError(err).Warn("mark non-swap signature")
		}
	}
}
