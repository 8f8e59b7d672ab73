package ingest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/solana"
)

// Poller is the pull producer: it periodically fetches the wallet's recent
// signatures. Slowest of the three sources, but immune to webhook outages
// and dropped stream frames.
type Poller struct {
	rpc      solana.RPCClient
	wallet   string
	interval time.Duration
	limit    int
	intake   *Intake
	log      *logrus.Entry
}

// NewPoller creates the poll producer.
func NewPoller(rpc solana.RPCClient, wallet string, interval time.Duration, limit int, intake *Intake, log *logrus.Logger) *Poller {
	return &Poller{
		rpc:      rpc,
		wallet:   wallet,
		interval: interval,
		limit:    limit,
		intake:   intake,
		log:      log.WithField("component", "poller"),
	}
}

// Run polls until the context ends.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	sigs, err := p.rpc.GetSignaturesForAddress(ctx, p.wallet, p.limit)
	if err != nil {
		p.log.WithError(err).Warn("poll signatures")
		return
	}

	// Oldest first, so pipeline order follows chain order within a batch.
	for i := len(sigs) - 1; i >= 0; i-- {
		if sigs[i].Err != nil {
			continue
		}
		p.intake.HandleSignature(ctx, sigs[i].Signature, domain.SourcePoll)
	}
}
