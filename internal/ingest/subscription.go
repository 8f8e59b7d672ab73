package ingest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/solana"
)

const healthCheckInterval = 30 * time.Second

// Subscription is the streaming producer: a logsSubscribe filtered on the
// upstream wallet. Reconnection lives inside the WS client; this layer only
// consumes notifications and watches health.
type Subscription struct {
	ws     solana.WSClient
	wallet string
	intake *Intake
	log    *logrus.Entry
}

// NewSubscription creates the subscription producer.
func NewSubscription(ws solana.WSClient, wallet string, intake *Intake, log *logrus.Logger) *Subscription {
	return &Subscription{
		ws:     ws,
		wallet: wallet,
		intake: intake,
		log:    log.WithField("component", "subscription"),
	}
}

// Run subscribes and consumes until the context ends. Failed transactions
// are skipped; the poll source remains the safety net while the stream is
// unhealthy.
func (s *Subscription) Run(ctx context.Context) error {
	ch, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{s.wallet}})
	if err != nil {
		return err
	}
	s.log.WithField("wallet", s.wallet).Info("log subscription established")

	health := time.NewTicker(healthCheckInterval)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-health.C:
			if !s.ws.Healthy() {
				s.log.Warn("log stream unhealthy, relying on poll source")
			}
		case notif, ok := <-ch:
			if !ok {
				s.log.Info("log subscription closed")
				return nil
			}
			if notif.Err != nil {
				continue
			}
			s.intake.HandleSignature(ctx, notif.Signature, domain.SourceSubscription)
		}
	}
}
