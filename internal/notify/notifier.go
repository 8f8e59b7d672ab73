// Package notify defines the notification collaborator. The default
// implementation writes structured log lines; chat or webhook transports
// plug in behind the same interface.
package notify

import (
	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/domain"
)

// Notifier receives operator-facing events from the pipeline.
type Notifier interface {
	TradeCopied(d *domain.SwapDescriptor, signature string, lamports int64)
	TradeRejected(d *domain.SwapDescriptor, reason string)
	TradeFailed(d *domain.SwapDescriptor, reason string)
	BreakerOpened(reason string)
	PositionReaped(mint string, deleted bool)
	SlippageAlert(signature, mint string, slippagePct float64)
}

// LogNotifier is the logrus-backed default notifier.
type LogNotifier struct {
	log *logrus.Entry
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier that emits log records.
func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log.WithField("component", "notify")}
}

func (n *LogNotifier) TradeCopied(d *domain.SwapDescriptor, signature string, lamports int64) {
	n.log.WithFields(logrus.Fields{
		"source_signature": d.Signature,
		"signature":        signature,
		"direction":        d.Direction,
		"mint":             d.Mint,
		"lamports":         lamports,
	}).Info("trade copied")
}

func (n *LogNotifier) TradeRejected(d *domain.SwapDescriptor, reason string) {
	n.log.WithFields(logrus.Fields{
		"signature": d.Signature,
		"direction": d.Direction,
		"mint":      d.Mint,
		"reason":    reason,
	}).Info("trade rejected")
}

func (n *LogNotifier) TradeFailed(d *domain.SwapDescriptor, reason string) {
	n.log.WithFields(logrus.Fields{
		"signature": d.Signature,
		"direction": d.Direction,
		"mint":      d.Mint,
		"reason":    reason,
	}).Error("trade failed")
}

func (n *LogNotifier) BreakerOpened(reason string) {
	n.log.WithField("reason", reason).Warn("circuit breaker opened, buys halted")
}

func (n *LogNotifier) PositionReaped(mint string, deleted bool) {
	n.log.WithFields(logrus.Fields{
		"mint":    mint,
		"deleted": deleted,
	}).Warn("stale pending position reaped")
}

func (n *LogNotifier) SlippageAlert(signature, mint string, slippagePct float64) {
	n.log.WithFields(logrus.Fields{
		"signature":    signature,
		"mint":         mint,
		"slippage_pct": slippagePct,
	}).Warn("execution slippage above alert threshold")
}
