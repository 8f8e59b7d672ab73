package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/position"
	"solana-copy-trader/internal/storage"
)

// Default task intervals.
const (
	SnapshotInterval = 60 * time.Second
	ReapInterval     = 120 * time.Second
	PruneInterval    = 6 * time.Hour

	// LedgerRetention is how long processed signatures stay deduplicable.
	LedgerRetention   = 48 * time.Hour
	SnapshotRetention = 30 * 24 * time.Hour
	MetricRetention   = 30 * 24 * time.Hour
)

// SnapshotSink optionally mirrors snapshots to the analytics store.
type SnapshotSink interface {
	InsertSnapshot(ctx context.Context, s *domain.PnLSnapshot) error
}

// SnapshotTask captures a point-in-time view of the virtual book.
func SnapshotTask(
	virtual storage.VirtualStore,
	positions storage.PositionStore,
	snapshots storage.SnapshotStore,
	sink SnapshotSink,
	prom *observability.Metrics,
	log *logrus.Logger,
) func(ctx context.Context) error {
	l := log.WithField("task", "pnl_snapshot")
	return func(ctx context.Context) error {
		wallet, err := virtual.Wallet(ctx)
		if err != nil {
			return fmt.Errorf("read virtual wallet: %w", err)
		}

		open, err := positions.Count(ctx)
		if err != nil {
			return fmt.Errorf("count positions: %w", err)
		}

		var spent, received int64
		holdings, err := virtual.Holdings(ctx)
		if err != nil {
			return fmt.Errorf("read holdings: %w", err)
		}
		for _, h := range holdings {
			spent += h.SpentLamports
			received += h.ReceivedLamports
		}

		snap := &domain.PnLSnapshot{
			At:               time.Now(),
			CashLamports:     wallet.CashLamports,
			StartingLamports: wallet.StartingLamports,
			OpenPositions:    open,
			SpentLamports:    spent,
			ReceivedLamports: received,
		}
		if err := snapshots.Insert(ctx, snap); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if sink != nil {
			if err := sink.InsertSnapshot(ctx, snap); err != nil {
				l.WithError(err).Debug("mirror snapshot")
			}
		}

		prom.OpenPositions.Set(float64(open))
		prom.VirtualCash.Set(float64(wallet.CashLamports))
		return nil
	}
}

// ReapTask fails SENT positions stuck past the pending timeout.
func ReapTask(manager *position.Manager, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := manager.ReapStale(ctx, timeout)
		return err
	}
}

// PruneTask trims the idempotency ledger, snapshots, and pipeline metrics
// by age.
func PruneTask(
	ledger storage.LedgerStore,
	snapshots storage.SnapshotStore,
	metrics storage.MetricStore,
	log *logrus.Logger,
) func(ctx context.Context) error {
	l := log.WithField("task", "prune")
	return func(ctx context.Context) error {
		now := time.Now()

		removed, err := ledger.PruneBefore(ctx, now.Add(-LedgerRetention))
		if err != nil {
			return fmt.Errorf("prune ledger: %w", err)
		}
		snaps, err := snapshots.PruneBefore(ctx, now.Add(-SnapshotRetention))
		if err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
		rows, err := metrics.PruneBefore(ctx, now.Add(-MetricRetention))
		if err != nil {
			return fmt.Errorf("prune metrics: %w", err)
		}

		l.WithFields(logrus.Fields{
			"ledger":    removed,
			"snapshots": snaps,
			"metrics":   rows,
		}).Info("retention prune complete")
		return nil
	}
}
