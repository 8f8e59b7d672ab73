// Package position implements the position state machine: creation on buys,
// SENT to CONFIRMED transitions, rollback of failed buys, and reduction or
// deletion on sells.
package position

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/notify"
	"solana-copy-trader/internal/storage"
)

// Manager owns all position mutations. It runs either inside the pipeline's
// serialized stage or from the single-goroutine reaper, so mutations never
// race each other.
type Manager struct {
	positions storage.PositionStore
	notifier  notify.Notifier
	log       *logrus.Entry
}

// NewManager creates a position manager.
func NewManager(positions storage.PositionStore, notifier notify.Notifier, log *logrus.Logger) *Manager {
	return &Manager{
		positions: positions,
		notifier:  notifier,
		log:       log.WithField("component", "position"),
	}
}

// ApplyBuy folds an executed buy into the position. An unconfirmed fill
// leaves the row SENT with the new quantity tracked as pending; a confirmed
// fill goes straight to CONFIRMED.
func (m *Manager) ApplyBuy(ctx context.Context, mint string, decimals int, acquiredRaw *big.Int, confirmed bool) error {
	balance := new(big.Int).Set(acquiredRaw)
	pending := new(big.Int)

	existing, err := m.positions.Get(ctx, mint)
	switch {
	case err == nil:
		balance.Add(balance, existing.BalanceRaw)
		if existing.PendingRaw != nil {
			pending.Set(existing.PendingRaw)
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		return fmt.Errorf("read position: %w", err)
	}

	status := domain.PositionConfirmed
	if !confirmed {
		status = domain.PositionSent
		pending.Add(pending, acquiredRaw)
	}

	return m.positions.Upsert(ctx, &domain.Position{
		Mint:       mint,
		BalanceRaw: balance,
		Decimals:   decimals,
		Status:     status,
		PendingRaw: pending,
		UpdatedAt:  time.Now(),
	}, "")
}

// ConfirmBuy promotes a SENT position to CONFIRMED. A concurrent transition
// (the reaper failing it first) is not an error.
func (m *Manager) ConfirmBuy(ctx context.Context, mint string) error {
	pos, err := m.positions.Get(ctx, mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read position: %w", err)
	}
	if pos.Status != domain.PositionSent {
		return nil
	}

	pos.Status = domain.PositionConfirmed
	pos.PendingRaw = new(big.Int)
	pos.UpdatedAt = time.Now()

	err = m.positions.Upsert(ctx, pos, domain.PositionSent)
	if errors.Is(err, storage.ErrStatusConflict) {
		return nil
	}
	return err
}

// FailBuy rolls back the pending quantity of a SENT position: the row is
// deleted when nothing confirmed remains, otherwise reduced and confirmed.
func (m *Manager) FailBuy(ctx context.Context, mint string) error {
	pos, err := m.positions.Get(ctx, mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("read position: %w", err)
	}
	if pos.Status != domain.PositionSent {
		return nil
	}

	remaining := new(big.Int).Set(pos.BalanceRaw)
	if pos.PendingRaw != nil {
		remaining.Sub(remaining, pos.PendingRaw)
	}
	if remaining.Sign() <= 0 {
		return m.positions.Delete(ctx, mint)
	}

	pos.BalanceRaw = remaining
	pos.Status = domain.PositionConfirmed
	pos.PendingRaw = new(big.Int)
	pos.UpdatedAt = time.Now()

	err = m.positions.Upsert(ctx, pos, domain.PositionSent)
	if errors.Is(err, storage.ErrStatusConflict) {
		return nil
	}
	return err
}

// ApplySell reduces the position by the sold quantity, deleting the row when
// the balance reaches zero.
func (m *Manager) ApplySell(ctx context.Context, mint string, soldRaw *big.Int) error {
	pos, err := m.positions.Get(ctx, mint)
	if err != nil {
		return fmt.Errorf("read position: %w", err)
	}

	remaining := new(big.Int).Sub(pos.BalanceRaw, soldRaw)
	if remaining.Sign() <= 0 {
		return m.positions.Delete(ctx, mint)
	}

	pos.BalanceRaw = remaining
	pos.UpdatedAt = time.Now()
	return m.positions.Upsert(ctx, pos, "")
}

// ReapStale fails every SENT position older than the timeout. Called by the
// scheduler; returns the number of positions reaped.
func (m *Manager) ReapStale(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := time.Now().Add(-timeout)
	stale, err := m.positions.ListStaleSent(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale positions: %w", err)
	}

	reaped := 0
	for _, pos := range stale {
		deleted := pos.PendingRaw != nil && pos.PendingRaw.Cmp(pos.BalanceRaw) >= 0
		if err := m.FailBuy(ctx, pos.Mint); err != nil {
			m.log.WithError(err).WithField("mint", pos.Mint).Error("reap stale position")
			continue
		}
		m.log.WithFields(logrus.Fields{
			"mint":       pos.Mint,
			"updated_at": pos.UpdatedAt,
		}).Warn("reaped stale SENT position")
		m.notifier.PositionReaped(pos.Mint, deleted)
		reaped++
	}
	return reaped, nil
}
