package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{data: make(map[string]*domain.Position)}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

func clonePosition(p *domain.Position) *domain.Position {
	cp := *p
	if p.BalanceRaw != nil {
		cp.BalanceRaw = new(big.Int).Set(p.BalanceRaw)
	}
	if p.PendingRaw != nil {
		cp.PendingRaw = new(big.Int).Set(p.PendingRaw)
	}
	return &cp
}

// Get retrieves the position for a mint.
func (s *PositionStore) Get(_ context.Context, mint string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return clonePosition(p), nil
}

// Upsert writes a position, optionally conditional on the stored status.
func (s *PositionStore) Upsert(_ context.Context, p *domain.Position, expectStatus domain.PositionStatus) error {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if expectStatus != "" {
		current, exists := s.data[p.Mint]
		if !exists || current.Status != expectStatus {
			return storage.ErrStatusConflict
		}
	}
	s.data[p.Mint] = clonePosition(p)
	return nil
}

// Delete removes the position for a mint.
func (s *PositionStore) Delete(_ context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, mint)
	return nil
}

// Count returns the number of open positions.
func (s *PositionStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// List returns all positions ordered by mint.
func (s *PositionStore) List(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	positions := make([]*domain.Position, 0, len(s.data))
	for _, p := range s.data {
		positions = append(positions, clonePosition(p))
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Mint < positions[j].Mint })
	return positions, nil
}

// ListStaleSent returns SENT positions last updated before cutoff.
func (s *PositionStore) ListStaleSent(_ context.Context, cutoff time.Time) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []*domain.Position
	for _, p := range s.data {
		if p.Status == domain.PositionSent && p.UpdatedAt.Before(cutoff) {
			stale = append(stale, clonePosition(p))
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	return stale, nil
}
