package memory

import (
	"context"
	"sync"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.Mutex
	rows []*domain.PnLSnapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert appends one PnL snapshot.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.PnLSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.rows = append(s.rows, &cp)
	return nil
}

// List returns all snapshots, oldest first.
func (s *SnapshotStore) List() []*domain.PnLSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.PnLSnapshot, len(s.rows))
	copy(out, s.rows)
	return out
}

// PruneBefore deletes snapshots taken before cutoff.
func (s *SnapshotStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*domain.PnLSnapshot
	var n int64
	for _, snap := range s.rows {
		if snap.At.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, snap)
	}
	s.rows = kept
	return n, nil
}

// ComparisonStore is an in-memory implementation of storage.ComparisonStore.
type ComparisonStore struct {
	mu   sync.Mutex
	data map[string]*domain.ExecutionComparison
}

// NewComparisonStore creates a new in-memory comparison store.
func NewComparisonStore() *ComparisonStore {
	return &ComparisonStore{data: make(map[string]*domain.ExecutionComparison)}
}

// Compile-time interface check.
var _ storage.ComparisonStore = (*ComparisonStore)(nil)

// Insert appends one execution comparison.
func (s *ComparisonStore) Insert(_ context.Context, c *domain.ExecutionComparison) error {
	if c == nil || c.Signature == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[c.Signature]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *c
	s.data[c.Signature] = &cp
	return nil
}
