package memory

import (
	"context"
	"sync"
	"time"

	"solana-copy-trader/internal/storage"
)

// BudgetStore is an in-memory implementation of storage.BudgetStore.
type BudgetStore struct {
	mu   sync.Mutex
	data map[string]int64
}

// NewBudgetStore creates a new in-memory budget store.
func NewBudgetStore() *BudgetStore {
	return &BudgetStore{data: make(map[string]int64)}
}

// Compile-time interface check.
var _ storage.BudgetStore = (*BudgetStore)(nil)

// Add atomically increments the day's spent total.
func (s *BudgetStore) Add(_ context.Context, day string, lamports int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[day] += lamports
	return s.data[day], nil
}

// SpentOn returns the day's spent total, zero if absent.
func (s *BudgetStore) SpentOn(_ context.Context, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[day], nil
}

// CooldownStore is an in-memory implementation of storage.CooldownStore.
type CooldownStore struct {
	mu   sync.Mutex
	data map[string]time.Time
}

// NewCooldownStore creates a new in-memory cooldown store.
func NewCooldownStore() *CooldownStore {
	return &CooldownStore{data: make(map[string]time.Time)}
}

// Compile-time interface check.
var _ storage.CooldownStore = (*CooldownStore)(nil)

// Touch records a trade for the mint at the given time.
func (s *CooldownStore) Touch(_ context.Context, mint string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[mint] = at
	return nil
}

// LastTrade returns the last trade time for a mint.
func (s *CooldownStore) LastTrade(_ context.Context, mint string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, exists := s.data[mint]
	if !exists {
		return time.Time{}, storage.ErrNotFound
	}
	return at, nil
}
