package memory

import (
	"context"
	"sync"
	"time"

	"solana-copy-trader/internal/storage"
)

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu   sync.Mutex
	data map[string]time.Time
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{data: make(map[string]time.Time)}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// CheckAndInsert records a signature, returning true only on first insert.
func (s *LedgerStore) CheckAndInsert(_ context.Context, signature string) (bool, error) {
	if signature == "" {
		return false, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[signature]; exists {
		return false, nil
	}
	s.data[signature] = time.Now()
	return true, nil
}

// Has reports whether a signature is already recorded.
func (s *LedgerStore) Has(_ context.Context, signature string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.data[signature]
	return exists, nil
}

// PruneBefore deletes entries admitted before cutoff.
func (s *LedgerStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for sig, at := range s.data {
		if at.Before(cutoff) {
			delete(s.data, sig)
			n++
		}
	}
	return n, nil
}
