package memory

import (
	"context"
	"sync"
	"time"

	"solana-copy-trader/internal/domain"
	"solana-copy-trader/internal/storage"
)

// MetricStore is an in-memory implementation of storage.MetricStore.
type MetricStore struct {
	mu   sync.Mutex
	rows []*domain.PipelineMetric
	seen map[string]bool
}

// NewMetricStore creates a new in-memory metric store.
func NewMetricStore() *MetricStore {
	return &MetricStore{seen: make(map[string]bool)}
}

// Compile-time interface check.
var _ storage.MetricStore = (*MetricStore)(nil)

// Insert appends one pipeline metric row.
func (s *MetricStore) Insert(_ context.Context, m *domain.PipelineMetric) error {
	if m == nil || m.Signature == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[m.Signature] {
		return storage.ErrDuplicateKey
	}
	cp := *m
	s.rows = append(s.rows, &cp)
	s.seen[m.Signature] = true
	return nil
}

// List returns all metric rows, oldest first.
func (s *MetricStore) List(_ context.Context) ([]*domain.PipelineMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.PipelineMetric, len(s.rows))
	for i, m := range s.rows {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

// PruneBefore deletes metric rows created before cutoff.
func (s *MetricStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*domain.PipelineMetric
	var n int64
	for _, m := range s.rows {
		if m.CreatedAt.Before(cutoff) {
			delete(s.seen, m.Signature)
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.rows = kept
	return n, nil
}

// SourceTradeStore is an in-memory implementation of storage.SourceTradeStore.
type SourceTradeStore struct {
	mu   sync.Mutex
	data map[string]*domain.SourceTrade
}

// NewSourceTradeStore creates a new in-memory source trade store.
func NewSourceTradeStore() *SourceTradeStore {
	return &SourceTradeStore{data: make(map[string]*domain.SourceTrade)}
}

// Compile-time interface check.
var _ storage.SourceTradeStore = (*SourceTradeStore)(nil)

// Insert records an admitted upstream swap.
func (s *SourceTradeStore) Insert(_ context.Context, t *domain.SourceTrade) error {
	if t == nil || t.Signature == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[t.Signature]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *t
	s.data[t.Signature] = &cp
	return nil
}
