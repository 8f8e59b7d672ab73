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

// VirtualStore is an in-memory implementation of storage.VirtualStore.
type VirtualStore struct {
	mu       sync.Mutex
	wallet   *domain.VirtualWallet
	trades   []*domain.VirtualTrade
	holdings map[string]*domain.VirtualHolding
}

// NewVirtualStore creates a new in-memory virtual store.
func NewVirtualStore() *VirtualStore {
	return &VirtualStore{holdings: make(map[string]*domain.VirtualHolding)}
}

// Compile-time interface check.
var _ storage.VirtualStore = (*VirtualStore)(nil)

// InitWallet creates the wallet if it does not exist yet.
func (s *VirtualStore) InitWallet(_ context.Context, startingLamports int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet != nil {
		return nil
	}
	s.wallet = &domain.VirtualWallet{
		StartingLamports: startingLamports,
		CashLamports:     startingLamports,
		UpdatedAt:        time.Now(),
	}
	return nil
}

// Wallet returns the current wallet state.
func (s *VirtualStore) Wallet(_ context.Context) (*domain.VirtualWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.wallet
	return &cp, nil
}

// RecordTrade applies one simulated fill.
func (s *VirtualStore) RecordTrade(_ context.Context, t *domain.VirtualTrade) error {
	if t == nil || t.Signature == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wallet == nil {
		return storage.ErrNotFound
	}
	for _, existing := range s.trades {
		if existing.Signature == t.Signature {
			return storage.ErrDuplicateKey
		}
	}

	h, exists := s.holdings[t.Mint]
	if !exists {
		h = &domain.VirtualHolding{Mint: t.Mint, TokenRaw: new(big.Int)}
		s.holdings[t.Mint] = h
	}

	if t.Direction == domain.DirectionSell {
		s.wallet.CashLamports += t.SolLamports - t.FeeLamports
		h.ReceivedLamports += t.SolLamports
		h.TokenRaw.Sub(h.TokenRaw, t.TokenRaw)
	} else {
		s.wallet.CashLamports -= t.SolLamports + t.FeeLamports
		h.SpentLamports += t.SolLamports
		h.TokenRaw.Add(h.TokenRaw, t.TokenRaw)
	}
	s.wallet.UpdatedAt = time.Now()
	h.UpdatedAt = time.Now()

	cp := *t
	cp.TokenRaw = new(big.Int).Set(t.TokenRaw)
	s.trades = append(s.trades, &cp)
	return nil
}

// Trades returns all simulated fills, oldest first.
func (s *VirtualStore) Trades(_ context.Context) ([]*domain.VirtualTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.VirtualTrade, len(s.trades))
	for i, t := range s.trades {
		cp := *t
		cp.TokenRaw = new(big.Int).Set(t.TokenRaw)
		out[i] = &cp
	}
	return out, nil
}

// Holdings returns the per-mint portfolio aggregates.
func (s *VirtualStore) Holdings(_ context.Context) ([]*domain.VirtualHolding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.VirtualHolding, 0, len(s.holdings))
	for _, h := range s.holdings {
		cp := *h
		cp.TokenRaw = new(big.Int).Set(h.TokenRaw)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mint < out[j].Mint })
	return out, nil
}
