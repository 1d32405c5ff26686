package store

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/you/dex-arb/internal/types"
)

// Memory is the default store when no database is configured.
type Memory struct {
	mu   sync.RWMutex
	data map[string]types.TradeRecord
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]types.TradeRecord)}
}

var _ TradeStore = (*Memory)(nil)

func (m *Memory) Insert(_ context.Context, rec types.TradeRecord) error {
	if rec.OpportunityID == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[rec.OpportunityID]; exists {
		return ErrDuplicateKey
	}
	m.data[rec.OpportunityID] = copyRecord(rec)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (types.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[id]
	if !ok {
		return types.TradeRecord{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]types.TradeRecord, error) {
	m.mu.RLock()
	out := make([]types.TradeRecord, 0, len(m.data))
	for _, r := range m.data {
		out = append(out, copyRecord(r))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Ts.Equal(out[j].Ts) {
			return out[i].OpportunityID < out[j].OpportunityID
		}
		return out[i].Ts.After(out[j].Ts)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() {}

func copyRecord(r types.TradeRecord) types.TradeRecord {
	if r.GasPrice != nil {
		r.GasPrice = new(big.Int).Set(r.GasPrice)
	}
	if r.RealizedProfit != nil {
		r.RealizedProfit = new(big.Int).Set(r.RealizedProfit)
	}
	return r
}
