package redis

import (
	"context"
	"sync"

	"didibot/internal/model"
)

// Memory is an in-process series used in backtesting and when Redis is not configured.
type Memory struct {
	mu      sync.RWMutex
	maxLen  int
	results map[string][]model.AnalysisResult
	orders  map[string][]model.Order
}

// NewMemory keeps at most maxLen entries per series (0 keeps everything).
func NewMemory(maxLen int) *Memory {
	return &Memory{
		maxLen:  maxLen,
		results: make(map[string][]model.AnalysisResult),
		orders:  make(map[string][]model.Order),
	}
}

func (m *Memory) WriteResult(_ context.Context, operation, symbol string, r model.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := StreamKey(KindResults, operation, symbol)
	m.results[key] = trim(append(m.results[key], r), m.maxLen)
	return nil
}

func (m *Memory) WriteOrder(_ context.Context, operation, symbol string, o model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := StreamKey(KindOrders, operation, symbol)
	m.orders[key] = trim(append(m.orders[key], o), m.maxLen)
	return nil
}

func (m *Memory) Results(_ context.Context, operation, symbol string, n int) ([]model.AnalysisResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.results[StreamKey(KindResults, operation, symbol)], n), nil
}

func (m *Memory) Orders(_ context.Context, operation, symbol string, n int) ([]model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return last(m.orders[StreamKey(KindOrders, operation, symbol)], n), nil
}

func trim[T any](xs []T, maxLen int) []T {
	if maxLen > 0 && len(xs) > maxLen {
		return xs[len(xs)-maxLen:]
	}
	return xs
}

func last[T any](xs []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if n > len(xs) {
		n = len(xs)
	}
	return append([]T(nil), xs[len(xs)-n:]...)
}
