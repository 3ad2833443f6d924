package leaderboard

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a Board held in process.
type Memory struct {
	mu       sync.Mutex
	sales    map[string]map[string]float64 // period -> seller -> total
	counters map[string]int64
	applied  map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		sales:    make(map[string]map[string]float64),
		counters: make(map[string]int64),
		applied:  make(map[string]struct{}),
	}
}

// claim marks key applied and reports whether it was new. Callers hold mu.
func (m *Memory) claim(key string) bool {
	if _, ok := m.applied[key]; ok {
		return false
	}
	m.applied[key] = struct{}{}
	return true
}

func (m *Memory) RecordSale(_ context.Context, eventID, sellerID string, amount float64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.claim(saleKey(eventID)) {
		return false, nil
	}
	for _, p := range []string{MonthOf(at), PeriodAllTime} {
		board, ok := m.sales[p]
		if !ok {
			board = make(map[string]float64)
			m.sales[p] = board
		}
		board[sellerID] += amount
	}
	return true, nil
}

func (m *Memory) IncrementMonitoring(_ context.Context, eventID, category, severity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.claim(monitoringKey(eventID)) {
		return false, nil
	}
	m.counters[monitoringField(category, severity)]++
	return true, nil
}

func (m *Memory) Top(_ context.Context, period string, n int) ([]Entry, error) {
	m.mu.Lock()
	out := make([]Entry, 0, len(m.sales[period]))
	for id, total := range m.sales[period] {
		out = append(out, Entry{UserID: id, Total: total})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total == out[j].Total {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Total > out[j].Total
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *Memory) Monitoring(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out, nil
}

var _ Board = (*Memory)(nil)
