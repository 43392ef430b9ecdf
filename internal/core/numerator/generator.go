package numerator

import (
	"context"
	"sync"
	"time"
)

// Generator generates sequential document numbers.
// The postgres implementation lives in pkg/numerator.
type Generator interface {
	// GetNextNumber generates the next document number.
	// Pattern: PREFIX-YEAR-XXXXX (e.g., BILL-2026-00001)
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)
}

// Memory is an in-process Generator used by the memory storage driver and tests.
// Strategy is irrelevant here: every call is gap-free.
type Memory struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemory creates an empty in-process generator.
func NewMemory() *Memory {
	return &Memory{counters: make(map[string]int64)}
}

// GetNextNumber implements Generator.
func (m *Memory) GetNextNumber(_ context.Context, cfg Config, _ *Options, period time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cfg.Key(period)
	m.counters[key]++
	return cfg.Format(period, m.counters[key]), nil
}

var _ Generator = (*Memory)(nil)
