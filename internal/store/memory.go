package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a Store that keeps summaries in process memory. Dry runs use it
// so the estimator follows the same control flow as a live run.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string
	order   []string
}

func NewMemory() *Memory { return &Memory{entries: make(map[string]string)} }

func (m *Memory) Load(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Append(_ context.Context, name, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrDuplicate)
	}
	m.entries[name] = summary
	m.order = append(m.order, name)
	return nil
}

// Records returns all summaries in insertion order.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, Record{Name: name, Summary: m.entries[name]})
	}
	return out
}

func (m *Memory) Close() error { return nil }
