package journal

import (
	"context"
	"sort"
	"sync"
)

// MemoryJournal keeps entries in process memory, keyed by transaction hash
type MemoryJournal struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]Entry)}
}

func (m *MemoryJournal) Append(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[entry.TxHash]; !exists {
		m.entries[entry.TxHash] = entry
	}
	return nil
}

func (m *MemoryJournal) List(_ context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Sequence > out[j].Sequence
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryJournal) Close() {}
