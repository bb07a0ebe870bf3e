package rules

import (
	"context"
	"sync"
)

// MemoryBackend keeps the snapshot in process memory. It is used when
// persistence is disabled or unavailable.
type MemoryBackend struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load(context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySnapshot(m.snap), nil
}

func (m *MemoryBackend) Save(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	m.snap = copySnapshot(s)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

func copySnapshot(s Snapshot) Snapshot {
	out := Snapshot{UndoCounts: make(map[string]int, len(s.UndoCounts))}
	for k, v := range s.UndoCounts {
		out.UndoCounts[k] = v
	}
	out.Suppressed = append(out.Suppressed, s.Suppressed...)
	return out
}
