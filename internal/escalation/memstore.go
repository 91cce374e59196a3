package escalation

import (
	"context"
	"sort"
	"sync"

	"github.com/kaunda/regcycle/model"
)

// MemoryStore is an in-memory EventStore for tests and single-node runs.
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.EscalationEvent
}

// NewMemoryStore creates a new in-memory escalation event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records one escalation event.
func (s *MemoryStore) Append(_ context.Context, ev model.EscalationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// ListProcess returns the events for one process instance, oldest first.
func (s *MemoryStore) ListProcess(_ context.Context, processID string) ([]model.EscalationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.EscalationEvent
	for _, ev := range s.events {
		if ev.ProcessID == processID {
			result = append(result, ev)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].FiredAt.Before(result[j].FiredAt)
	})
	return result, nil
}
