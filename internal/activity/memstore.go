package activity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kaunda/regcycle/model"
)

// MemoryStore is an in-memory Store for tests and single-node runs.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]model.ActivityInstance // key: composite instance key
	history   map[string][]model.ActivityHistory
}

// NewMemoryStore creates a new in-memory activity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]model.ActivityInstance),
		history:   make(map[string][]model.ActivityHistory),
	}
}

// Create persists a new activity instance.
func (s *MemoryStore) Create(_ context.Context, inst model.ActivityInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inst.Key()
	if _, exists := s.instances[key]; exists {
		return model.NewConflictError(
			fmt.Sprintf("activity instance %q already exists", key),
		)
	}

	s.instances[key] = inst
	return nil
}

// Get retrieves one activity instance.
func (s *MemoryStore) Get(_ context.Context, processID, phase, code, instanceKey string) (model.ActivityInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, exists := s.instances[model.InstanceKey(processID, phase, code, instanceKey)]
	if !exists {
		return model.ActivityInstance{}, model.NewNotFoundError(
			fmt.Sprintf("activity %s/%s not found for process %s", phase, code, processID),
		)
	}
	return inst, nil
}

// Update persists an updated instance with optimistic locking.
func (s *MemoryStore) Update(_ context.Context, inst model.ActivityInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inst.Key()
	existing, exists := s.instances[key]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("activity instance %q not found", key),
		)
	}

	if existing.Version != inst.Version {
		return model.NewConflictError(
			fmt.Sprintf("activity instance %q version conflict (expected %d, got %d)", key, inst.Version, existing.Version),
		)
	}

	inst.Version++
	inst.UpdatedAt = time.Now().UTC()
	s.instances[key] = inst
	return nil
}

// ListPhase returns all instances for a (process, phase).
func (s *MemoryStore) ListPhase(_ context.Context, processID, phase string) ([]model.ActivityInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ActivityInstance
	for _, inst := range s.instances {
		if inst.ProcessID == processID && inst.Phase == phase {
			result = append(result, inst)
		}
	}
	sortInstances(result)
	return result, nil
}

// ListInstances returns every materialized instance of one activity.
func (s *MemoryStore) ListInstances(_ context.Context, processID, phase, code string) ([]model.ActivityInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ActivityInstance
	for _, inst := range s.instances {
		if inst.ProcessID == processID && inst.Phase == phase && inst.Code == code {
			result = append(result, inst)
		}
	}
	sortInstances(result)
	return result, nil
}

// AppendHistory adds a status-change record to the audit trail.
func (s *MemoryStore) AppendHistory(_ context.Context, h model.ActivityHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[h.InstanceID] = append(s.history[h.InstanceID], h)
	return nil
}

// History returns all audit records for an instance, oldest first.
func (s *MemoryStore) History(_ context.Context, instanceID string) ([]model.ActivityHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.history[instanceID]
	result := make([]model.ActivityHistory, len(records))
	copy(result, records)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// Len returns the total number of instances. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

func sortInstances(instances []model.ActivityInstance) {
	sort.Slice(instances, func(i, j int) bool {
		if instances[i].Code != instances[j].Code {
			return instances[i].Code < instances[j].Code
		}
		return instances[i].InstanceKey < instances[j].InstanceKey
	})
}
