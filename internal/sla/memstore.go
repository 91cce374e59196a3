package sla

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kaunda/regcycle/model"
)

// MemoryStore is an in-memory Store for tests and single-node runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.SLARecord // key: processID|phase
}

// NewMemoryStore creates a new in-memory SLA store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.SLARecord)}
}

func recordKey(processID, phase string) string {
	return processID + "|" + phase
}

// Create persists a new SLA record.
func (s *MemoryStore) Create(_ context.Context, rec model.SLARecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec.ProcessID, rec.Phase)
	if _, exists := s.records[key]; exists {
		return model.NewConflictError(fmt.Sprintf("SLA record %q already exists", key))
	}
	s.records[key] = rec
	return nil
}

// Get retrieves the SLA record for a (process, phase).
func (s *MemoryStore) Get(_ context.Context, processID, phase string) (model.SLARecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[recordKey(processID, phase)]
	if !exists {
		return model.SLARecord{}, model.NewNotFoundError(
			fmt.Sprintf("no SLA record for process %s phase %s", processID, phase),
		)
	}
	return rec, nil
}

// Update persists a changed record with optimistic locking.
func (s *MemoryStore) Update(_ context.Context, rec model.SLARecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(rec.ProcessID, rec.Phase)
	existing, exists := s.records[key]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("SLA record %q not found", key))
	}
	if existing.Version != rec.Version {
		return model.NewConflictError(
			fmt.Sprintf("SLA record %q version conflict (expected %d, got %d)", key, rec.Version, existing.Version),
		)
	}

	rec.Version++
	s.records[key] = rec
	return nil
}

// ListOpen returns all records still being tracked, oldest deadline first.
func (s *MemoryStore) ListOpen(_ context.Context) ([]model.SLARecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SLARecord
	for _, rec := range s.records {
		if rec.Open() {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Deadline.Before(result[j].Deadline)
	})
	return result, nil
}

// ListProcess returns all records for one process instance, by phase name.
func (s *MemoryStore) ListProcess(_ context.Context, processID string) ([]model.SLARecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SLARecord
	for _, rec := range s.records {
		if rec.ProcessID == processID {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Phase < result[j].Phase
	})
	return result, nil
}
