package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pitabwire/orchest/model"
)

// MemoryStore is an in-memory Store. Snapshots are held encoded, so loads
// are isolated from the live instances the engine mutates.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte // key: instance ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string][]byte)}
}

// Save persists an encoded snapshot of the instance.
func (s *MemoryStore) Save(_ context.Context, inst *model.WorkflowInstance) error {
	data, err := EncodeInstance(inst)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[inst.ID] = data
	return nil
}

// Load retrieves an independent copy of the instance.
func (s *MemoryStore) Load(_ context.Context, instanceID string) (*model.WorkflowInstance, error) {
	s.mu.RLock()
	data, exists := s.snapshots[instanceID]
	s.mu.RUnlock()

	if !exists {
		return nil, model.NewInstanceNotFoundError(instanceID)
	}
	return DecodeInstance(data)
}

// Update applies a mutation to the stored snapshot atomically.
func (s *MemoryStore) Update(_ context.Context, instanceID string, apply func(*model.WorkflowInstance) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, exists := s.snapshots[instanceID]
	if !exists {
		return model.NewInstanceNotFoundError(instanceID)
	}
	inst, err := DecodeInstance(data)
	if err != nil {
		return err
	}
	if err := apply(inst); err != nil {
		return err
	}
	updated, err := EncodeInstance(inst)
	if err != nil {
		return err
	}
	s.snapshots[instanceID] = updated
	return nil
}

// List returns matching instances, most recently started first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*model.WorkflowInstance, error) {
	s.mu.RLock()
	encoded := make([][]byte, 0, len(s.snapshots))
	for _, data := range s.snapshots {
		encoded = append(encoded, data)
	}
	s.mu.RUnlock()

	var result []*model.WorkflowInstance
	for _, data := range encoded {
		inst, err := DecodeInstance(data)
		if err != nil {
			return nil, err
		}
		if filter.matches(inst) {
			result = append(result, inst)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return filter.page(result), nil
}

// Delete removes an instance snapshot.
func (s *MemoryStore) Delete(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.snapshots[instanceID]; !exists {
		return model.NewInstanceNotFoundError(instanceID)
	}
	delete(s.snapshots, instanceID)
	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Len returns the number of stored snapshots. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
