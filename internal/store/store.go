// Package store persists workflow instance snapshots. Every store works on
// encoded snapshots rather than live objects, so a loaded instance never
// shares mutable state with the one that was saved.
package store

import (
	"context"

	"github.com/pitabwire/orchest/model"
)

// Store persists workflow instances.
type Store interface {
	// Save persists a deep-copied snapshot of the instance. Saving an
	// existing ID overwrites its snapshot.
	Save(ctx context.Context, instance *model.WorkflowInstance) error

	// Load retrieves an instance by ID. The returned value is an
	// independent copy; mutating it does not affect a later Load.
	// Returns INSTANCE_NOT_FOUND if the ID is unknown.
	Load(ctx context.Context, instanceID string) (*model.WorkflowInstance, error)

	// Update loads the stored snapshot, applies the mutation, and saves the
	// result. Returns INSTANCE_NOT_FOUND if the ID is unknown.
	Update(ctx context.Context, instanceID string, apply func(*model.WorkflowInstance) error) error

	// List returns instances matching the filter, most recently started
	// first.
	List(ctx context.Context, filter Filter) ([]*model.WorkflowInstance, error)

	// Delete removes an instance. Returns INSTANCE_NOT_FOUND if the ID is
	// unknown.
	Delete(ctx context.Context, instanceID string) error

	// HealthCheck verifies the backing storage is reachable.
	HealthCheck(ctx context.Context) error
}

// Filter narrows a List call. Zero-value fields match everything.
type Filter struct {
	WorkflowID string
	State      model.MachineState
	Limit      int
	Offset     int
}

// matches reports whether an instance passes the non-paging filter fields.
func (f Filter) matches(inst *model.WorkflowInstance) bool {
	if f.WorkflowID != "" && inst.WorkflowID != f.WorkflowID {
		return false
	}
	if f.State != "" && inst.State != f.State {
		return false
	}
	return true
}

// page applies offset and limit to a sorted result slice.
func (f Filter) page(result []*model.WorkflowInstance) []*model.WorkflowInstance {
	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return []*model.WorkflowInstance{}
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result
}
