// Package activity persists activity instances and their append-only
// status history.
package activity

import (
	"context"

	"github.com/kaunda/regcycle/model"
)

// Store persists activity instances and history. Instances are mutated only
// by the transition engine; history is append-only and never mutated.
type Store interface {
	// Create persists a new activity instance. Returns CONFLICT if an
	// instance with the same (process, phase, code, instance key) exists.
	Create(ctx context.Context, inst model.ActivityInstance) error

	// Get retrieves one activity instance. Returns NOT_FOUND if absent.
	Get(ctx context.Context, processID, phase, code, instanceKey string) (model.ActivityInstance, error)

	// Update persists an updated instance with optimistic locking. The
	// version must match the current stored version; returns CONFLICT if
	// the version has changed.
	Update(ctx context.Context, inst model.ActivityInstance) error

	// ListPhase returns all instances for a (process, phase), ordered by
	// activity code then instance key.
	ListPhase(ctx context.Context, processID, phase string) ([]model.ActivityInstance, error)

	// ListInstances returns every materialized instance of one activity,
	// one per parallel instance key (a single element for sequential
	// activities).
	ListInstances(ctx context.Context, processID, phase, code string) ([]model.ActivityInstance, error)

	// AppendHistory adds a status-change record to the audit trail.
	AppendHistory(ctx context.Context, h model.ActivityHistory) error

	// History returns all audit records for an instance, oldest first.
	History(ctx context.Context, instanceID string) ([]model.ActivityHistory, error)
}
