package engine

import (
	"context"
	"fmt"

	"github.com/kaunda/regcycle/internal/activity"
	"github.com/kaunda/regcycle/internal/catalog"
	"github.com/kaunda/regcycle/model"
)

// Resolver decides whether an activity's preconditions are satisfied. It
// only reads; it never mutates instance state and never returns an error:
// missing data is simply a non-satisfied precondition.
type Resolver struct {
	catalog *catalog.Registry
	store   activity.Store
}

// NewResolver creates a dependency resolver over the given catalog and
// state store.
func NewResolver(reg *catalog.Registry, store activity.Store) *Resolver {
	return &Resolver{catalog: reg, store: store}
}

// CanStart reports whether the activity may move out of NOT_STARTED, and if
// not, a human-readable reason naming the first unsatisfied precondition.
// Safe to call repeatedly; no side effects.
func (r *Resolver) CanStart(ctx context.Context, def model.ActivityDefinition, processID string) (bool, string) {
	if len(def.Dependencies) == 0 {
		// Without explicit dependencies the only gate is that the phase
		// itself is active. Phase openers are the entry point and are
		// always startable.
		if def.OpensPhase {
			return true, ""
		}
		if !r.phaseActive(ctx, processID, def.Phase) {
			return false, fmt.Sprintf("phase %q has not started", def.Phase)
		}
		return true, ""
	}

	for _, dep := range def.Dependencies {
		if ok, reason := r.satisfied(ctx, processID, dep); !ok {
			return false, reason
		}
	}
	return true, ""
}

func (r *Resolver) satisfied(ctx context.Context, processID string, dep model.DependencyDescriptor) (bool, string) {
	instances, err := r.store.ListInstances(ctx, processID, dep.Phase, dep.Activity)
	if err != nil || len(instances) == 0 {
		return false, fmt.Sprintf("predecessor %s has no instances", dep.Ref())
	}

	if dep.AllInstances {
		for _, inst := range instances {
			if !r.instanceSatisfies(inst, dep) {
				return false, fmt.Sprintf("predecessor %s instance %q is %s", dep.Ref(), inst.InstanceKey, inst.Status)
			}
		}
		return true, ""
	}

	for _, inst := range instances {
		if r.instanceSatisfies(inst, dep) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("predecessor %s is not completed", dep.Ref())
}

// instanceSatisfies checks a single predecessor instance against the
// dependency kind. An approval dependency needs a recorded decision in the
// predecessor's metadata on top of completion.
func (r *Resolver) instanceSatisfies(inst model.ActivityInstance, dep model.DependencyDescriptor) bool {
	if inst.Status != model.ActivityStatusCompleted {
		return false
	}
	if dep.Kind == model.DependencyKindApproval {
		decision, ok := inst.Metadata[model.MetadataKeyApprovalDecision]
		if !ok || decision == nil || decision == "" {
			return false
		}
	}
	return true
}

// phaseActive reports whether the phase has been opened for the process:
// its opener activity is COMPLETED. Phases without an opener count as
// active once any of their activities has left NOT_STARTED.
func (r *Resolver) phaseActive(ctx context.Context, processID, phase string) bool {
	def, ok := r.catalog.GetPhase(phase)
	if !ok {
		return false
	}

	var opener *model.ActivityDefinition
	for i := range def.Activities {
		if def.Activities[i].OpensPhase {
			opener = &def.Activities[i]
			break
		}
	}

	if opener != nil {
		inst, err := r.store.Get(ctx, processID, phase, opener.Code, "")
		return err == nil && inst.Status == model.ActivityStatusCompleted
	}

	instances, err := r.store.ListPhase(ctx, processID, phase)
	if err != nil {
		return false
	}
	for _, inst := range instances {
		if inst.Status != model.ActivityStatusNotStarted {
			return true
		}
	}
	return false
}
