package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kaunda/regcycle/internal/activity"
	"github.com/kaunda/regcycle/model"
)

func seedInstance(t *testing.T, store *activity.MemoryStore, phase, code, instanceKey, status string, metadata map[string]any) {
	t.Helper()
	now := time.Now().UTC()
	inst := model.ActivityInstance{
		ID:          uuid.New().String(),
		ProcessID:   testProcess,
		Phase:       phase,
		Code:        code,
		InstanceKey: instanceKey,
		Status:      status,
		Metadata:    metadata,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if status == model.ActivityStatusCompleted {
		inst.CompletedAt = &now
	}
	if err := store.Create(context.Background(), inst); err != nil {
		t.Fatal(err)
	}
}

func TestResolver_CompletionDependency(t *testing.T) {
	store := activity.NewMemoryStore()
	reg := testCatalog()
	r := NewResolver(reg, store)
	ctx := context.Background()

	def, _ := reg.GetActivity("planning", "scope_selection")

	// No predecessor instance at all.
	if ok, _ := r.CanStart(ctx, def, testProcess); ok {
		t.Error("CanStart with missing predecessor = true")
	}

	seedInstance(t, store, "planning", "phase_start", "", model.ActivityStatusNotStarted, nil)
	if ok, reason := r.CanStart(ctx, def, testProcess); ok {
		t.Error("CanStart with incomplete predecessor = true")
	} else if reason == "" {
		t.Error("blocking reason should name the unsatisfied predecessor")
	}
}

func TestResolver_CompletionDependency_satisfied(t *testing.T) {
	store := activity.NewMemoryStore()
	reg := testCatalog()
	r := NewResolver(reg, store)

	seedInstance(t, store, "planning", "phase_start", "", model.ActivityStatusCompleted, nil)

	def, _ := reg.GetActivity("planning", "scope_selection")
	if ok, reason := r.CanStart(context.Background(), def, testProcess); !ok {
		t.Errorf("CanStart = false: %s", reason)
	}
}

func TestResolver_AllInstances(t *testing.T) {
	store := activity.NewMemoryStore()
	reg := testCatalog()
	r := NewResolver(reg, store)
	ctx := context.Background()

	def, _ := reg.GetActivity("execution", "validate")

	// An empty predecessor set is not a vacuous pass.
	if ok, _ := r.CanStart(ctx, def, testProcess); ok {
		t.Error("CanStart with zero predecessor instances = true")
	}

	seedInstance(t, store, "execution", "upload", "owner-a", model.ActivityStatusCompleted, nil)
	seedInstance(t, store, "execution", "upload", "owner-b", model.ActivityStatusInProgress, nil)
	if ok, _ := r.CanStart(ctx, def, testProcess); ok {
		t.Error("CanStart with one incomplete instance = true")
	}

	store2 := activity.NewMemoryStore()
	r2 := NewResolver(reg, store2)
	seedInstance(t, store2, "execution", "upload", "owner-a", model.ActivityStatusCompleted, nil)
	seedInstance(t, store2, "execution", "upload", "owner-b", model.ActivityStatusCompleted, nil)
	if ok, reason := r2.CanStart(ctx, def, testProcess); !ok {
		t.Errorf("CanStart with all instances complete = false: %s", reason)
	}
}

func TestResolver_ApprovalDependency(t *testing.T) {
	reg := testCatalog()
	reg.Replace([]model.PhaseDefinition{
		{
			Name:     "signoff",
			Sequence: 1,
			Activities: []model.ActivityDefinition{
				{Phase: "signoff", Code: "manager_approval", Kind: model.ActivityKindApproval, Manual: true, OpensPhase: true},
				{Phase: "signoff", Code: "publish", Kind: model.ActivityKindTask,
					Dependencies: []model.DependencyDescriptor{
						{Phase: "signoff", Activity: "manager_approval", Kind: model.DependencyKindApproval},
					}},
			},
		},
	})

	store := activity.NewMemoryStore()
	r := NewResolver(reg, store)
	ctx := context.Background()
	def, _ := reg.GetActivity("signoff", "publish")

	// Completion alone is not enough for an approval dependency.
	seedInstance(t, store, "signoff", "manager_approval", "", model.ActivityStatusCompleted, nil)
	if ok, _ := r.CanStart(ctx, def, testProcess); ok {
		t.Error("approval dependency satisfied without a recorded decision")
	}

	store2 := activity.NewMemoryStore()
	r2 := NewResolver(reg, store2)
	seedInstance(t, store2, "signoff", "manager_approval", "", model.ActivityStatusCompleted,
		map[string]any{model.MetadataKeyApprovalDecision: "approved"})
	if ok, reason := r2.CanStart(ctx, def, testProcess); !ok {
		t.Errorf("CanStart with recorded decision = false: %s", reason)
	}
}

func TestResolver_NoDependencies_phaseGate(t *testing.T) {
	store := activity.NewMemoryStore()
	reg := testCatalog()
	r := NewResolver(reg, store)
	ctx := context.Background()

	opener, _ := reg.GetActivity("planning", "phase_start")
	if ok, _ := r.CanStart(ctx, opener, testProcess); !ok {
		t.Error("phase opener must always be startable")
	}
}
