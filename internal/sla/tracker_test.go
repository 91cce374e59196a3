package sla

import (
	"context"
	"testing"
	"time"

	"github.com/kaunda/regcycle/internal/config"
	"github.com/kaunda/regcycle/model"
)

const testProcess = "cycle-1:rep-1"

func testConfig() config.SLAConfig {
	return config.SLAConfig{
		DefaultHours: 24,
		PhaseHours:   map[string]int{"execution": 72},
	}
}

// newTestTracker returns a tracker with a controllable clock.
func newTestTracker(t *testing.T) (*Tracker, *time.Time) {
	t.Helper()
	tracker := NewTracker(NewMemoryStore(), testConfig(), nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }
	return tracker, &now
}

func TestTracker_StartTracking(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	rec, err := tracker.StartTracking(ctx, testProcess, "planning", "user-1")
	if err != nil {
		t.Fatalf("StartTracking error: %v", err)
	}
	if want := now.Add(24 * time.Hour); !rec.Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", rec.Deadline, want)
	}
	if rec.EscalationLevel != 0 {
		t.Errorf("EscalationLevel = %d", rec.EscalationLevel)
	}

	// Phase-specific window overrides the default.
	rec, err = tracker.StartTracking(ctx, testProcess, "execution", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(72 * time.Hour); !rec.Deadline.Equal(want) {
		t.Errorf("execution Deadline = %v, want %v", rec.Deadline, want)
	}
}

func TestTracker_StartTracking_idempotent(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	first, err := tracker.StartTracking(ctx, testProcess, "planning", "user-1")
	if err != nil {
		t.Fatal(err)
	}

	*now = now.Add(2 * time.Hour)
	second, err := tracker.StartTracking(ctx, testProcess, "planning", "user-2")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Error("restart must return the existing record")
	}
	if !second.Deadline.Equal(first.Deadline) {
		t.Error("restart must not move the deadline")
	}
}

func TestTracker_CompleteTracking(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.StartTracking(ctx, testProcess, "planning", "user-1"); err != nil {
		t.Fatal(err)
	}

	*now = now.Add(3 * time.Hour)
	rec, err := tracker.CompleteTracking(ctx, testProcess, "planning")
	if err != nil {
		t.Fatalf("CompleteTracking error: %v", err)
	}
	if rec.Open() {
		t.Error("record should be closed")
	}

	// Closed records never breach.
	*now = now.Add(100 * time.Hour)
	breaches, err := tracker.CheckBreaches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(breaches) != 0 {
		t.Errorf("breach count = %d for closed record", len(breaches))
	}

	// Completing an untracked phase is a quiet no-op.
	if _, err := tracker.CompleteTracking(ctx, testProcess, "reporting"); err != nil {
		t.Errorf("untracked CompleteTracking = %v", err)
	}
}

func TestTracker_CheckBreaches(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.StartTracking(ctx, testProcess, "planning", "user-1"); err != nil {
		t.Fatal(err)
	}

	// Before the deadline: nothing.
	*now = now.Add(23 * time.Hour)
	breaches, err := tracker.CheckBreaches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(breaches) != 0 {
		t.Fatalf("breach count = %d before deadline", len(breaches))
	}

	// 24h window + 5h past it.
	*now = now.Add(6 * time.Hour)
	breaches, err = tracker.CheckBreaches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(breaches) != 1 {
		t.Fatalf("breach count = %d", len(breaches))
	}
	if breaches[0].Elapsed != 5*time.Hour {
		t.Errorf("Elapsed = %v, want 5h", breaches[0].Elapsed)
	}
	if breaches[0].Record.Phase != "planning" {
		t.Errorf("Phase = %q", breaches[0].Record.Phase)
	}
}

func TestTracker_MarkEscalated_monotonic(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	rec, err := tracker.StartTracking(ctx, testProcess, "planning", "user-1")
	if err != nil {
		t.Fatal(err)
	}

	if err := tracker.MarkEscalated(ctx, rec, 2); err != nil {
		t.Fatal(err)
	}
	rec, _ = tracker.store.Get(ctx, testProcess, "planning")
	if rec.EscalationLevel != 2 {
		t.Fatalf("EscalationLevel = %d", rec.EscalationLevel)
	}

	// Lowering is refused silently.
	if err := tracker.MarkEscalated(ctx, rec, 1); err != nil {
		t.Fatal(err)
	}
	rec, _ = tracker.store.Get(ctx, testProcess, "planning")
	if rec.EscalationLevel != 2 {
		t.Errorf("EscalationLevel = %d after lowering attempt", rec.EscalationLevel)
	}
}

func TestTracker_Status(t *testing.T) {
	tracker, now := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.StartTracking(ctx, testProcess, "planning", "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.StartTracking(ctx, testProcess, "execution", "user-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.CompleteTracking(ctx, testProcess, "execution"); err != nil {
		t.Fatal(err)
	}

	*now = now.Add(26 * time.Hour)
	statuses, err := tracker.Status(ctx, testProcess)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("status count = %d", len(statuses))
	}

	byPhase := make(map[string]model.SLAStatus)
	for _, s := range statuses {
		byPhase[s.Phase] = s
	}
	planning := byPhase["planning"]
	if !planning.Breached || planning.Elapsed != 2*time.Hour {
		t.Errorf("planning status = %+v", planning)
	}
	execution := byPhase["execution"]
	if !execution.Completed || execution.Breached {
		t.Errorf("execution status = %+v", execution)
	}
}

func TestTracker_PhaseListener(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	tracker.PhaseOpened(ctx, testProcess, "planning", "user-1")
	rec, err := tracker.store.Get(ctx, testProcess, "planning")
	if err != nil {
		t.Fatalf("no record after PhaseOpened: %v", err)
	}
	if !rec.Open() {
		t.Error("record should be open")
	}

	tracker.PhaseClosed(ctx, testProcess, "planning", "user-1")
	rec, _ = tracker.store.Get(ctx, testProcess, "planning")
	if rec.Open() {
		t.Error("record should be closed after PhaseClosed")
	}
}
