package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kaunda/regcycle/model"
)

const planningYAML = `
name: planning
sequence: 1
activities:
  - code: phase_start
    name: Phase Start
    kind: start
    sequence: 1
  - code: scope_selection
    name: Scope Selection
    kind: task
    sequence: 2
    manual: true
    dependencies:
      - phase: planning
        activity: phase_start
        kind: completion
  - code: phase_complete
    name: Phase Complete
    kind: complete
    sequence: 3
    manual: true
    dependencies:
      - phase: planning
        activity: scope_selection
        kind: completion
`

func writeCatalogFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalogFile(t, dir, "planning.yaml", planningYAML)

	phase, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	if phase.Name != "planning" {
		t.Errorf("Name = %q", phase.Name)
	}
	if len(phase.Activities) != 3 {
		t.Fatalf("activity count = %d", len(phase.Activities))
	}
	if phase.Checksum == "" {
		t.Error("expected checksum to be computed")
	}
	if phase.SourceFile != path {
		t.Errorf("SourceFile = %q", phase.SourceFile)
	}

	// Every activity carries its owning phase.
	for _, a := range phase.Activities {
		if a.Phase != "planning" {
			t.Errorf("activity %s Phase = %q", a.Code, a.Phase)
		}
	}
}

func TestLoader_markerDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalogFile(t, dir, "planning.yaml", planningYAML)

	phase, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	start := phase.Activities[0]
	if !start.AutoComplete || !start.OpensPhase {
		t.Errorf("start marker flags: auto_complete=%v opens_phase=%v", start.AutoComplete, start.OpensPhase)
	}

	task := phase.Activities[1]
	if task.AutoComplete || task.OpensPhase || task.ClosesPhase {
		t.Errorf("task should carry no marker flags: %+v", task)
	}

	complete := phase.Activities[2]
	if !complete.ClosesPhase {
		t.Error("complete marker should close the phase")
	}
	if complete.AutoComplete {
		t.Error("complete marker should not auto-complete")
	}
}

func TestLoader_LoadAll(t *testing.T) {
	dir := t.TempDir()
	writeCatalogFile(t, dir, "planning.yaml", planningYAML)
	writeCatalogFile(t, dir, "notes.txt", "not a catalog file")
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o700); err != nil {
		t.Fatal(err)
	}
	writeCatalogFile(t, sub, "execution.yml", "name: execution\nsequence: 2\n")

	phases, err := NewLoader().LoadAll([]string{dir})
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	if len(phases) != 2 {
		t.Fatalf("phase count = %d, want 2 (txt file skipped)", len(phases))
	}
}

func TestLoader_LoadAll_badYAML(t *testing.T) {
	dir := t.TempDir()
	writeCatalogFile(t, dir, "broken.yaml", "name: [unclosed")

	if _, err := NewLoader().LoadAll([]string{dir}); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoader_dependencies(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalogFile(t, dir, "planning.yaml", planningYAML)

	phase, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	deps := phase.Activities[1].Dependencies
	if len(deps) != 1 {
		t.Fatalf("dependency count = %d", len(deps))
	}
	if deps[0].Ref() != "planning/phase_start" {
		t.Errorf("Ref = %q", deps[0].Ref())
	}
	if deps[0].Kind != model.DependencyKindCompletion {
		t.Errorf("Kind = %q", deps[0].Kind)
	}
}

func TestLoader_markerFlagsForcedByKind(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalogFile(t, dir, "planning.yaml", `
name: planning
sequence: 1
activities:
  - code: phase_start
    name: Phase Start
    kind: start
    sequence: 1
    auto_complete: false
    opens_phase: false
  - code: phase_complete
    name: Phase Complete
    kind: complete
    sequence: 2
    manual: true
    closes_phase: false
`)

	phase, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	// Structural kinds imply their marker flags; a file cannot turn them off.
	start := phase.Activities[0]
	if !start.AutoComplete || !start.OpensPhase {
		t.Errorf("start flags survived a file override: auto_complete=%v opens_phase=%v",
			start.AutoComplete, start.OpensPhase)
	}
	if !phase.Activities[1].ClosesPhase {
		t.Error("complete flag survived a file override")
	}
}
