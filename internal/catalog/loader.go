// Package catalog loads YAML activity catalog files, validates them, and
// provides a fast-lookup registry with atomic pointer swap.
package catalog

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kaunda/regcycle/model"
)

// Loader scans directories for YAML catalog files, parses them, and
// computes SHA-256 checksums.
type Loader struct{}

// NewLoader creates a new catalog Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll recursively scans directories for *.yaml and *.yml files and
// parses each into a PhaseDefinition.
func (l *Loader) LoadAll(directories []string) ([]model.PhaseDefinition, error) {
	var phases []model.PhaseDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			phase, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			phases = append(phases, phase)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return phases, nil
}

// LoadFile loads and parses a single YAML phase file. It computes the
// SHA-256 checksum, records the source file path, stamps the owning phase
// on each activity, and applies marker defaults for structural kinds.
func (l *Loader) LoadFile(path string) (model.PhaseDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.PhaseDefinition{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var phase model.PhaseDefinition
	if err := yaml.Unmarshal(data, &phase); err != nil {
		return model.PhaseDefinition{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	phase.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	phase.SourceFile = path

	for i := range phase.Activities {
		phase.Activities[i].Phase = phase.Name
		applyMarkerDefaults(&phase.Activities[i])
	}

	return phase, nil
}

// applyMarkerDefaults forces the structural-marker flags implied by the
// start and complete kinds. The flags follow from the kind; a file cannot
// declare a start activity that does not auto-complete or open its phase.
func applyMarkerDefaults(a *model.ActivityDefinition) {
	switch a.Kind {
	case model.ActivityKindStart:
		a.AutoComplete = true
		a.OpensPhase = true
	case model.ActivityKindComplete:
		a.ClosesPhase = true
	}
}
