package catalog

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/kaunda/regcycle/model"
)

// snapshot is an immutable view of the loaded catalog plus derived indexes.
type snapshot struct {
	phases     map[string]model.PhaseDefinition
	activities map[string]model.ActivityDefinition // key: phase/code
	dependents map[string][]model.ActivityDefinition
	checksum   string
}

// Registry is a read-optimized, thread-safe store of the activity catalog.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given phase definitions.
func NewRegistry(phases []model.PhaseDefinition) *Registry {
	r := &Registry{}
	r.Replace(phases)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given phases. The dependents index (predecessor → activities
// depending on it) is rebuilt; it drives the engine's unlock fan-out and
// cascading reset.
func (r *Registry) Replace(phases []model.PhaseDefinition) {
	s := &snapshot{
		phases:     make(map[string]model.PhaseDefinition, len(phases)),
		activities: make(map[string]model.ActivityDefinition),
		dependents: make(map[string][]model.ActivityDefinition),
	}

	var checksumParts []string

	for _, phase := range phases {
		s.phases[phase.Name] = phase
		checksumParts = append(checksumParts, phase.Checksum)

		for _, a := range phase.Activities {
			s.activities[a.Ref()] = a
			for _, dep := range a.Dependencies {
				s.dependents[dep.Ref()] = append(s.dependents[dep.Ref()], a)
			}
		}
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetPhase returns the phase definition with the given name.
func (r *Registry) GetPhase(name string) (model.PhaseDefinition, bool) {
	p, ok := r.current().phases[name]
	return p, ok
}

// GetActivity returns the activity definition for the given phase and code.
func (r *Registry) GetActivity(phase, code string) (model.ActivityDefinition, bool) {
	a, ok := r.current().activities[phase+"/"+code]
	return a, ok
}

// Dependents returns the activity definitions that list (phase, code) as a
// predecessor, in catalog order.
func (r *Registry) Dependents(phase, code string) []model.ActivityDefinition {
	return r.current().dependents[phase+"/"+code]
}

// AllPhases returns all phase definitions ordered by sequence.
func (r *Registry) AllPhases() []model.PhaseDefinition {
	s := r.current()
	phases := make([]model.PhaseDefinition, 0, len(s.phases))
	for _, p := range s.phases {
		phases = append(phases, p)
	}
	sort.Slice(phases, func(i, j int) bool {
		return phases[i].Sequence < phases[j].Sequence
	})
	return phases
}

// Checksum returns the combined checksum of all loaded phases.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
