package catalog

import (
	"fmt"

	"github.com/kaunda/regcycle/model"
)

// VError describes a single validation error in a catalog file.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

var validKinds = map[string]bool{
	model.ActivityKindStart:    true,
	model.ActivityKindTask:     true,
	model.ActivityKindReview:   true,
	model.ActivityKindApproval: true,
	model.ActivityKindComplete: true,
	model.ActivityKindCustom:   true,
}

var validDependencyKinds = map[string]bool{
	model.DependencyKindCompletion: true,
	model.DependencyKindApproval:   true,
}

// Validator validates the catalog structurally and referentially, and
// rejects cyclic dependency graphs before a registry is built from them.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all phases. An empty result means the catalog is safe to
// serve; any cycle, duplicate, or dangling reference is an error, never a
// warning, because the unlock fan-out walks this graph at runtime.
func (v *Validator) Validate(phases []model.PhaseDefinition) []VError {
	var errs []VError

	phaseNames := make(map[string]bool, len(phases))
	refs := make(map[string]model.ActivityDefinition)

	for i, phase := range phases {
		prefix := fmt.Sprintf("phases[%d]", i)

		if phase.Name == "" {
			errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "phase name is required"})
			continue
		}
		if phaseNames[phase.Name] {
			errs = append(errs, VError{Path: prefix + ".name", Code: "DUPLICATE", Message: fmt.Sprintf("phase %q is defined more than once", phase.Name)})
		}
		phaseNames[phase.Name] = true

		codes := make(map[string]bool, len(phase.Activities))
		for j, a := range phase.Activities {
			ap := fmt.Sprintf("%s.activities[%d]", prefix, j)
			errs = append(errs, v.validateActivity(ap, a, codes)...)
			codes[a.Code] = true
			refs[a.Ref()] = a
		}
	}

	// Referential checks need the full activity set.
	for i, phase := range phases {
		for j, a := range phase.Activities {
			for k, dep := range a.Dependencies {
				dp := fmt.Sprintf("phases[%d].activities[%d].dependencies[%d]", i, j, k)
				if _, ok := refs[dep.Ref()]; !ok {
					errs = append(errs, VError{Path: dp, Code: "UNKNOWN_REFERENCE",
						Message: fmt.Sprintf("dependency %q does not exist in the catalog", dep.Ref())})
				}
			}
		}
	}

	errs = append(errs, v.validateAcyclic(refs)...)
	return errs
}

func (v *Validator) validateActivity(prefix string, a model.ActivityDefinition, seen map[string]bool) []VError {
	var errs []VError

	if a.Code == "" {
		errs = append(errs, VError{Path: prefix + ".code", Code: "REQUIRED", Message: "activity code is required"})
	}
	if seen[a.Code] {
		errs = append(errs, VError{Path: prefix + ".code", Code: "DUPLICATE",
			Message: fmt.Sprintf("activity %q is defined more than once in its phase", a.Code)})
	}
	if a.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "activity name is required"})
	}
	if !validKinds[a.Kind] {
		errs = append(errs, VError{Path: prefix + ".kind", Code: "INVALID",
			Message: fmt.Sprintf("activity kind %q is not recognized", a.Kind)})
	}
	if a.AutoComplete && a.Manual {
		errs = append(errs, VError{Path: prefix + ".auto_complete", Code: "INVALID",
			Message: "an auto-completing marker cannot be manual"})
	}
	if a.AutoComplete && a.Parallel {
		errs = append(errs, VError{Path: prefix + ".auto_complete", Code: "INVALID",
			Message: "an auto-completing marker cannot fan out"})
	}

	for k, dep := range a.Dependencies {
		dp := fmt.Sprintf("%s.dependencies[%d]", prefix, k)
		if dep.Phase == "" || dep.Activity == "" {
			errs = append(errs, VError{Path: dp, Code: "REQUIRED", Message: "dependency phase and activity are required"})
		}
		if !validDependencyKinds[dep.Kind] {
			errs = append(errs, VError{Path: dp + ".kind", Code: "INVALID",
				Message: fmt.Sprintf("dependency kind %q is not recognized", dep.Kind)})
		}
	}

	return errs
}

// validateAcyclic runs a three-color DFS over the dependency edges. The
// graph is assumed acyclic by construction (linear phase ordering with
// fan-out only within a phase); a cyclic catalog is rejected outright
// rather than risking infinite unlock recursion at runtime.
func (v *Validator) validateAcyclic(refs map[string]model.ActivityDefinition) []VError {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(refs))

	var errs []VError
	var visit func(ref string, path []string)
	visit = func(ref string, path []string) {
		switch color[ref] {
		case gray:
			errs = append(errs, VError{Path: ref, Code: "CYCLE",
				Message: fmt.Sprintf("dependency cycle detected: %v -> %s", path, ref)})
			return
		case black:
			return
		}
		color[ref] = gray
		if a, ok := refs[ref]; ok {
			for _, dep := range a.Dependencies {
				visit(dep.Ref(), append(path, ref))
			}
		}
		color[ref] = black
	}

	for ref := range refs {
		if color[ref] == white {
			visit(ref, nil)
		}
	}
	return errs
}
