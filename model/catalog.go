package model

// Activity kinds. A kind classifies what an activity represents inside its
// phase; start and complete kinds are structural markers rather than real
// work, flagged explicitly on the definition via AutoComplete/OpensPhase/
// ClosesPhase so the engine never infers behavior from names.
const (
	ActivityKindStart    = "start"
	ActivityKindTask     = "task"
	ActivityKindReview   = "review"
	ActivityKindApproval = "approval"
	ActivityKindComplete = "complete"
	ActivityKindCustom   = "custom"
)

// Dependency kinds.
const (
	// DependencyKindCompletion requires the predecessor to be COMPLETED.
	DependencyKindCompletion = "completion"
	// DependencyKindApproval additionally requires a recorded approval
	// decision in the predecessor's metadata.
	DependencyKindApproval = "approval"
)

// MetadataKeyApprovalDecision is the instance metadata key an approval
// handler records its decision under. Approval-kind dependencies check it.
const MetadataKeyApprovalDecision = "approval_decision"

// PhaseDefinition is one ordered stage of the test cycle with its activity
// templates. Loaded from YAML at startup; read-only at runtime.
type PhaseDefinition struct {
	Name       string               `yaml:"name"`
	Sequence   int                  `yaml:"sequence"`
	Activities []ActivityDefinition `yaml:"activities"`

	// Set by the loader, not part of the YAML document.
	Checksum   string `yaml:"-"`
	SourceFile string `yaml:"-"`
}

// ActivityDefinition is the immutable catalog entry for one activity
// template within a phase.
type ActivityDefinition struct {
	// Phase is the owning phase name, set by the loader.
	Phase string `yaml:"-"`

	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Sequence int    `yaml:"sequence"`

	// Manual activities wait for an external completion call; automated
	// activities run synchronously inside Execute.
	Manual bool `yaml:"manual"`

	// Optional activities may be SKIPPED from NOT_STARTED.
	Optional bool `yaml:"optional"`

	// Parallel activities fan out into one instance per instance key
	// (for example one per data owner or document).
	Parallel bool `yaml:"parallel"`

	// AutoComplete marks a phase-entry activity that completes in the
	// same transition that starts it.
	AutoComplete bool `yaml:"auto_complete"`

	// OpensPhase and ClosesPhase mark the two points where activity
	// completion feeds back into phase-level state.
	OpensPhase  bool `yaml:"opens_phase"`
	ClosesPhase bool `yaml:"closes_phase"`

	Dependencies []DependencyDescriptor `yaml:"dependencies"`
}

// DependencyDescriptor names one predecessor requirement of an activity.
type DependencyDescriptor struct {
	Phase    string `yaml:"phase"`
	Activity string `yaml:"activity"`
	Kind     string `yaml:"kind"`

	// AllInstances requires every materialized instance of a parallel
	// predecessor to satisfy the dependency. An empty predecessor set is
	// not a vacuous pass.
	AllInstances bool `yaml:"all_instances"`
}

// Ref returns the phase-qualified reference of the definition.
func (d ActivityDefinition) Ref() string {
	return d.Phase + "/" + d.Code
}

// Ref returns the phase-qualified reference of the predecessor.
func (d DependencyDescriptor) Ref() string {
	return d.Phase + "/" + d.Activity
}
