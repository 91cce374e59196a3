package model

import "time"

// Activity instance status constants.
const (
	ActivityStatusNotStarted        = "NOT_STARTED"
	ActivityStatusInProgress        = "IN_PROGRESS"
	ActivityStatusCompleted         = "COMPLETED"
	ActivityStatusBlocked           = "BLOCKED"
	ActivityStatusRevisionRequested = "REVISION_REQUESTED"
	ActivityStatusSkipped           = "SKIPPED"
)

// Phase status constants. Phase status is a pure projection recomputed from
// activity instance state; it is never stored separately.
const (
	PhaseStatusNotStarted = "NOT_STARTED"
	PhaseStatusInProgress = "IN_PROGRESS"
	PhaseStatusComplete   = "COMPLETE"
)

// NewProcessID composes the process instance identifier from the cycle and
// report that one concrete run of the workflow is scoped to.
func NewProcessID(cycleID, reportID string) string {
	return cycleID + ":" + reportID
}

// ActivityInstance is one tracked unit of work: one row per
// (process instance, phase, activity, optional parallel instance key).
// Mutated only by the transition engine; never hard-deleted.
type ActivityInstance struct {
	ID        string `json:"id"`
	ProcessID string `json:"process_id"`
	Phase     string `json:"phase"`
	Code      string `json:"code"`

	// InstanceKey discriminates parallel fan-out instances (for example a
	// data-owner ID). Empty for sequential activities.
	InstanceKey string `json:"instance_key,omitempty"`

	Status string `json:"status"`

	// Gating flags, recomputed by the engine on dependency changes. They
	// are set eagerly and re-validated at actual start time.
	CanStart       bool   `json:"can_start"`
	CanComplete    bool   `json:"can_complete"`
	BlockingReason string `json:"blocking_reason,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	StartedBy   string     `json:"started_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy string     `json:"completed_by,omitempty"`

	BlockedAt   *time.Time `json:"blocked_at,omitempty"`
	BlockedBy   string     `json:"blocked_by,omitempty"`
	BlockReason string     `json:"block_reason,omitempty"`

	RevisionRequestedAt *time.Time `json:"revision_requested_at,omitempty"`
	RevisionRequestedBy string     `json:"revision_requested_by,omitempty"`
	RevisionReason      string     `json:"revision_reason,omitempty"`

	// Metadata is open handler-specific state, for example a recorded
	// approval decision.
	Metadata map[string]any `json:"metadata,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the serialization key of the instance: the triple that
// concurrent transitions are mutually exclusive over.
func (a ActivityInstance) Key() string {
	return InstanceKey(a.ProcessID, a.Phase, a.Code, a.InstanceKey)
}

// InstanceKey builds the composite lookup key for an activity instance.
func InstanceKey(processID, phase, code, instanceKey string) string {
	return processID + "|" + phase + "|" + code + "|" + instanceKey
}

// ActivityHistory is one append-only audit record of a status change.
type ActivityHistory struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ActivityView is the read model returned to external callers.
type ActivityView struct {
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Phase          string    `json:"phase"`
	Kind           string    `json:"kind"`
	InstanceKey    string    `json:"instance_key,omitempty"`
	Status         string    `json:"status"`
	CanStart       bool      `json:"can_start"`
	CanComplete    bool      `json:"can_complete"`
	BlockingReason string    `json:"blocking_reason,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}
