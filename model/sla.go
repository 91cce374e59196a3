package model

import "time"

// SLARecord tracks the service-level deadline for one (process instance,
// phase) pair, optionally narrowed to a single activity for fine-grained
// tracking. Owned exclusively by the SLA tracker.
type SLARecord struct {
	ID        string `json:"id"`
	ProcessID string `json:"process_id"`
	Phase     string `json:"phase"`

	// ActivityCode is empty for phase-level tracking.
	ActivityCode string `json:"activity_code,omitempty"`

	StartedAt time.Time `json:"started_at"`
	StartedBy string    `json:"started_by"`
	Deadline  time.Time `json:"deadline"`

	// EscalationLevel is the highest level already fired for this record;
	// zero means no escalation yet.
	EscalationLevel int `json:"escalation_level"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Version     int        `json:"version"`
}

// Open reports whether the record is still being tracked.
func (r SLARecord) Open() bool {
	return r.CompletedAt == nil
}

// Breach is one open SLA record whose deadline has passed, as returned by a
// pull-based breach scan. A record breaches at most once conceptually but
// may be rechecked many times as it ages past the deadline.
type Breach struct {
	Record SLARecord `json:"record"`

	// Elapsed is how far past the deadline the record is at scan time.
	Elapsed time.Duration `json:"elapsed"`
}

// SLAStatus is the per-phase read model for a process instance.
type SLAStatus struct {
	Phase           string        `json:"phase"`
	Deadline        time.Time     `json:"deadline"`
	Elapsed         time.Duration `json:"elapsed"`
	Breached        bool          `json:"breached"`
	EscalationLevel int           `json:"escalation_level"`
	Completed       bool          `json:"completed"`
}
