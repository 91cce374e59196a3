package model

import (
	"context"
	"time"
)

// EscalationEvent is the immutable record of one escalation firing.
// Append-only; never mutated.
type EscalationEvent struct {
	ID        string `json:"id"`
	ProcessID string `json:"process_id"`
	Phase     string `json:"phase"`
	Level     int    `json:"level"`

	// BreachFor is how long the record had been past its deadline when
	// the event fired.
	BreachFor time.Duration `json:"breach_for"`

	// Roles is the audience configured for the level.
	Roles []string `json:"roles"`

	// Attempts records the outcome of each notification delivery
	// individually; one recipient's failure does not block the others.
	Attempts []NotificationAttempt `json:"attempts"`

	FiredAt time.Time `json:"fired_at"`
}

// NotificationAttempt is the outcome of one delivery attempt to one
// recipient.
type NotificationAttempt struct {
	RecipientID string    `json:"recipient_id"`
	Role        string    `json:"role"`
	Delivered   bool      `json:"delivered"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// RoleResolver resolves a role to the concrete recipients for a process
// instance (for example the assigned executive for that cycle plus global
// admins). Consumed by the escalation manager; read-only.
type RoleResolver interface {
	Resolve(ctx context.Context, processID, role string) ([]string, error)
}

// Notifier delivers one notification to one recipient. Implementations are
// used identically regardless of channel.
type Notifier interface {
	Notify(ctx context.Context, recipientID, subject, body string) error
}
