// Package escalation computes escalation levels for SLA breaches and
// notifies the configured audience for each level.
package escalation

import (
	"context"

	"github.com/kaunda/regcycle/model"
)

// EventStore persists escalation events. Events are append-only.
type EventStore interface {
	Append(ctx context.Context, ev model.EscalationEvent) error
	ListProcess(ctx context.Context, processID string) ([]model.EscalationEvent, error)
}
