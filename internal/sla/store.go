// Package sla tracks service-level deadlines per (process instance, phase)
// and surfaces breaches to the escalation manager via a pull-based scan.
package sla

import (
	"context"

	"github.com/kaunda/regcycle/model"
)

// Store persists SLA records. Implementations must provide per-record
// compare-and-set semantics on Update via the record version.
type Store interface {
	Create(ctx context.Context, rec model.SLARecord) error
	Get(ctx context.Context, processID, phase string) (model.SLARecord, error)
	Update(ctx context.Context, rec model.SLARecord) error
	ListOpen(ctx context.Context) ([]model.SLARecord, error)
	ListProcess(ctx context.Context, processID string) ([]model.SLARecord, error)
}
