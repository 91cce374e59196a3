package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kaunda/regcycle/internal/observability"
	"github.com/kaunda/regcycle/model"
)

// WildcardPhase matches any phase when no phase-specific handler is
// registered for an activity kind.
const WildcardPhase = "*"

// Result is what a handler reports back to the engine after Execute.
type Result struct {
	// Completed is true when the work finished within the call. Manual
	// handlers always return false: the activity sits IN_PROGRESS until an
	// external completion call arrives.
	Completed bool

	// Metadata is merged into the instance's metadata map, for example a
	// recorded approval decision.
	Metadata map[string]any
}

// Handler is the capability set a registered activity handler implements.
// Execute must be synchronous: for automated work it runs to completion or
// failure within the call, for manual work it returns immediately with a
// pending result and never blocks waiting for a human.
type Handler interface {
	CanExecute(def model.ActivityDefinition) bool
	Execute(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance) (Result, error)
	Compensate(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance) error
	Dependencies(def model.ActivityDefinition) []model.DependencyDescriptor
}

// HandlerRegistry dispatches (phase, kind) to a handler implementation,
// falling back to a wildcard-phase registration for generic behavior.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

func handlerKey(phase, kind string) string {
	return phase + "/" + kind
}

// Register binds a handler to a (phase, kind) pair. Use WildcardPhase for a
// kind-wide default. Re-registering replaces the previous binding.
func (r *HandlerRegistry) Register(phase, kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handlerKey(phase, kind)] = h
}

// Resolve finds the handler able to drive the given activity, preferring a
// phase-specific registration over the wildcard. A registration that
// rejects the definition via CanExecute falls through to the next
// candidate. A miss is a configuration error, surfaced distinctly from
// business-rule failures.
func (r *HandlerRegistry) Resolve(def model.ActivityDefinition) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, key := range []string{
		handlerKey(def.Phase, def.Kind),
		handlerKey(WildcardPhase, def.Kind),
	} {
		if h, ok := r.handlers[key]; ok && h.CanExecute(def) {
			return h, nil
		}
	}
	return nil, model.NewHandlerNotFoundError(def.Phase, def.Kind)
}

// ManualHandler is the generic handler for manually driven activities. Its
// Execute only acknowledges the start; the actual completion arrives later
// as a separate transition.
type ManualHandler struct{}

// NewManualHandler creates the generic manual activity handler.
func NewManualHandler() *ManualHandler {
	return &ManualHandler{}
}

func (h *ManualHandler) CanExecute(def model.ActivityDefinition) bool {
	return def.Manual
}

func (h *ManualHandler) Execute(_ context.Context, _ model.ActivityDefinition, _ model.ActivityInstance) (Result, error) {
	return Result{Completed: false}, nil
}

func (h *ManualHandler) Compensate(_ context.Context, _ model.ActivityDefinition, _ model.ActivityInstance) error {
	return nil
}

func (h *ManualHandler) Dependencies(def model.ActivityDefinition) []model.DependencyDescriptor {
	return def.Dependencies
}

// WorkFunc is the unit of automated work an AutomatedHandler runs. The
// returned map is merged into the instance metadata.
type WorkFunc func(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance) (map[string]any, error)

// RetryPolicy bounds re-invocation of failing automated work within a
// single Execute call.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffInitial    time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration
}

// NextBackoff returns the delay before the given 1-based attempt number.
func (p RetryPolicy) NextBackoff(attempt int) time.Duration {
	d := p.BackoffInitial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.BackoffMultiplier)
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// AutomatedHandler runs a WorkFunc synchronously with bounded retries.
type AutomatedHandler struct {
	work    WorkFunc
	retry   RetryPolicy
	compen  WorkFunc
	metrics *observability.Metrics
}

// NewAutomatedHandler creates a handler that runs work inline. compensate
// may be nil when the work has nothing to undo.
func NewAutomatedHandler(work WorkFunc, retry RetryPolicy, compensate WorkFunc) *AutomatedHandler {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &AutomatedHandler{work: work, retry: retry, compen: compensate}
}

// WithMetrics attaches metric instruments; retry attempts are counted.
func (h *AutomatedHandler) WithMetrics(m *observability.Metrics) *AutomatedHandler {
	h.metrics = m
	return h
}

func (h *AutomatedHandler) CanExecute(def model.ActivityDefinition) bool {
	return !def.Manual
}

// Execute runs the work to completion or failure within the call. Failed
// attempts back off and retry up to the policy's MaxAttempts; the last
// error is wrapped as a handler execution failure.
func (h *AutomatedHandler) Execute(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= h.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if h.metrics != nil {
				h.metrics.RecordHandlerRetry(def.Phase, def.Kind)
			}
			select {
			case <-ctx.Done():
				return Result{}, model.NewHandlerExecutionFailedError(ctx.Err())
			case <-time.After(h.retry.NextBackoff(attempt)):
			}
		}

		meta, err := h.work(ctx, def, inst)
		if err == nil {
			return Result{Completed: true, Metadata: meta}, nil
		}
		lastErr = err
	}
	return Result{}, model.NewHandlerExecutionFailedError(
		fmt.Errorf("%s after %d attempts: %w", def.Ref(), h.retry.MaxAttempts, lastErr),
	)
}

func (h *AutomatedHandler) Compensate(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance) error {
	if h.compen == nil {
		return nil
	}
	_, err := h.compen(ctx, def, inst)
	return err
}

func (h *AutomatedHandler) Dependencies(def model.ActivityDefinition) []model.DependencyDescriptor {
	return def.Dependencies
}
