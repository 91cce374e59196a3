package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaunda/regcycle/internal/activity"
	"github.com/kaunda/regcycle/internal/catalog"
	"github.com/kaunda/regcycle/internal/observability"
	"github.com/kaunda/regcycle/model"
)

// PhaseListener is notified when activity completion feeds back into
// phase-level state: the opener of a phase completing opens it, the closer
// completing closes it. These are the only two feedback points.
type PhaseListener interface {
	PhaseOpened(ctx context.Context, processID, phase, actorID string)
	PhaseClosed(ctx context.Context, processID, phase, actorID string)
}

// TransitionRequest carries one requested status change.
type TransitionRequest struct {
	ProcessID   string
	Phase       string
	Code        string
	InstanceKey string
	Target      string
	ActorID     string
	Reason      string

	// Metadata is merged into the instance metadata on completion, for
	// example a recorded approval decision.
	Metadata map[string]any
}

// Engine validates and applies activity state transitions, consults the
// dependency resolver before allowing a start, and fans out can_start
// re-evaluation to dependents on completion. It is the only writer of
// activity instance state.
type Engine struct {
	catalog   *catalog.Registry
	store     activity.Store
	resolver  *Resolver
	handlers  *HandlerRegistry
	listeners []PhaseListener
	locks     *keyedMutex
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// New creates a transition engine over the given catalog, store and
// handler registry.
func New(reg *catalog.Registry, store activity.Store, handlers *HandlerRegistry, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		catalog:  reg,
		store:    store,
		resolver: NewResolver(reg, store),
		handlers: handlers,
		locks:    newKeyedMutex(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddListener registers a phase listener. Not safe to call concurrently
// with running transitions; wire listeners at startup.
func (e *Engine) AddListener(l PhaseListener) {
	e.listeners = append(e.listeners, l)
}

// WithMetrics attaches metric instruments to the engine.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// InitializePhase materializes the phase's sequential activities from the
// catalog for the given process. Parallel activities are materialized later
// via MaterializeInstance when their fan-out key becomes known. Idempotent:
// already-existing instances are left untouched.
func (e *Engine) InitializePhase(ctx context.Context, processID, phase string) ([]model.ActivityView, error) {
	def, ok := e.catalog.GetPhase(phase)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("phase %q is not in the catalog", phase))
	}

	now := e.now()
	for _, a := range def.Activities {
		if a.Parallel {
			continue
		}

		canStart, reason := e.resolver.CanStart(ctx, a, processID)
		inst := model.ActivityInstance{
			ID:             uuid.New().String(),
			ProcessID:      processID,
			Phase:          phase,
			Code:           a.Code,
			Status:         model.ActivityStatusNotStarted,
			CanStart:       canStart,
			BlockingReason: reason,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		err := e.store.Create(ctx, inst)
		if err != nil {
			if ee, ok := err.(*model.ErrorEnvelope); ok && ee.Code == model.ErrConflict {
				continue
			}
			return nil, err
		}
	}

	return e.ListActivities(ctx, processID, phase)
}

// MaterializeInstance creates one instance of a parallel activity for the
// given fan-out key, for example a newly assigned data owner.
func (e *Engine) MaterializeInstance(ctx context.Context, processID, phase, code, instanceKey string) (model.ActivityView, error) {
	def, ok := e.catalog.GetActivity(phase, code)
	if !ok {
		return model.ActivityView{}, model.NewNotFoundError(fmt.Sprintf("activity %s/%s is not in the catalog", phase, code))
	}
	if !def.Parallel {
		return model.ActivityView{}, model.NewBadRequestError(
			fmt.Sprintf("activity %s is not parallel; it is materialized at phase initialization", def.Ref()),
		)
	}
	if instanceKey == "" {
		return model.ActivityView{}, model.NewBadRequestError("instance key is required for a parallel activity")
	}

	canStart, reason := e.resolver.CanStart(ctx, def, processID)
	now := e.now()
	inst := model.ActivityInstance{
		ID:             uuid.New().String(),
		ProcessID:      processID,
		Phase:          phase,
		Code:           code,
		InstanceKey:    instanceKey,
		Status:         model.ActivityStatusNotStarted,
		CanStart:       canStart,
		BlockingReason: reason,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.Create(ctx, inst); err != nil {
		return model.ActivityView{}, err
	}
	return e.toView(def, inst), nil
}

// ListActivities returns the current view of all instances in a phase.
// can_start is recomputed live for NOT_STARTED instances so the view never
// shows a stale eager flag.
func (e *Engine) ListActivities(ctx context.Context, processID, phase string) ([]model.ActivityView, error) {
	instances, err := e.store.ListPhase(ctx, processID, phase)
	if err != nil {
		return nil, err
	}

	views := make([]model.ActivityView, 0, len(instances))
	for _, inst := range instances {
		def, ok := e.catalog.GetActivity(inst.Phase, inst.Code)
		if !ok {
			continue
		}
		if inst.Status == model.ActivityStatusNotStarted {
			inst.CanStart, inst.BlockingReason = e.resolver.CanStart(ctx, def, processID)
		}
		views = append(views, e.toView(def, inst))
	}
	return views, nil
}

// Transition validates and applies one status change. Calls on the same
// (process, phase, code, instance key) are serialized; a failed transition
// leaves the instance exactly as it was.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (model.ActivityView, error) {
	def, ok := e.catalog.GetActivity(req.Phase, req.Code)
	if !ok {
		return model.ActivityView{}, model.NewNotFoundError(
			fmt.Sprintf("activity %s/%s is not in the catalog", req.Phase, req.Code),
		)
	}

	unlock := e.locks.Lock(model.InstanceKey(req.ProcessID, req.Phase, req.Code, req.InstanceKey))
	defer unlock()

	began := time.Now()

	inst, err := e.store.Get(ctx, req.ProcessID, req.Phase, req.Code, req.InstanceKey)
	if err != nil {
		return model.ActivityView{}, err
	}

	var view model.ActivityView
	switch req.Target {
	case model.ActivityStatusInProgress:
		view, err = e.start(ctx, def, inst, req)
	case model.ActivityStatusCompleted:
		view, err = e.complete(ctx, def, inst, req)
	case model.ActivityStatusBlocked:
		view, err = e.block(ctx, def, inst, req)
	case model.ActivityStatusRevisionRequested:
		view, err = e.requestRevision(ctx, def, inst, req)
	case model.ActivityStatusSkipped:
		view, err = e.skip(ctx, def, inst, req)
	default:
		return model.ActivityView{}, model.NewInvalidTransitionError(
			fmt.Sprintf("%q is not a valid target status", req.Target),
		)
	}
	if err != nil {
		if e.metrics != nil {
			if ee, ok := err.(*model.ErrorEnvelope); ok {
				e.metrics.RecordTransitionRejection(req.Phase, ee.Code)
			}
		}
		return view, err
	}
	if e.metrics != nil {
		e.metrics.RecordTransition(req.Phase, req.Target, time.Since(began))
	}

	e.logger.Info("activity transition applied",
		zap.String("process_id", req.ProcessID),
		zap.String("activity", def.Ref()),
		zap.String("instance_key", req.InstanceKey),
		zap.String("status", view.Status),
		zap.String("actor_id", req.ActorID),
	)
	return view, nil
}

// start moves NOT_STARTED to IN_PROGRESS, or resumes a BLOCKED activity.
// Phase-entry activities flagged auto-complete advance straight to
// COMPLETED in one externally observable transition.
func (e *Engine) start(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance, req TransitionRequest) (model.ActivityView, error) {
	if inst.Status == model.ActivityStatusBlocked {
		return e.resume(ctx, def, inst, req)
	}
	if inst.Status != model.ActivityStatusNotStarted {
		return model.ActivityView{}, model.NewInvalidTransitionError(
			fmt.Sprintf("cannot start %s from %s", def.Ref(), inst.Status),
		)
	}

	if ok, reason := e.resolver.CanStart(ctx, def, req.ProcessID); !ok {
		return model.ActivityView{}, model.NewPreconditionNotMetError(reason)
	}

	handler, err := e.handlers.Resolve(def)
	if err != nil {
		return model.ActivityView{}, err
	}

	now := e.now()

	if def.AutoComplete {
		from := inst.Status
		inst.Status = model.ActivityStatusCompleted
		inst.StartedAt, inst.StartedBy = &now, req.ActorID
		inst.CompletedAt, inst.CompletedBy = &now, req.ActorID
		inst.CanStart, inst.CanComplete, inst.BlockingReason = false, false, ""
		if err := e.persist(ctx, &inst, from, req.ActorID, req.Reason); err != nil {
			return model.ActivityView{}, err
		}
		e.afterCompletion(ctx, def, inst, req.ActorID)
		return e.toView(def, inst), nil
	}

	from := inst.Status
	inst.Status = model.ActivityStatusInProgress
	inst.StartedAt, inst.StartedBy = &now, req.ActorID
	inst.CanStart, inst.CanComplete, inst.BlockingReason = false, true, ""
	if err := e.persist(ctx, &inst, from, req.ActorID, req.Reason); err != nil {
		return model.ActivityView{}, err
	}

	result, err := e.execute(ctx, handler, def, inst)
	if err != nil {
		// The work itself failed; the instance stays IN_PROGRESS and the
		// caller may re-invoke completion to retry.
		return e.toView(def, inst), err
	}
	if result.Completed {
		return e.finishCompletion(ctx, def, inst, req, result.Metadata)
	}
	return e.toView(def, inst), nil
}

// resume returns a BLOCKED activity to IN_PROGRESS.
func (e *Engine) resume(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance, req TransitionRequest) (model.ActivityView, error) {
	from := inst.Status
	inst.Status = model.ActivityStatusInProgress
	inst.BlockedAt, inst.BlockedBy, inst.BlockReason = nil, "", ""
	inst.CanComplete = true
	if err := e.persist(ctx, &inst, from, req.ActorID, req.Reason); err != nil {
		return model.ActivityView{}, err
	}
	return e.toView(def, inst), nil
}

func (e *Engine) complete(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance, req TransitionRequest) (model.ActivityView, error) {
	// Re-completing is a no-op success carrying the original completion
	// metadata; no second history row is written.
	if inst.Status == model.ActivityStatusCompleted {
		return e.toView(def, inst), nil
	}

	switch inst.Status {
	case model.ActivityStatusInProgress:
	case model.ActivityStatusNotStarted:
		// Automated work may complete without an observed start, but the
		// dependency gate still applies.
		if def.Manual {
			return model.ActivityView{}, model.NewInvalidTransitionError(
				fmt.Sprintf("manual activity %s must be started before completion", def.Ref()),
			)
		}
		if ok, reason := e.resolver.CanStart(ctx, def, req.ProcessID); !ok {
			return model.ActivityView{}, model.NewPreconditionNotMetError(reason)
		}
	default:
		return model.ActivityView{}, model.NewInvalidTransitionError(
			fmt.Sprintf("cannot complete %s from %s", def.Ref(), inst.Status),
		)
	}

	var resultMeta map[string]any
	if !def.Manual {
		handler, err := e.handlers.Resolve(def)
		if err != nil {
			return model.ActivityView{}, err
		}
		result, err := e.execute(ctx, handler, def, inst)
		if err != nil {
			if inst.Status == model.ActivityStatusNotStarted {
				return model.ActivityView{}, err
			}
			return e.toView(def, inst), err
		}
		resultMeta = result.Metadata
	}

	req.Metadata = mergeMetadata(req.Metadata, resultMeta)
	return e.finishCompletion(ctx, def, inst, req, nil)
}

// finishCompletion stamps completion, persists it and fans out to
// dependents and phase listeners.
func (e *Engine) finishCompletion(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance, req TransitionRequest, extraMeta map[string]any) (model.ActivityView, error) {
	now := e.now()
	from := inst.Status
	inst.Status = model.ActivityStatusCompleted
	inst.CompletedAt, inst.CompletedBy = &now, req.ActorID
	inst.CanStart, inst.CanComplete, inst.BlockingReason = false, false, ""
	inst.Metadata = mergeMetadata(inst.Metadata, mergeMetadata(req.Metadata, extraMeta))

	if err := e.persist(ctx, &inst, from, req.ActorID, req.Reason); err != nil {
		return model.ActivityView{}, err
	}

	e.afterCompletion(ctx, def, inst, req.ActorID)
	return e.toView(def, inst), nil
}

func (e *Engine) block(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance, req TransitionRequest) (model.ActivityView, error) {
	if inst.Status != model.ActivityStatusInProgress {
		return model.ActivityView{}, model.NewInvalidTransitionError(
			fmt.Sprintf("cannot block %s from %s", def.Ref(), inst.Status),
		)
	}

	now := e.now()
	from := inst.Status
	inst.Status = model.ActivityStatusBlocked
	inst.BlockedAt, inst.BlockedBy = &now, req.ActorID
	inst.BlockReason = req.Reason
	inst.CanComplete = false
	if err := e.persist(ctx, &inst, from, req.ActorID, req.Reason); err != nil {
		return model.ActivityView{}, err
	}
	return e.toView(def, inst), nil
}

// requestRevision records the revision request and immediately resets the
// activity to NOT_STARTED so it can be redone. Two history rows are
// written: the request and the reset.
func (e *Engine) requestRevision(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance, req TransitionRequest) (model.ActivityView, error) {
	if inst.Status != model.ActivityStatusInProgress {
		return model.ActivityView{}, model.NewInvalidTransitionError(
			fmt.Sprintf("cannot request revision of %s from %s", def.Ref(), inst.Status),
		)
	}

	now := e.now()
	from := inst.Status
	inst.Status = model.ActivityStatusRevisionRequested
	inst.RevisionRequestedAt, inst.RevisionRequestedBy = &now, req.ActorID
	inst.RevisionReason = req.Reason
	if err := e.persist(ctx, &inst, from, req.ActorID, req.Reason); err != nil {
		return model.ActivityView{}, err
	}

	from = inst.Status
	clearProgress(&inst)
	inst.CanStart, inst.BlockingReason = e.resolver.CanStart(ctx, def, req.ProcessID)
	if err := e.persist(ctx, &inst, from, req.ActorID, "reset for revision"); err != nil {
		return model.ActivityView{}, err
	}
	return e.toView(def, inst), nil
}

func (e *Engine) skip(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance, req TransitionRequest) (model.ActivityView, error) {
	if !def.Optional {
		return model.ActivityView{}, model.NewInvalidTransitionError(
			fmt.Sprintf("activity %s is not optional and cannot be skipped", def.Ref()),
		)
	}
	if inst.Status != model.ActivityStatusNotStarted {
		return model.ActivityView{}, model.NewInvalidTransitionError(
			fmt.Sprintf("cannot skip %s from %s", def.Ref(), inst.Status),
		)
	}

	from := inst.Status
	inst.Status = model.ActivityStatusSkipped
	inst.CanStart, inst.CanComplete = false, false
	if err := e.persist(ctx, &inst, from, req.ActorID, req.Reason); err != nil {
		return model.ActivityView{}, err
	}
	return e.toView(def, inst), nil
}

// ResetActivity administratively resets an activity to NOT_STARTED. With
// cascade, every activity transitively depending on it is reset as well,
// computed by walking the dependency graph forward. A COMPLETED instance
// has its handler's Compensate invoked before the state is cleared.
// Returns the views of every instance that was reset.
func (e *Engine) ResetActivity(ctx context.Context, processID, phase, code, instanceKey, actorID string, cascade bool) ([]model.ActivityView, error) {
	root, ok := e.catalog.GetActivity(phase, code)
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("activity %s/%s is not in the catalog", phase, code))
	}

	targets := []model.ActivityDefinition{root}
	if cascade {
		targets = append(targets, e.transitiveDependents(root)...)
	}

	var views []model.ActivityView
	for i, def := range targets {
		instances, err := e.store.ListInstances(ctx, processID, def.Phase, def.Code)
		if err != nil {
			return views, err
		}
		for _, inst := range instances {
			// The root reset is scoped to the named instance; the cascade
			// resets every instance of each dependent.
			if i == 0 && inst.InstanceKey != instanceKey {
				continue
			}
			if inst.Status == model.ActivityStatusNotStarted {
				continue
			}

			unlock := e.locks.Lock(inst.Key())
			current, err := e.store.Get(ctx, inst.ProcessID, inst.Phase, inst.Code, inst.InstanceKey)
			if err != nil {
				unlock()
				return views, err
			}
			from := current.Status

			// Completed work is compensated before its state is cleared.
			// Compensation failure is logged and does not stop the reset:
			// the state rollback is the authoritative outcome.
			if current.Status == model.ActivityStatusCompleted {
				if h, herr := e.handlers.Resolve(def); herr == nil {
					if cerr := h.Compensate(ctx, def, current); cerr != nil {
						e.logger.Warn("compensation failed",
							zap.String("process_id", processID),
							zap.String("activity", def.Ref()),
							zap.String("instance_key", current.InstanceKey),
							zap.Error(cerr),
						)
					}
				}
			}

			clearProgress(&current)
			current.CanStart, current.BlockingReason = e.resolver.CanStart(ctx, def, processID)
			err = e.persist(ctx, &current, from, actorID, "administrative reset")
			unlock()
			if err != nil {
				return views, err
			}
			views = append(views, e.toView(def, current))
		}
	}

	if e.metrics != nil {
		e.metrics.RecordReset(phase)
	}
	e.logger.Info("activity reset",
		zap.String("process_id", processID),
		zap.String("activity", root.Ref()),
		zap.Bool("cascade", cascade),
		zap.Int("instances_reset", len(views)),
		zap.String("actor_id", actorID),
	)
	return views, nil
}

// transitiveDependents walks the dependency graph forward from root and
// returns every reachable activity definition, breadth-first, root
// excluded.
func (e *Engine) transitiveDependents(root model.ActivityDefinition) []model.ActivityDefinition {
	seen := map[string]bool{root.Ref(): true}
	queue := []model.ActivityDefinition{root}
	var out []model.ActivityDefinition

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range e.catalog.Dependents(cur.Phase, cur.Code) {
			if seen[dep.Ref()] {
				continue
			}
			seen[dep.Ref()] = true
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	return out
}

// PhaseStatus projects phase-level state from activity instances. A phase
// is COMPLETE once its closer activity is COMPLETED, IN_PROGRESS once its
// opener is, and NOT_STARTED otherwise.
func (e *Engine) PhaseStatus(ctx context.Context, processID, phase string) (string, error) {
	def, ok := e.catalog.GetPhase(phase)
	if !ok {
		return "", model.NewNotFoundError(fmt.Sprintf("phase %q is not in the catalog", phase))
	}

	instances, err := e.store.ListPhase(ctx, processID, phase)
	if err != nil {
		return "", err
	}
	byCode := make(map[string]model.ActivityInstance, len(instances))
	for _, inst := range instances {
		if inst.InstanceKey == "" {
			byCode[inst.Code] = inst
		}
	}

	status := model.PhaseStatusNotStarted
	for _, a := range def.Activities {
		inst, ok := byCode[a.Code]
		if !ok || inst.Status != model.ActivityStatusCompleted {
			continue
		}
		if a.ClosesPhase {
			return model.PhaseStatusComplete, nil
		}
		if a.OpensPhase {
			status = model.PhaseStatusInProgress
		}
	}
	return status, nil
}

// History returns the audit trail of one activity instance, oldest first.
func (e *Engine) History(ctx context.Context, processID, phase, code, instanceKey string) ([]model.ActivityHistory, error) {
	inst, err := e.store.Get(ctx, processID, phase, code, instanceKey)
	if err != nil {
		return nil, err
	}
	return e.store.History(ctx, inst.ID)
}

// execute runs a handler with timing instrumentation.
func (e *Engine) execute(ctx context.Context, h Handler, def model.ActivityDefinition, inst model.ActivityInstance) (Result, error) {
	began := time.Now()
	result, err := h.Execute(ctx, def, inst)
	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordHandlerExecution(def.Phase, def.Kind, status, time.Since(began))
	}
	return result, err
}

// afterCompletion runs the completion fan-out: dependents get their
// can_start flag re-evaluated eagerly, and phase listeners are notified
// when the completed activity opens or closes its phase. The eager flag is
// advisory; actual start re-validates.
func (e *Engine) afterCompletion(ctx context.Context, def model.ActivityDefinition, inst model.ActivityInstance, actorID string) {
	for _, dep := range e.catalog.Dependents(def.Phase, def.Code) {
		instances, err := e.store.ListInstances(ctx, inst.ProcessID, dep.Phase, dep.Code)
		if err != nil {
			continue
		}
		for _, di := range instances {
			if di.Status != model.ActivityStatusNotStarted {
				continue
			}
			canStart, reason := e.resolver.CanStart(ctx, dep, inst.ProcessID)
			if di.CanStart == canStart && di.BlockingReason == reason {
				continue
			}
			di.CanStart, di.BlockingReason = canStart, reason
			if err := e.store.Update(ctx, di); err != nil {
				// A concurrent transition got there first; its own
				// re-evaluation supersedes this one.
				e.logger.Debug("dependent flag update skipped",
					zap.String("activity", dep.Ref()),
					zap.Error(err),
				)
			}
		}
	}

	if def.OpensPhase {
		for _, l := range e.listeners {
			l.PhaseOpened(ctx, inst.ProcessID, def.Phase, actorID)
		}
	}
	if def.ClosesPhase {
		for _, l := range e.listeners {
			l.PhaseClosed(ctx, inst.ProcessID, def.Phase, actorID)
		}
	}
}

// persist writes the mutated instance and appends the matching audit
// record.
func (e *Engine) persist(ctx context.Context, inst *model.ActivityInstance, fromStatus, actorID, reason string) error {
	if err := e.store.Update(ctx, *inst); err != nil {
		return err
	}
	inst.Version++
	inst.UpdatedAt = e.now()

	return e.store.AppendHistory(ctx, model.ActivityHistory{
		ID:         uuid.New().String(),
		InstanceID: inst.ID,
		FromStatus: fromStatus,
		ToStatus:   inst.Status,
		ActorID:    actorID,
		Reason:     reason,
		Timestamp:  e.now(),
	})
}

func (e *Engine) toView(def model.ActivityDefinition, inst model.ActivityInstance) model.ActivityView {
	return model.ActivityView{
		Code:           inst.Code,
		Name:           def.Name,
		Phase:          inst.Phase,
		Kind:           def.Kind,
		InstanceKey:    inst.InstanceKey,
		Status:         inst.Status,
		CanStart:       inst.CanStart,
		CanComplete:    inst.CanComplete,
		BlockingReason: inst.BlockingReason,
		LastUpdated:    inst.UpdatedAt,
	}
}

// clearProgress returns an instance to its pristine NOT_STARTED shape.
// History rows are kept; the reset itself is another history row.
func clearProgress(inst *model.ActivityInstance) {
	inst.Status = model.ActivityStatusNotStarted
	inst.StartedAt, inst.StartedBy = nil, ""
	inst.CompletedAt, inst.CompletedBy = nil, ""
	inst.BlockedAt, inst.BlockedBy, inst.BlockReason = nil, "", ""
	inst.RevisionRequestedAt, inst.RevisionRequestedBy, inst.RevisionReason = nil, "", ""
	inst.CanComplete = false
}

// mergeMetadata overlays extra onto base into a fresh map. Neither
// argument is written to: instance metadata loaded from the store may be
// shared with concurrent resolver reads.
func mergeMetadata(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
