package sla

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaunda/regcycle/internal/config"
	"github.com/kaunda/regcycle/model"
)

// Tracker owns SLA records: it starts tracking when a phase opens, closes
// the record when the phase completes, and answers pull-based breach scans.
// It never fires escalations itself.
type Tracker struct {
	store  Store
	cfg    config.SLAConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates an SLA tracker.
func NewTracker(store Store, cfg config.SLAConfig, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the tracker's time source. For deterministic tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// hoursFor looks up the SLA window for a phase, falling back to the default.
func (t *Tracker) hoursFor(phase string) int {
	if h, ok := t.cfg.PhaseHours[phase]; ok && h > 0 {
		return h
	}
	return t.cfg.DefaultHours
}

// StartTracking opens an SLA record with deadline = now + the phase's
// configured hours. Idempotent: if an open record already exists for the
// (process, phase) it is returned unchanged.
func (t *Tracker) StartTracking(ctx context.Context, processID, phase, startedBy string) (model.SLARecord, error) {
	if existing, err := t.store.Get(ctx, processID, phase); err == nil {
		return existing, nil
	}

	now := t.now()
	rec := model.SLARecord{
		ID:        uuid.New().String(),
		ProcessID: processID,
		Phase:     phase,
		StartedAt: now,
		StartedBy: startedBy,
		Deadline:  now.Add(time.Duration(t.hoursFor(phase)) * time.Hour),
		Version:   1,
	}
	if err := t.store.Create(ctx, rec); err != nil {
		if ee, ok := err.(*model.ErrorEnvelope); ok && ee.Code == model.ErrConflict {
			return t.store.Get(ctx, processID, phase)
		}
		return model.SLARecord{}, err
	}

	t.logger.Info("SLA tracking started",
		zap.String("process_id", processID),
		zap.String("phase", phase),
		zap.Time("deadline", rec.Deadline),
	)
	return rec, nil
}

// CompleteTracking stamps completion on the record and leaves it closed for
// historical query. Completing an already-closed or untracked record is a
// no-op.
func (t *Tracker) CompleteTracking(ctx context.Context, processID, phase string) (model.SLARecord, error) {
	rec, err := t.store.Get(ctx, processID, phase)
	if err != nil {
		if ee, ok := err.(*model.ErrorEnvelope); ok && ee.Code == model.ErrNotFound {
			return model.SLARecord{}, nil
		}
		return model.SLARecord{}, err
	}
	if !rec.Open() {
		return rec, nil
	}

	now := t.now()
	rec.CompletedAt = &now
	if err := t.store.Update(ctx, rec); err != nil {
		return model.SLARecord{}, err
	}
	rec.Version++

	t.logger.Info("SLA tracking completed",
		zap.String("process_id", processID),
		zap.String("phase", phase),
		zap.Bool("breached", now.After(rec.Deadline)),
	)
	return rec, nil
}

// CheckBreaches scans all open records and returns those past their
// deadline. Pure read; the escalation manager decides what has already
// fired.
func (t *Tracker) CheckBreaches(ctx context.Context) ([]model.Breach, error) {
	open, err := t.store.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	now := t.now()
	var breaches []model.Breach
	for _, rec := range open {
		if now.After(rec.Deadline) {
			breaches = append(breaches, model.Breach{
				Record:  rec,
				Elapsed: now.Sub(rec.Deadline),
			})
		}
	}
	return breaches, nil
}

// MarkEscalated records that the given level has fired for the record.
// Levels are monotonic; lowering is refused silently.
func (t *Tracker) MarkEscalated(ctx context.Context, rec model.SLARecord, level int) error {
	if level <= rec.EscalationLevel {
		return nil
	}
	rec.EscalationLevel = level
	return t.store.Update(ctx, rec)
}

// Status returns the per-phase SLA read model for one process instance.
func (t *Tracker) Status(ctx context.Context, processID string) ([]model.SLAStatus, error) {
	records, err := t.store.ListProcess(ctx, processID)
	if err != nil {
		return nil, err
	}

	now := t.now()
	statuses := make([]model.SLAStatus, 0, len(records))
	for _, rec := range records {
		ref := now
		if rec.CompletedAt != nil {
			ref = *rec.CompletedAt
		}
		var elapsed time.Duration
		if ref.After(rec.Deadline) {
			elapsed = ref.Sub(rec.Deadline)
		}
		statuses = append(statuses, model.SLAStatus{
			Phase:           rec.Phase,
			Deadline:        rec.Deadline,
			Elapsed:         elapsed,
			Breached:        elapsed > 0,
			EscalationLevel: rec.EscalationLevel,
			Completed:       !rec.Open(),
		})
	}
	return statuses, nil
}

// PhaseOpened starts tracking when the engine reports a phase opening.
func (t *Tracker) PhaseOpened(ctx context.Context, processID, phase, actorID string) {
	if _, err := t.StartTracking(ctx, processID, phase, actorID); err != nil {
		t.logger.Error("SLA tracking start failed",
			zap.String("process_id", processID),
			zap.String("phase", phase),
			zap.Error(err),
		)
	}
}

// PhaseClosed stops tracking when the engine reports a phase closing.
func (t *Tracker) PhaseClosed(ctx context.Context, processID, phase, _ string) {
	if _, err := t.CompleteTracking(ctx, processID, phase); err != nil {
		t.logger.Error("SLA tracking completion failed",
			zap.String("process_id", processID),
			zap.String("phase", phase),
			zap.Error(err),
		)
	}
}
