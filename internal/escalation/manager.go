package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaunda/regcycle/internal/config"
	"github.com/kaunda/regcycle/internal/observability"
	"github.com/kaunda/regcycle/internal/sla"
	"github.com/kaunda/regcycle/model"
)

// Manager turns SLA breaches into escalation events. The level is a pure
// function of time past deadline against an ordered threshold ladder; the
// manager fires each level at most once per record and resolves the level's
// roles to concrete recipients before notifying them.
type Manager struct {
	tracker    *sla.Tracker
	events     EventStore
	thresholds []config.ThresholdConfig
	resolver   model.RoleResolver
	notifier   model.Notifier
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewManager creates an escalation manager.
func NewManager(tracker *sla.Tracker, events EventStore, thresholds []config.ThresholdConfig, resolver model.RoleResolver, notifier model.Notifier, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		tracker:    tracker,
		events:     events,
		thresholds: thresholds,
		resolver:   resolver,
		notifier:   notifier,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the manager's time source. For deterministic tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithMetrics attaches metric instruments to the manager.
func (m *Manager) WithMetrics(metrics *observability.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// LevelForElapsed returns the highest level whose threshold the elapsed
// breach duration has crossed, or zero when none has.
func (m *Manager) LevelForElapsed(elapsed time.Duration) int {
	level := 0
	for _, th := range m.thresholds {
		if elapsed >= th.After {
			level = th.Level
		}
	}
	return level
}

// TriggerEscalation fires the escalations a breach is due for. Levels
// already fired for the record are skipped; levels between the record's
// current level and the one the elapsed time has reached each get their own
// event, so no level is skipped silently. Returns the events fired, which
// is empty when the record is already at or past the due level.
func (m *Manager) TriggerEscalation(ctx context.Context, breach model.Breach) ([]model.EscalationEvent, error) {
	target := m.LevelForElapsed(breach.Elapsed)
	if target <= breach.Record.EscalationLevel {
		return nil, nil
	}

	var fired []model.EscalationEvent
	for _, th := range m.thresholds {
		if th.Level <= breach.Record.EscalationLevel || th.Level > target {
			continue
		}

		ev := m.fire(ctx, breach, th)
		if err := m.events.Append(ctx, ev); err != nil {
			return fired, err
		}
		fired = append(fired, ev)
	}

	if err := m.tracker.MarkEscalated(ctx, breach.Record, target); err != nil {
		return fired, err
	}
	return fired, nil
}

// fire notifies every recipient of one level independently and records each
// attempt's outcome. A failed delivery never blocks the rest.
func (m *Manager) fire(ctx context.Context, breach model.Breach, th config.ThresholdConfig) model.EscalationEvent {
	rec := breach.Record
	subject := fmt.Sprintf("SLA escalation level %d: %s phase %s", th.Level, rec.ProcessID, rec.Phase)
	body := fmt.Sprintf(
		"Phase %s of process %s is %s past its deadline of %s.",
		rec.Phase, rec.ProcessID, breach.Elapsed.Round(time.Minute), rec.Deadline.Format(time.RFC3339),
	)

	ev := model.EscalationEvent{
		ID:        uuid.New().String(),
		ProcessID: rec.ProcessID,
		Phase:     rec.Phase,
		Level:     th.Level,
		BreachFor: breach.Elapsed,
		Roles:     th.Roles,
		FiredAt:   m.now(),
	}

	for _, role := range th.Roles {
		recipients, err := m.resolver.Resolve(ctx, rec.ProcessID, role)
		if err != nil {
			m.logger.Error("role resolution failed",
				zap.String("role", role),
				zap.String("process_id", rec.ProcessID),
				zap.Error(err),
			)
			continue
		}

		for _, recipient := range recipients {
			attempt := model.NotificationAttempt{
				RecipientID: recipient,
				Role:        role,
				AttemptedAt: m.now(),
			}
			if err := m.notifier.Notify(ctx, recipient, subject, body); err != nil {
				wrapped := model.NewNotificationFailedError(recipient, err)
				attempt.Error = wrapped.Message
				m.logger.Warn("escalation notification failed",
					zap.String("recipient_id", recipient),
					zap.Int("level", th.Level),
					zap.Error(err),
				)
			} else {
				attempt.Delivered = true
			}
			if m.metrics != nil {
				m.metrics.RecordNotification(attempt.Delivered)
			}
			ev.Attempts = append(ev.Attempts, attempt)
		}
	}

	if m.metrics != nil {
		m.metrics.RecordEscalation(th.Level)
	}
	m.logger.Info("escalation fired",
		zap.String("process_id", rec.ProcessID),
		zap.String("phase", rec.Phase),
		zap.Int("level", th.Level),
		zap.Duration("breach_for", breach.Elapsed),
		zap.Int("attempts", len(ev.Attempts)),
	)
	return ev
}

// Sweep runs one breach scan and escalates everything that is due. A
// failing record does not stop the sweep; its breach stays open and is
// retried on the next cycle.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	began := time.Now()
	breaches, err := m.tracker.CheckBreaches(ctx)
	if err != nil {
		return 0, err
	}
	if m.metrics != nil {
		defer func() { m.metrics.RecordSweep(time.Since(began)) }()
	}

	fired := 0
	for _, breach := range breaches {
		if m.metrics != nil {
			m.metrics.RecordSLABreach(breach.Record.Phase)
		}
		events, err := m.TriggerEscalation(ctx, breach)
		if err != nil {
			m.logger.Error("escalation failed",
				zap.String("process_id", breach.Record.ProcessID),
				zap.String("phase", breach.Record.Phase),
				zap.Error(err),
			)
			continue
		}
		fired += len(events)
	}
	return fired, nil
}

// ListEvents returns the escalation history of one process instance.
func (m *Manager) ListEvents(ctx context.Context, processID string) ([]model.EscalationEvent, error) {
	return m.events.ListProcess(ctx, processID)
}
