package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kaunda/regcycle/model"
)

// PgStore is a PostgreSQL-backed EventStore using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL escalation event store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Append records one escalation event. The role set and delivery attempts
// are stored as JSON documents.
func (s *PgStore) Append(ctx context.Context, ev model.EscalationEvent) error {
	rolesJSON, err := json.Marshal(ev.Roles)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	attemptsJSON, err := json.Marshal(ev.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO escalation_events (
			id, process_id, phase, level, breach_for_seconds, roles, attempts, fired_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.ProcessID, ev.Phase, ev.Level, int64(ev.BreachFor.Seconds()),
		rolesJSON, attemptsJSON, ev.FiredAt,
	)
	if err != nil {
		return fmt.Errorf("insert escalation event: %w", err)
	}
	return nil
}

// ListProcess returns the events for one process instance, oldest first.
func (s *PgStore) ListProcess(ctx context.Context, processID string) ([]model.EscalationEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, process_id, phase, level, breach_for_seconds, roles, attempts, fired_at
		FROM escalation_events
		WHERE process_id = $1
		ORDER BY fired_at ASC`,
		processID,
	)
	if err != nil {
		return nil, fmt.Errorf("query escalation events: %w", err)
	}
	defer rows.Close()

	var events []model.EscalationEvent
	for rows.Next() {
		var (
			ev           model.EscalationEvent
			seconds      int64
			rolesJSON    []byte
			attemptsJSON []byte
		)
		if err := rows.Scan(
			&ev.ID, &ev.ProcessID, &ev.Phase, &ev.Level, &seconds,
			&rolesJSON, &attemptsJSON, &ev.FiredAt,
		); err != nil {
			return nil, fmt.Errorf("scan escalation event: %w", err)
		}
		ev.BreachFor = time.Duration(seconds) * time.Second
		_ = json.Unmarshal(rolesJSON, &ev.Roles)
		_ = json.Unmarshal(attemptsJSON, &ev.Attempts)
		events = append(events, ev)
	}
	return events, rows.Err()
}
