package sla

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kaunda/regcycle/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. The version column
// provides compare-and-set semantics so sweep and completion never clobber
// each other.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL SLA store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// HealthCheck verifies database connectivity.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const recordColumns = `
	id, process_id, phase, activity_code,
	started_at, started_by, deadline,
	escalation_level, completed_at, version`

// Create inserts a new SLA record.
func (s *PgStore) Create(ctx context.Context, rec model.SLARecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sla_records (`+recordColumns+`
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.ProcessID, rec.Phase, rec.ActivityCode,
		rec.StartedAt, rec.StartedBy, rec.Deadline,
		rec.EscalationLevel, rec.CompletedAt, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("insert SLA record: %w", err)
	}
	return nil
}

// Get retrieves the SLA record for a (process, phase).
func (s *PgStore) Get(ctx context.Context, processID, phase string) (model.SLARecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM sla_records
		WHERE process_id = $1 AND phase = $2`,
		processID, phase,
	)
	rec, err := scanRecord(row)
	if err == pgx.ErrNoRows {
		return model.SLARecord{}, model.NewNotFoundError(
			fmt.Sprintf("no SLA record for process %s phase %s", processID, phase),
		)
	}
	if err != nil {
		return model.SLARecord{}, fmt.Errorf("query SLA record: %w", err)
	}
	return rec, nil
}

// Update persists a changed record with optimistic locking.
func (s *PgStore) Update(ctx context.Context, rec model.SLARecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sla_records SET
			escalation_level = $1,
			completed_at = $2,
			version = $3
		WHERE id = $4 AND version = $5`,
		rec.EscalationLevel, rec.CompletedAt, rec.Version+1,
		rec.ID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update SLA record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("SLA record %q version conflict (expected %d)", rec.ID, rec.Version),
		)
	}
	return nil
}

// ListOpen returns all records still being tracked, oldest deadline first.
func (s *PgStore) ListOpen(ctx context.Context) ([]model.SLARecord, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM sla_records
		WHERE completed_at IS NULL
		ORDER BY deadline ASC`)
}

// ListProcess returns all records for one process instance.
func (s *PgStore) ListProcess(ctx context.Context, processID string) ([]model.SLARecord, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM sla_records
		WHERE process_id = $1
		ORDER BY phase ASC`,
		processID)
}

func (s *PgStore) queryRecords(ctx context.Context, query string, args ...any) ([]model.SLARecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query SLA records: %w", err)
	}
	defer rows.Close()

	var records []model.SLARecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan SLA record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (model.SLARecord, error) {
	var rec model.SLARecord
	err := row.Scan(
		&rec.ID, &rec.ProcessID, &rec.Phase, &rec.ActivityCode,
		&rec.StartedAt, &rec.StartedBy, &rec.Deadline,
		&rec.EscalationLevel, &rec.CompletedAt, &rec.Version,
	)
	if err != nil {
		return model.SLARecord{}, err
	}
	return rec, nil
}
