package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kaunda/regcycle/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. The transition write
// relies on the version column for compare-and-set semantics.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL activity store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// HealthCheck verifies database connectivity.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const instanceColumns = `
	id, process_id, phase, code, instance_key, status,
	can_start, can_complete, blocking_reason,
	started_at, started_by, completed_at, completed_by,
	blocked_at, blocked_by, block_reason,
	revision_requested_at, revision_requested_by, revision_reason,
	metadata, version, created_at, updated_at`

// Create inserts a new activity instance.
func (s *PgStore) Create(ctx context.Context, inst model.ActivityInstance) error {
	metaJSON, err := json.Marshal(inst.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO activity_instances (`+instanceColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16,
			$17, $18, $19,
			$20, $21, $22, $23
		)`,
		inst.ID, inst.ProcessID, inst.Phase, inst.Code, inst.InstanceKey, inst.Status,
		inst.CanStart, inst.CanComplete, inst.BlockingReason,
		inst.StartedAt, inst.StartedBy, inst.CompletedAt, inst.CompletedBy,
		inst.BlockedAt, inst.BlockedBy, inst.BlockReason,
		inst.RevisionRequestedAt, inst.RevisionRequestedBy, inst.RevisionReason,
		metaJSON, inst.Version, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity instance: %w", err)
	}
	return nil
}

// Get retrieves one activity instance.
func (s *PgStore) Get(ctx context.Context, processID, phase, code, instanceKey string) (model.ActivityInstance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+`
		FROM activity_instances
		WHERE process_id = $1 AND phase = $2 AND code = $3 AND instance_key = $4`,
		processID, phase, code, instanceKey,
	)
	inst, err := scanInstance(row)
	if err == pgx.ErrNoRows {
		return model.ActivityInstance{}, model.NewNotFoundError(
			fmt.Sprintf("activity %s/%s not found for process %s", phase, code, processID),
		)
	}
	if err != nil {
		return model.ActivityInstance{}, fmt.Errorf("query activity instance: %w", err)
	}
	return inst, nil
}

// Update persists an updated instance with optimistic locking.
func (s *PgStore) Update(ctx context.Context, inst model.ActivityInstance) error {
	metaJSON, err := json.Marshal(inst.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE activity_instances SET
			status = $1,
			can_start = $2,
			can_complete = $3,
			blocking_reason = $4,
			started_at = $5, started_by = $6,
			completed_at = $7, completed_by = $8,
			blocked_at = $9, blocked_by = $10, block_reason = $11,
			revision_requested_at = $12, revision_requested_by = $13, revision_reason = $14,
			metadata = $15,
			version = $16,
			updated_at = now()
		WHERE id = $17 AND version = $18`,
		inst.Status,
		inst.CanStart, inst.CanComplete, inst.BlockingReason,
		inst.StartedAt, inst.StartedBy,
		inst.CompletedAt, inst.CompletedBy,
		inst.BlockedAt, inst.BlockedBy, inst.BlockReason,
		inst.RevisionRequestedAt, inst.RevisionRequestedBy, inst.RevisionReason,
		metaJSON, inst.Version+1,
		inst.ID, inst.Version,
	)
	if err != nil {
		return fmt.Errorf("update activity instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("activity instance %q version conflict (expected %d)", inst.ID, inst.Version),
		)
	}
	return nil
}

// ListPhase returns all instances for a (process, phase).
func (s *PgStore) ListPhase(ctx context.Context, processID, phase string) ([]model.ActivityInstance, error) {
	return s.queryInstances(ctx, `
		SELECT `+instanceColumns+`
		FROM activity_instances
		WHERE process_id = $1 AND phase = $2
		ORDER BY code ASC, instance_key ASC`,
		processID, phase)
}

// ListInstances returns every materialized instance of one activity.
func (s *PgStore) ListInstances(ctx context.Context, processID, phase, code string) ([]model.ActivityInstance, error) {
	return s.queryInstances(ctx, `
		SELECT `+instanceColumns+`
		FROM activity_instances
		WHERE process_id = $1 AND phase = $2 AND code = $3
		ORDER BY instance_key ASC`,
		processID, phase, code)
}

// AppendHistory adds a status-change record to the audit trail.
func (s *PgStore) AppendHistory(ctx context.Context, h model.ActivityHistory) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity_history (
			id, instance_id, from_status, to_status, actor_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, h.InstanceID, h.FromStatus, h.ToStatus, h.ActorID, h.Reason, h.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert activity history: %w", err)
	}
	return nil
}

// History returns all audit records for an instance, oldest first.
func (s *PgStore) History(ctx context.Context, instanceID string) ([]model.ActivityHistory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, instance_id, from_status, to_status, actor_id, reason, created_at
		FROM activity_history
		WHERE instance_id = $1
		ORDER BY created_at ASC`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity history: %w", err)
	}
	defer rows.Close()

	var records []model.ActivityHistory
	for rows.Next() {
		var h model.ActivityHistory
		if err := rows.Scan(
			&h.ID, &h.InstanceID, &h.FromStatus, &h.ToStatus, &h.ActorID, &h.Reason, &h.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan activity history: %w", err)
		}
		records = append(records, h)
	}
	return records, rows.Err()
}

func (s *PgStore) queryInstances(ctx context.Context, query string, args ...any) ([]model.ActivityInstance, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity instances: %w", err)
	}
	defer rows.Close()

	var instances []model.ActivityInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func scanInstance(row pgx.Row) (model.ActivityInstance, error) {
	var inst model.ActivityInstance
	var metaJSON []byte
	err := row.Scan(
		&inst.ID, &inst.ProcessID, &inst.Phase, &inst.Code, &inst.InstanceKey, &inst.Status,
		&inst.CanStart, &inst.CanComplete, &inst.BlockingReason,
		&inst.StartedAt, &inst.StartedBy, &inst.CompletedAt, &inst.CompletedBy,
		&inst.BlockedAt, &inst.BlockedBy, &inst.BlockReason,
		&inst.RevisionRequestedAt, &inst.RevisionRequestedBy, &inst.RevisionReason,
		&metaJSON, &inst.Version, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return model.ActivityInstance{}, err
	}
	if metaJSON != nil {
		_ = json.Unmarshal(metaJSON, &inst.Metadata)
	}
	return inst, nil
}
