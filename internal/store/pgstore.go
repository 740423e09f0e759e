package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/orchest/model"
)

// Schema is the DDL for the Postgres store. The snapshot column carries the
// full encoded instance; workflow_id, state, and started_at are denormalized
// for filtered listing.
//
//go:embed schema.sql
var Schema string

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL store on top of an existing pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema creates the store's tables and indexes if they are missing.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: ensuring schema: %w", err)
	}
	return nil
}

// Save upserts the instance snapshot.
func (s *PgStore) Save(ctx context.Context, inst *model.WorkflowInstance) error {
	data, err := EncodeInstance(inst)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_instances (id, workflow_id, state, started_at, updated_at, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			state      = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at,
			snapshot   = EXCLUDED.snapshot`,
		inst.ID, inst.WorkflowID, string(inst.State), inst.StartedAt.UTC(), time.Now().UTC(), data,
	)
	if err != nil {
		return fmt.Errorf("store: saving instance %s: %w", inst.ID, err)
	}
	return nil
}

// Load retrieves an instance snapshot.
func (s *PgStore) Load(ctx context.Context, instanceID string) (*model.WorkflowInstance, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM workflow_instances WHERE id = $1`, instanceID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewInstanceNotFoundError(instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: loading instance %s: %w", instanceID, err)
	}
	return DecodeInstance(data)
}

// Update applies a mutation to the stored snapshot inside a transaction,
// holding a row lock for the duration.
func (s *PgStore) Update(ctx context.Context, instanceID string, apply func(*model.WorkflowInstance) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: beginning update for instance %s: %w", instanceID, err)
	}
	defer tx.Rollback(ctx)

	var data []byte
	err = tx.QueryRow(ctx,
		`SELECT snapshot FROM workflow_instances WHERE id = $1 FOR UPDATE`, instanceID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NewInstanceNotFoundError(instanceID)
	}
	if err != nil {
		return fmt.Errorf("store: loading instance %s: %w", instanceID, err)
	}

	inst, err := DecodeInstance(data)
	if err != nil {
		return err
	}
	if err := apply(inst); err != nil {
		return err
	}
	updated, err := EncodeInstance(inst)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE workflow_instances
		SET state = $2, updated_at = $3, snapshot = $4
		WHERE id = $1`,
		inst.ID, string(inst.State), time.Now().UTC(), updated,
	)
	if err != nil {
		return fmt.Errorf("store: updating instance %s: %w", instanceID, err)
	}
	return tx.Commit(ctx)
}

// List returns matching instances, most recently started first.
func (s *PgStore) List(ctx context.Context, filter Filter) ([]*model.WorkflowInstance, error) {
	query := `SELECT snapshot FROM workflow_instances WHERE 1=1`
	args := []any{}

	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		query += fmt.Sprintf(" AND workflow_id = $%d", len(args))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: listing instances: %w", err)
	}
	defer rows.Close()

	var result []*model.WorkflowInstance
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("store: scanning instance snapshot: %w", err)
		}
		inst, err := DecodeInstance(data)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

// Delete removes an instance.
func (s *PgStore) Delete(ctx context.Context, instanceID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM workflow_instances WHERE id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("store: deleting instance %s: %w", instanceID, err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewInstanceNotFoundError(instanceID)
	}
	return nil
}

// HealthCheck pings the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
