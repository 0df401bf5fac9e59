package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"pollcast/domain/core"
	"pollcast/domain/forecast"
	"pollcast/internal/errors"
	"pollcast/ports"

	"github.com/jmoiron/sqlx"
)

// runRepository implements the RunRepository interface
type runRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new run repository. The pollcast_runs table must
// exist; see internal/migration.
func NewRunRepository(db *sqlx.DB) ports.RunRepository {
	return &runRepository{db: db}
}

// Save inserts a run, replacing any existing row with the same ID
func (r *runRepository) Save(ctx context.Context, run *forecast.Run) error {
	if run.ID == "" {
		return errors.InvalidInput("run has no ID")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run")
	}

	query := `INSERT INTO pollcast_runs (
		id, created_at, best_order, error_margin, policy, regions, payload
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7
	)
	ON CONFLICT (id) DO UPDATE SET
		created_at = EXCLUDED.created_at,
		best_order = EXCLUDED.best_order,
		error_margin = EXCLUDED.error_margin,
		policy = EXCLUDED.policy,
		regions = EXCLUDED.regions,
		payload = EXCLUDED.payload`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.CreatedAt, run.BestOrder, run.ErrorMargin, run.Policy, len(run.Forecasts), payload,
	)
	if err != nil {
		return errors.DatabaseError("failed to save run", err)
	}
	return nil
}

// Get retrieves a run by its ID
func (r *runRepository) Get(ctx context.Context, id core.RunID) (*forecast.Run, error) {
	return r.getOne(ctx, `SELECT payload FROM pollcast_runs WHERE id = $1`, "run "+id.String(), id)
}

// Latest retrieves the most recently created run
func (r *runRepository) Latest(ctx context.Context) (*forecast.Run, error) {
	return r.getOne(ctx, `SELECT payload FROM pollcast_runs ORDER BY created_at DESC, id DESC LIMIT 1`, "run")
}

func (r *runRepository) getOne(ctx context.Context, query, resource string, args ...interface{}) (*forecast.Run, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound(resource)
		}
		return nil, errors.DatabaseError("failed to get run", err)
	}

	var run forecast.Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, errors.DatabaseError("failed to unmarshal run", err)
	}
	return &run, nil
}

// List returns run summaries, newest first. A limit of 0 or less returns all runs.
func (r *runRepository) List(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	query := `SELECT id, created_at, best_order, error_margin, policy, regions
		FROM pollcast_runs ORDER BY created_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	summaries := []ports.RunSummary{}
	if err := r.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	return summaries, nil
}

// Close closes the underlying connection pool
func (r *runRepository) Close() error {
	return r.db.Close()
}
