package migration

import (
	"context"

	"pollcast/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Statements lists the DDL Run executes, in order.
func (r *MigrationRunner) Statements() []string {
	return []string{createRunsTable, createRunsIndex}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range r.Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.DatabaseError("migration failed", err)
		}
	}
	return nil
}

const createRunsTable = `
	CREATE TABLE IF NOT EXISTS pollcast_runs (
		id UUID PRIMARY KEY,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		best_order INTEGER NOT NULL,
		error_margin DOUBLE PRECISION NOT NULL,
		policy VARCHAR(32) NOT NULL,
		regions INTEGER NOT NULL DEFAULT 0,
		payload JSONB NOT NULL
	)
`

const createRunsIndex = `
	CREATE INDEX IF NOT EXISTS idx_pollcast_runs_created_at ON pollcast_runs (created_at DESC)
`
