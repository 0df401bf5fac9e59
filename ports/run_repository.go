package ports

import (
	"context"
	"time"

	"pollcast/domain/core"
	"pollcast/domain/forecast"
)

// RunRepository persists forecast runs.
type RunRepository interface {
	Save(ctx context.Context, run *forecast.Run) error
	Get(ctx context.Context, id core.RunID) (*forecast.Run, error)
	// Latest returns the most recently created run.
	Latest(ctx context.Context) (*forecast.Run, error)
	// List returns up to limit runs, newest first.
	List(ctx context.Context, limit int) ([]RunSummary, error)
	Close() error
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	ID          core.RunID `json:"id" db:"id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	BestOrder   int        `json:"best_order" db:"best_order"`
	ErrorMargin float64    `json:"error_margin" db:"error_margin"`
	Policy      string     `json:"policy" db:"policy"`
	Regions     int        `json:"regions" db:"regions"`
}

// Summarize builds the listing view of run.
func Summarize(run *forecast.Run) RunSummary {
	return RunSummary{
		ID:          run.ID,
		CreatedAt:   run.CreatedAt,
		BestOrder:   run.BestOrder,
		ErrorMargin: run.ErrorMargin,
		Policy:      run.Policy,
		Regions:     len(run.Forecasts),
	}
}
