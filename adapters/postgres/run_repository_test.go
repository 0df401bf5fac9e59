package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollcast/domain/core"
	"pollcast/domain/forecast"
	"pollcast/internal/errors"
	"pollcast/internal/migration"
)

func openRepository(t *testing.T) *runRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	require.NoError(t, migration.NewRunner().Run(context.Background(), db))
	_, err = db.Exec(`TRUNCATE pollcast_runs`)
	require.NoError(t, err)

	repo := NewRunRepository(db).(*runRepository)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRunRepositoryRoundTrip(t *testing.T) {
	repo := openRepository(t)
	ctx := context.Background()
	base := time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC)

	older := &forecast.Run{ID: core.NewRunID(), CreatedAt: base, Policy: "share", BestOrder: 1, ErrorMargin: 0.02}
	newer := &forecast.Run{
		ID: core.NewRunID(), CreatedAt: base.Add(time.Hour), Policy: "share", BestOrder: 2, ErrorMargin: 0.03,
		Forecasts: []forecast.RegionForecast{{Key: "S01"}, {Key: "S02"}},
	}
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	got, err := repo.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.02, got.ErrorMargin)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, 2, list[0].Regions)

	_, err = repo.Get(ctx, core.NewRunID())
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
