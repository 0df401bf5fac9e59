package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollcast/adapters/bolt"
	"pollcast/domain/core"
	"pollcast/domain/forecast"
	"pollcast/internal/errors"
	"pollcast/internal/telemetry"
	"pollcast/ports"
)

type stubForecaster struct {
	run     *forecast.Run
	err     error
	store   ports.RunRepository
	started chan struct{}
	release chan struct{}
}

func (f *stubForecaster) Run(ctx context.Context) (*forecast.Run, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.store != nil {
		if err := f.store.Save(ctx, f.run); err != nil {
			return nil, err
		}
	}
	return f.run, nil
}

func newRun(created time.Time) *forecast.Run {
	return &forecast.Run{
		ID:          core.NewRunID(),
		CreatedAt:   created,
		Policy:      "share",
		Metric:      "margin",
		Labels:      forecast.DefaultLabels,
		BestOrder:   1,
		ErrorMargin: 0.025,
		Thresholds:  forecast.TierThresholds(0.025),
		Performance: &forecast.PerformanceTable{Orders: []int{0, 1}, Mean: map[int]float64{0: 0.08, 1: 0.03}},
		Forecasts: []forecast.RegionForecast{
			{Key: "S01", Shares: forecast.Shares{0.55, 0.42, 0.03}, Classification: forecast.Classification{Winner: "D", Tier: forecast.TierLikely, Margin: 0.13}},
		},
	}
}

func setup(t *testing.T, forecaster Forecaster) (*Server, *bolt.RunStore) {
	t.Helper()
	store, err := bolt.NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := prometheus.NewRegistry()
	telemetry.NewWithRegistry(registry)
	return NewServer(store, forecaster, WithGatherer(registry)), store
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := setup(t, nil)
	rec := do(t, srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetAndListRuns(t *testing.T) {
	srv, store := setup(t, nil)
	ctx := context.Background()
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	older, newer := newRun(base), newRun(base.Add(time.Hour))
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	rec := do(t, srv, http.MethodGet, "/api/runs/"+older.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var got forecast.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, older.ID, got.ID)

	rec = do(t, srv, http.MethodGet, "/api/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, newer.ID, got.ID)

	rec = do(t, srv, http.MethodGet, "/api/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []ports.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, 1, list[0].Regions)
}

func TestErrorStatusMapping(t *testing.T) {
	srv, _ := setup(t, nil)

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/runs/" + core.NewRunID().String(), http.StatusNotFound, errors.CodeNotFound},
		{"/api/runs/latest", http.StatusNotFound, errors.CodeNotFound},
		{"/api/runs/not-a-uuid", http.StatusBadRequest, errors.CodeInvalidInput},
		{"/api/runs?limit=-3", http.StatusBadRequest, errors.CodeInvalidInput},
	}
	for _, tc := range cases {
		rec := do(t, srv, http.MethodGet, tc.path)
		assert.Equal(t, tc.status, rec.Code, tc.path)
		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Code, tc.path)
	}

	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.CodeSchemaError))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.CodeDimensionError))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.CodeFitError))
	assert.Equal(t, http.StatusInternalServerError, statusFor("UNKNOWN"))
}

func TestReport(t *testing.T) {
	srv, store := setup(t, nil)
	run := newRun(time.Now())
	require.NoError(t, store.Save(context.Background(), run))

	rec := do(t, srv, http.MethodGet, "/api/runs/"+run.ID.String()+"/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<table>")
	assert.Contains(t, rec.Body.String(), "S01")

	rec = do(t, srv, http.MethodGet, "/api/runs/"+run.ID.String()+"/report?format=markdown")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "#"))
}

func TestCreateRun(t *testing.T) {
	run := newRun(time.Now())
	forecaster := &stubForecaster{run: run}
	srv, store := setup(t, forecaster)
	forecaster.store = store

	rec := do(t, srv, http.MethodPost, "/api/runs")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/runs/"+run.ID.String(), rec.Header().Get("Location"))

	_, err := store.Get(context.Background(), run.ID)
	assert.NoError(t, err)
}

func TestCreateRunFailures(t *testing.T) {
	srv, _ := setup(t, nil)
	rec := do(t, srv, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeForecastDisabled, body.Code)

	// data errors from the configured files are server faults, not bad requests
	cases := []error{
		errors.Schema("target column %q missing", "Result-D"),
		errors.Dimension("dataset %q has no rows", "history"),
		errors.NotFound("file data/history.csv"),
		errors.Fit(nil, "singular"),
	}
	for _, runErr := range cases {
		srv, _ = setup(t, &stubForecaster{err: runErr})
		rec = do(t, srv, http.MethodPost, "/api/runs")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, runErr.Error())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, errors.GetCode(runErr), body.Code)
	}
}

func TestCreateRunRejectsConcurrentRun(t *testing.T) {
	forecaster := &stubForecaster{run: newRun(time.Now()), started: make(chan struct{}), release: make(chan struct{})}
	srv, _ := setup(t, forecaster)

	done := make(chan int)
	go func() { done <- do(t, srv, http.MethodPost, "/api/runs").Code }()

	<-forecaster.started

	rec := do(t, srv, http.MethodPost, "/api/runs")
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeRunInProgress, body.Code)
	close(forecaster.release)
	assert.Equal(t, http.StatusCreated, <-done)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := setup(t, nil)
	rec := do(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pollcast_")
}
