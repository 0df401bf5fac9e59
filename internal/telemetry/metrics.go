// Package telemetry exposes Prometheus metrics for cross-validation sweeps and
// forecast runs.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pollcast/domain/forecast"
)

// Metrics holds all Prometheus metrics for pollcast.
type Metrics struct {
	// Cross-validation
	FoldsScored   *prometheus.CounterVec // Folds scored, by order
	FitFailures   prometheus.Counter     // Sweeps aborted by a fitting failure
	FoldDuration  prometheus.Histogram   // Time to fit and score one (order, fold)
	SweepDuration prometheus.Histogram   // Time for a full sweep
	OrderScore    *prometheus.GaugeVec   // Mean score of the last sweep, by order

	// Forecast runs
	RunsTotal    *prometheus.CounterVec // Runs, by outcome
	RunDuration  prometheus.Histogram   // End-to-end run latency
	BestOrder    prometheus.Gauge       // Order selected by the last run
	ErrorMargin  prometheus.Gauge       // Test-set error margin of the last run
	CheckFailed  prometheus.Counter     // Runs whose raw predictions failed the sanity check
	RegionsTotal prometheus.Gauge       // Regions forecast by the last run
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics on a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		FoldsScored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pollcast_folds_scored_total",
			Help: "Total number of cross-validation folds scored",
		}, []string{"order"}),
		FitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "pollcast_fit_failures_total",
			Help: "Total number of model fits that failed during cross-validation",
		}),
		FoldDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollcast_fold_duration_seconds",
			Help:    "Time to fit and score one held-out fold",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollcast_sweep_duration_seconds",
			Help:    "Time to cross-validate every candidate order",
			Buckets: prometheus.DefBuckets,
		}),
		OrderScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pollcast_order_score",
			Help: "Mean cross-validation score of the last sweep (lower is better)",
		}, []string{"order"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pollcast_runs_total",
			Help: "Total number of forecast runs",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollcast_run_duration_seconds",
			Help:    "End-to-end forecast run latency",
			Buckets: prometheus.DefBuckets,
		}),
		BestOrder: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pollcast_best_order",
			Help: "Polynomial order selected by the last run",
		}),
		ErrorMargin: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pollcast_error_margin",
			Help: "Test-set error margin of the last run",
		}),
		CheckFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pollcast_prediction_check_failures_total",
			Help: "Runs whose raw predictions failed the sanity check",
		}),
		RegionsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pollcast_regions",
			Help: "Number of regions forecast by the last run",
		}),
	}
}

// FoldScored records one successful (order, fold) evaluation.
func (m *Metrics) FoldScored(order, fold int, score float64, elapsed time.Duration) {
	m.FoldsScored.WithLabelValues(strconv.Itoa(order)).Inc()
	m.FoldDuration.Observe(elapsed.Seconds())
}

// FitFailed records a fitting failure.
func (m *Metrics) FitFailed(order, fold int, err error) {
	m.FitFailures.Inc()
}

// SweepCompleted records the sweep duration and the mean score of every order.
func (m *Metrics) SweepCompleted(table *forecast.PerformanceTable, elapsed time.Duration) {
	m.SweepDuration.Observe(elapsed.Seconds())
	for order, mean := range table.Mean {
		m.OrderScore.WithLabelValues(strconv.Itoa(order)).Set(mean)
	}
}

// RunCompleted records a successful forecast run.
func (m *Metrics) RunCompleted(run *forecast.Run, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues("success").Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.BestOrder.Set(float64(run.BestOrder))
	m.ErrorMargin.Set(run.ErrorMargin)
	m.RegionsTotal.Set(float64(len(run.Forecasts)))
	if !run.Check.Passed {
		m.CheckFailed.Inc()
	}
}

// RunFailed records a forecast run that returned an error.
func (m *Metrics) RunFailed(elapsed time.Duration) {
	m.RunsTotal.WithLabelValues("failure").Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}
