package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pollcast/domain/core"
	"pollcast/domain/dataset"
	"pollcast/domain/forecast"
	"pollcast/internal/classify"
	"pollcast/internal/config"
	"pollcast/internal/crossval"
	"pollcast/internal/errors"
	"pollcast/internal/partition"
	"pollcast/internal/performance"
	"pollcast/internal/telemetry"
	"pollcast/ports"
)

// ForecastService runs model selection on historical polls and forecasts the
// current ones with the selected order.
type ForecastService struct {
	cfg    *config.Config
	policy crossval.Policy
	metric performance.Metric

	loader  ports.DatasetLoader
	fitter  ports.ModelFitter
	runs    ports.RunRepository
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// ServiceOption configures a ForecastService.
type ServiceOption func(*ForecastService)

// WithRunRepository persists every completed run.
func WithRunRepository(runs ports.RunRepository) ServiceOption {
	return func(s *ForecastService) { s.runs = runs }
}

// WithMetrics records sweep and run metrics.
func WithMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *ForecastService) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *ForecastService) { s.logger = l }
}

// WithClock overrides the time source used to stamp runs.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *ForecastService) { s.now = now }
}

// SweepResult is the outcome of cross-validating the candidate orders.
type SweepResult struct {
	Table       *forecast.PerformanceTable `json:"performance"`
	BestOrder   int                        `json:"best_order"`
	BestScore   float64                    `json:"best_score"`
	Folds       int                        `json:"folds"`
	DatasetHash core.Hash                  `json:"dataset_hash"`

	history *dataset.Dataset
	train   *dataset.Dataset
	test    *dataset.Dataset
}

// NewForecastService creates a forecast service. The policy and metric names in
// cfg are resolved here so a bad configuration fails before any data is read.
func NewForecastService(cfg *config.Config, loader ports.DatasetLoader, fitter ports.ModelFitter, opts ...ServiceOption) (*ForecastService, error) {
	policy, err := crossval.ParsePolicy(cfg.Model.Policy)
	if err != nil {
		return nil, err
	}
	metric, err := performance.Lookup(cfg.Model.Metric)
	if err != nil {
		return nil, err
	}

	s := &ForecastService{
		cfg:    cfg,
		policy: policy,
		metric: metric,
		loader: loader,
		fitter: fitter,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Sweep loads the history, holds out the test split and cross-validates every
// candidate order on the training rows.
func (s *ForecastService) Sweep(ctx context.Context) (*SweepResult, error) {
	schema := s.cfg.Data.Schema.WithDefaults()

	history, err := s.loader.LoadHistory(ctx, s.cfg.Data.HistoryFile, schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load history")
	}

	partitioner := partition.NewPartitioner(s.cfg.Model.Seed)
	train, test, err := partitioner.TrainTestSplit(history, s.cfg.Model.Split)
	if err != nil {
		return nil, err
	}

	k := min(s.cfg.Model.Folds, train.Len())
	folds, err := partitioner.Partition(train, k)
	if err != nil {
		return nil, err
	}

	opts := []crossval.Option{
		crossval.WithParallelism(s.cfg.Model.Parallelism),
		crossval.WithLogger(s.logger),
	}
	if s.metrics != nil {
		opts = append(opts, crossval.WithObserver(s.metrics))
	}
	validator := crossval.New(s.fitter, crossval.Config{
		Schema: schema,
		Orders: s.cfg.Model.Orders,
		Policy: s.policy,
		Metric: s.metric,
	}, opts...)

	table, err := validator.Run(ctx, folds)
	if err != nil {
		return nil, err
	}
	best, score, err := table.BestOrder()
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("best_order", best).
		Float64("score", score).
		Int("folds", k).
		Int("train_rows", train.Len()).
		Int("test_rows", test.Len()).
		Msg("Model selection complete")

	return &SweepResult{
		Table:       table,
		BestOrder:   best,
		BestScore:   score,
		Folds:       k,
		DatasetHash: history.Hash(),
		history:     history,
		train:       train,
		test:        test,
	}, nil
}

// Run performs a full forecast: sweep, test-set error margin with the selected
// order, refit on all history, then predict and classify the current polls. The
// run is persisted when a repository is configured.
func (s *ForecastService) Run(ctx context.Context) (*forecast.Run, error) {
	start := time.Now()
	run, err := s.run(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RunFailed(time.Since(start))
		}
		s.logger.Error().Err(err).Msg("Forecast run failed")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RunCompleted(run, time.Since(start))
	}
	return run, nil
}

func (s *ForecastService) run(ctx context.Context) (*forecast.Run, error) {
	sweep, err := s.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	schema := s.cfg.Data.Schema.WithDefaults()

	// error margin from the held-out test rows
	models, err := s.fitChannels(sweep.train, schema, sweep.BestOrder)
	if err != nil {
		return nil, err
	}
	testShares, err := s.predictShares(models, sweep.test, schema)
	if err != nil {
		return nil, err
	}
	var actual forecast.ChannelSeries
	for c, col := range schema.Targets {
		if actual[c], err = sweep.test.Column(col); err != nil {
			return nil, err
		}
	}
	rmse, err := performance.RMSE(testShares.Slices(), actual.Slices())
	if err != nil {
		return nil, err
	}
	errorMargin, err := performance.MarginDifference(testShares.Slices(), actual.Slices())
	if err != nil {
		return nil, err
	}

	// forecast the current polls with a model fit on every historical row
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	models, err = s.fitChannels(sweep.history, schema, sweep.BestOrder)
	if err != nil {
		return nil, err
	}
	polls, err := s.loader.LoadPolls(ctx, s.cfg.Data.PollsFile, schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load current polls")
	}
	raw, err := s.predict(models, polls, schema)
	if err != nil {
		return nil, err
	}
	check := classify.CheckPredictions(raw, s.cfg.Model.CheckTolerance)
	if !check.Passed {
		s.logger.Warn().
			Bool("unequal_lengths", check.UnequalLengths).
			Int("negative_values", check.NegativeValues).
			Int("sum_above_one", check.SumAboveOne).
			Msg("Raw predictions failed sanity check")
	}
	normalized, err := raw.Normalize()
	if err != nil {
		return nil, errors.WrapFit(err, "renormalise current predictions")
	}
	shares, err := normalized.Rows()
	if err != nil {
		return nil, err
	}

	var rmseByChannel [forecast.NumChannels]float64
	copy(rmseByChannel[:], rmse)

	run := &forecast.Run{
		ID:          core.NewRunID(),
		CreatedAt:   s.now().UTC(),
		DatasetHash: sweep.DatasetHash,
		PollsHash:   polls.Hash(),
		Seed:        s.cfg.Model.Seed,
		Folds:       sweep.Folds,
		Split:       [2]float64{s.cfg.Model.Split[0], s.cfg.Model.Split[1]},
		Policy:      s.policy.String(),
		Metric:      s.cfg.Model.Metric,
		Labels:      s.cfg.Data.Labels,
		Performance: sweep.Table,
		BestOrder:   sweep.BestOrder,
		TestRMSE:    rmseByChannel,
		ErrorMargin: errorMargin,
		Thresholds:  forecast.TierThresholds(errorMargin),
		Check:       check,
		Forecasts:   classify.Forecasts(polls.Keys(), shares, errorMargin, s.cfg.Data.Labels),
	}

	if s.runs != nil {
		if err := s.runs.Save(ctx, run); err != nil {
			return nil, errors.Wrap(err, "failed to persist run")
		}
	}

	s.logger.Info().
		Str("run_id", run.ID.String()).
		Int("best_order", run.BestOrder).
		Float64("error_margin", run.ErrorMargin).
		Int("regions", len(run.Forecasts)).
		Msg("Forecast complete")
	return run, nil
}

// fitChannels fits one model per channel on ds.
func (s *ForecastService) fitChannels(ds *dataset.Dataset, schema dataset.Schema, order int) ([forecast.NumChannels]ports.Model, error) {
	var models [forecast.NumChannels]ports.Model
	xys, err := dataset.Extract(ds, schema.Features, schema.TargetColumns())
	if err != nil {
		return models, err
	}
	for c, xy := range xys {
		model, err := s.fitter.Fit(xy.Features, xy.Target, order)
		if err != nil {
			return models, errors.WrapFit(err, "fit %s at order %d on %q", schema.Targets[c], order, ds.Name())
		}
		models[c] = model
	}
	return models, nil
}

func (s *ForecastService) predict(models [forecast.NumChannels]ports.Model, ds *dataset.Dataset, schema dataset.Schema) (forecast.ChannelSeries, error) {
	var out forecast.ChannelSeries
	x, err := dataset.FeatureMatrix(ds, schema.Features)
	if err != nil {
		return out, err
	}
	for c, model := range models {
		if out[c], err = model.Predict(x); err != nil {
			return out, errors.WrapFit(err, "predict %s on %q", schema.Targets[c], ds.Name())
		}
	}
	return out, nil
}

func (s *ForecastService) predictShares(models [forecast.NumChannels]ports.Model, ds *dataset.Dataset, schema dataset.Schema) (forecast.ChannelSeries, error) {
	raw, err := s.predict(models, ds, schema)
	if err != nil {
		return raw, err
	}
	shares, err := raw.Normalize()
	if err != nil {
		return shares, errors.WrapFit(err, "renormalise predictions on %q", ds.Name())
	}
	return shares, nil
}
