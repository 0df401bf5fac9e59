// Package crossval runs k-fold cross-validation over a set of candidate polynomial
// orders and produces the performance table used for model selection.
package crossval

import (
	"context"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"pollcast/domain/dataset"
	"pollcast/domain/forecast"
	"pollcast/internal/errors"
	"pollcast/internal/performance"
	"pollcast/ports"
)

// Observer is notified as the sweep progresses. Calls may arrive concurrently.
type Observer interface {
	FoldScored(order, fold int, score float64, elapsed time.Duration)
	FitFailed(order, fold int, err error)
	SweepCompleted(table *forecast.PerformanceTable, elapsed time.Duration)
}

// Config selects what the sweep evaluates.
type Config struct {
	Schema dataset.Schema
	Orders []int
	Policy Policy
	// Metric scores one fold; nil means performance.MarginDifference.
	Metric performance.Metric
}

// Validator evaluates candidate orders by k-fold cross-validation.
type Validator struct {
	fitter      ports.ModelFitter
	cfg         Config
	parallelism int
	observer    Observer
	logger      zerolog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithParallelism bounds how many (order, fold) evaluations run at once. Values
// below 2 run the sweep sequentially.
func WithParallelism(n int) Option {
	return func(v *Validator) { v.parallelism = n }
}

// WithObserver attaches a progress observer.
func WithObserver(o Observer) Option {
	return func(v *Validator) { v.observer = o }
}

// WithLogger sets the logger used for progress messages.
func WithLogger(l zerolog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// New creates a Validator.
func New(fitter ports.ModelFitter, cfg Config, opts ...Option) *Validator {
	if cfg.Metric == nil {
		cfg.Metric = performance.MarginDifference
	}
	cfg.Schema = cfg.Schema.WithDefaults()
	v := &Validator{
		fitter:      fitter,
		cfg:         cfg,
		parallelism: 1,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// foldData is everything one held-out fold needs, extracted once and shared
// read-only by every order.
type foldData struct {
	train      []dataset.XY
	validation *mat.Dense
	targets    forecast.ChannelSeries
	baselines  forecast.ChannelSeries
	evaluation forecast.ChannelSeries
}

// Run evaluates every configured order. For each order and each fold i, one model
// per channel is fit on the union of the other folds and scored on fold i; the
// order's score is the mean over folds. Lower scores are better.
func (v *Validator) Run(ctx context.Context, folds []*dataset.Dataset) (*forecast.PerformanceTable, error) {
	if len(folds) < 2 {
		return nil, errors.Dimension("cross-validation needs at least 2 folds, got %d", len(folds))
	}
	if len(v.cfg.Orders) == 0 {
		return nil, errors.Dimension("no candidate orders to evaluate")
	}
	if v.cfg.Policy.NeedsEvaluation() && !v.cfg.Schema.HasEvaluation() {
		return nil, errors.Schema("policy %s requires evaluation columns", v.cfg.Policy)
	}

	start := time.Now()
	data := make([]*foldData, len(folds))
	for i := range folds {
		fd, err := v.prepareFold(folds, i)
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", i)
		}
		data[i] = fd
	}

	scores := make([][]float64, len(v.cfg.Orders))
	for o := range scores {
		scores[o] = make([]float64, len(folds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(v.parallelism, 1))

submit:
	for o, order := range v.cfg.Orders {
		for f := range folds {
			if gctx.Err() != nil {
				break submit
			}
			o, order, f := o, order, f
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				foldStart := time.Now()
				score, err := v.scoreFold(data[f], order)
				if err != nil {
					if v.observer != nil {
						v.observer.FitFailed(order, f, err)
					}
					return errors.Wrapf(err, "order %d fold %d", order, f)
				}
				scores[o][f] = score
				elapsed := time.Since(foldStart)
				if v.observer != nil {
					v.observer.FoldScored(order, f, score, elapsed)
				}
				v.logger.Debug().
					Int("order", order).
					Int("fold", f).
					Float64("score", score).
					Dur("duration", elapsed).
					Msg("fold scored")
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table := forecast.NewPerformanceTable(v.cfg.Orders)
	for o, order := range v.cfg.Orders {
		mean, err := stats.Mean(scores[o])
		if err != nil {
			return nil, errors.Wrapf(err, "order %d", order)
		}
		table.Mean[order] = mean
		table.FoldScore[order] = scores[o]
		v.logger.Info().Int("order", order).Float64("mean", mean).Msg("order evaluated")
	}

	elapsed := time.Since(start)
	if v.observer != nil {
		v.observer.SweepCompleted(table, elapsed)
	}
	v.logger.Info().
		Int("orders", len(v.cfg.Orders)).
		Int("folds", len(folds)).
		Str("policy", v.cfg.Policy.String()).
		Dur("duration", elapsed).
		Msg("cross-validation complete")
	return table, nil
}

// prepareFold holds out fold i and extracts the training pairs and validation series.
func (v *Validator) prepareFold(folds []*dataset.Dataset, i int) (*foldData, error) {
	rest := make([]*dataset.Dataset, 0, len(folds)-1)
	rest = append(rest, folds[:i]...)
	rest = append(rest, folds[i+1:]...)
	training, err := dataset.Concat("training", rest...)
	if err != nil {
		return nil, err
	}

	schema := v.cfg.Schema
	train, err := dataset.Extract(training, schema.Features, schema.TargetColumns())
	if err != nil {
		return nil, err
	}

	validation := folds[i]
	pairs, err := dataset.Extract(validation, schema.Features, schema.TargetColumns())
	if err != nil {
		return nil, err
	}

	fd := &foldData{train: train, validation: pairs[0].Features}
	for c := range fd.targets {
		fd.targets[c] = pairs[c].Target
	}
	if v.cfg.Policy == PolicyMultiplierAdjust {
		if fd.baselines, err = columns(validation, schema.Baselines); err != nil {
			return nil, err
		}
		if fd.evaluation, err = columns(validation, schema.Evaluation); err != nil {
			return nil, err
		}
	}
	return fd, nil
}

// scoreFold fits the three channels at order and scores the held-out predictions.
func (v *Validator) scoreFold(fd *foldData, order int) (float64, error) {
	var predicted forecast.ChannelSeries
	for c := range predicted {
		model, err := v.fitter.Fit(fd.train[c].Features, fd.train[c].Target, order)
		if err != nil {
			return 0, errors.WrapFit(err, "channel %d", c)
		}
		predicted[c], err = model.Predict(fd.validation)
		if err != nil {
			return 0, errors.WrapFit(err, "predict channel %d", c)
		}
	}

	scored, actual, err := v.cfg.Policy.Apply(predicted, fd.targets, fd.baselines, fd.evaluation)
	if err != nil {
		return 0, err
	}
	return v.cfg.Metric(scored.Slices(), actual.Slices())
}

func columns(ds *dataset.Dataset, names [forecast.NumChannels]string) (forecast.ChannelSeries, error) {
	var out forecast.ChannelSeries
	for c, name := range names {
		col, err := ds.Column(name)
		if err != nil {
			return forecast.ChannelSeries{}, err
		}
		out[c] = col
	}
	return out, nil
}
