// Package performance scores predictions against actual values. Scores are errors:
// lower is better.
package performance

import (
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"

	"pollcast/internal/errors"
)

// Metric reduces channel-major predictions and actuals to one score.
type Metric func(predictions, actuals [][]float64) (float64, error)

const (
	MetricMargin = "margin"
	MetricRMSE   = "rmse"
)

var registry = map[string]Metric{
	MetricMargin: MarginDifference,
	MetricRMSE:   MeanRMSE,
}

// Lookup returns the metric registered under name.
func Lookup(name string) (Metric, error) {
	m, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.InvalidInput("unknown performance metric " + name + " (known: " + strings.Join(Names(), ", ") + ")")
	}
	return m, nil
}

// Names lists the registered metric names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarginDifference is the mean over rows of |(p1-p0) - (a1-a0)|: how far the
// predicted lead of channel 1 over channel 0 is from the actual lead. Channels past
// the second are length-checked but do not contribute.
func MarginDifference(predictions, actuals [][]float64) (float64, error) {
	n, err := checkAligned(predictions, actuals, 2)
	if err != nil {
		return 0, err
	}
	diffs := make([]float64, n)
	for i := 0; i < n; i++ {
		predicted := predictions[1][i] - predictions[0][i]
		actual := actuals[1][i] - actuals[0][i]
		diffs[i] = math.Abs(predicted - actual)
	}
	return stats.Mean(diffs)
}

// RMSE returns sqrt(mean((p-a)^2)) for each channel.
func RMSE(predictions, actuals [][]float64) ([]float64, error) {
	n, err := checkAligned(predictions, actuals, 1)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(predictions))
	squared := make([]float64, n)
	for c := range predictions {
		for i := 0; i < n; i++ {
			d := predictions[c][i] - actuals[c][i]
			squared[i] = d * d
		}
		mse, err := stats.Mean(squared)
		if err != nil {
			return nil, errors.Wrapf(err, "channel %d", c)
		}
		out[c] = math.Sqrt(mse)
	}
	return out, nil
}

// MeanRMSE averages the per-channel RMSE into a single score.
func MeanRMSE(predictions, actuals [][]float64) (float64, error) {
	perChannel, err := RMSE(predictions, actuals)
	if err != nil {
		return 0, err
	}
	return stats.Mean(perChannel)
}

// checkAligned verifies that both sides carry the same number of channels (at least
// minChannels) and that every channel has the same, non-zero, number of rows.
func checkAligned(predictions, actuals [][]float64, minChannels int) (int, error) {
	if len(predictions) < minChannels {
		return 0, errors.Dimension("need at least %d prediction channels, got %d", minChannels, len(predictions))
	}
	if len(actuals) != len(predictions) {
		return 0, errors.Dimension("%d prediction channels but %d actual channels", len(predictions), len(actuals))
	}
	n := len(predictions[0])
	for c := range predictions {
		if len(predictions[c]) != n {
			return 0, errors.Dimension("prediction channel %d has %d rows, channel 0 has %d", c, len(predictions[c]), n)
		}
		if len(actuals[c]) != n {
			return 0, errors.Dimension("actual channel %d has %d rows, predictions have %d", c, len(actuals[c]), n)
		}
	}
	if n == 0 {
		return 0, errors.Dimension("no rows to score")
	}
	return n, nil
}
