package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollcast/domain/forecast"
)

func TestTierBoundaries(t *testing.T) {
	e := 0.05
	cases := []struct {
		margin float64
		want   forecast.Tier
	}{
		{0, forecast.TierTilt},
		{0.0499, forecast.TierTilt},
		{0.05, forecast.TierLean},
		{0.0999, forecast.TierLean},
		{0.10, forecast.TierLikely},
		{0.1999, forecast.TierLikely},
		{0.20, forecast.TierSafe},
		{0.9, forecast.TierSafe},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Tier(tc.margin, e), "margin %v", tc.margin)
	}
}

func TestMarginEqualToErrorMarginIsLean(t *testing.T) {
	// 0.5 and 0.25 are exact in binary, so the margin is exactly 0.25.
	got := ClassifyOne(forecast.Shares{0.5, 0.25, 0.25}, 0.25, forecast.DefaultLabels)
	assert.Equal(t, "D", got.Winner)
	assert.Equal(t, 0.25, got.Margin)
	assert.Equal(t, forecast.TierLean, got.Tier)
}

func TestClassifyWinnerAndMargin(t *testing.T) {
	rows := []forecast.Shares{
		{0.48, 0.50, 0.02},
		{0.30, 0.20, 0.50},
		{0.60, 0.35, 0.05},
	}
	got := Classify(rows, 0.02, forecast.DefaultLabels)
	require.Len(t, got, 3)

	assert.Equal(t, "R", got[0].Winner)
	assert.InDelta(t, 0.02, got[0].Margin, 1e-12)
	assert.Equal(t, "Other", got[1].Winner)
	assert.InDelta(t, 0.20, got[1].Margin, 1e-12)
	assert.Equal(t, "D", got[2].Winner)
	assert.Equal(t, forecast.TierSafe, got[2].Tier)
}

func TestClassifyTies(t *testing.T) {
	ties := []forecast.Shares{
		{1.0 / 3, 1.0 / 3, 1.0 / 3},
		{0.45, 0.45, 0.10},
		{0.10, 0.45, 0.45},
	}
	for _, row := range ties {
		got := ClassifyOne(row, 0.03, forecast.DefaultLabels)
		assert.Empty(t, got.Winner, "row %v", row)
		assert.Equal(t, 0.0, got.Margin)
		assert.Equal(t, forecast.TierTilt, got.Tier)
	}

	// a tie below a strict leader does not matter
	got := ClassifyOne(forecast.Shares{0.2, 0.6, 0.2}, 0.03, forecast.DefaultLabels)
	assert.Equal(t, "R", got.Winner)
}

func TestForecastsSortedByMargin(t *testing.T) {
	keys := []string{"AL", "AZ", "GA", "WI"}
	shares := []forecast.Shares{
		{0.36, 0.62, 0.02},
		{0.49, 0.48, 0.03},
		{0.45, 0.45, 0.10},
		{0.50, 0.47, 0.03},
	}
	got := Forecasts(keys, shares, 0.02, forecast.Labels{"Dem", "Rep", "Ind"})
	require.Len(t, got, 4)
	assert.Equal(t, "AL", got[0].Key)
	assert.Equal(t, "Rep", got[0].Winner)
	assert.Equal(t, "WI", got[1].Key)
	assert.Equal(t, "AZ", got[2].Key)
	assert.Equal(t, "GA", got[3].Key)
	assert.Empty(t, got[3].Winner)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Margin, got[i].Margin)
	}
}

func TestCheckPredictions(t *testing.T) {
	clean := forecast.ChannelSeries{{0.5, 0.4}, {0.45, 0.5}, {0.05, 0.1}}
	check := CheckPredictions(clean, DefaultTolerance)
	assert.True(t, check.Passed)
	assert.Equal(t, 2, check.RowsChecked)

	// within tolerance
	check = CheckPredictions(forecast.ChannelSeries{{0.5}, {0.505}, {-0.005}}, DefaultTolerance)
	assert.True(t, check.Passed)

	bad := forecast.ChannelSeries{{0.6, -0.02, 0.3}, {0.5, 0.9, 0.3}, {0.01, 0.1, -0.5}}
	check = CheckPredictions(bad, DefaultTolerance)
	assert.False(t, check.Passed)
	assert.Equal(t, 2, check.NegativeValues)
	assert.Equal(t, 1, check.SumAboveOne)
	assert.False(t, check.UnequalLengths)

	ragged := forecast.ChannelSeries{{0.5, 0.5}, {0.5}, {0, 0}}
	check = CheckPredictions(ragged, DefaultTolerance)
	assert.False(t, check.Passed)
	assert.True(t, check.UnequalLengths)
	assert.Equal(t, 1, check.RowsChecked)
}
