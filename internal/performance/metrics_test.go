package performance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollcast/internal/errors"
)

func TestMarginDifferenceExactPredictions(t *testing.T) {
	actual := [][]float64{{0.45, 0.51, 0.38}, {0.52, 0.46, 0.58}, {0.03, 0.03, 0.04}}
	score, err := MarginDifference(actual, actual)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestMarginDifferenceSameLead(t *testing.T) {
	// row 0 predicts (1, 2) against (1, 2); row 1 predicts (3, 4) against (1, 2).
	// Both leads are +1, so the metric is zero even though row 1 is off.
	predictions := [][]float64{{1, 3}, {2, 4}}
	actuals := [][]float64{{1, 1}, {2, 2}}
	score, err := MarginDifference(predictions, actuals)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestMarginDifferenceKnownValue(t *testing.T) {
	predictions := [][]float64{{0.50, 0.40}, {0.45, 0.55}, {0.05, 0.05}}
	actuals := [][]float64{{0.48, 0.45}, {0.49, 0.52}, {0.03, 0.03}}
	// row 0: (-0.05) - (0.01) = -0.06; row 1: (0.15) - (0.07) = 0.08
	score, err := MarginDifference(predictions, actuals)
	require.NoError(t, err)
	assert.InDelta(t, 0.07, score, 1e-12)
}

func TestMarginDifferenceDimensionErrors(t *testing.T) {
	cases := map[string]struct {
		predictions [][]float64
		actuals     [][]float64
	}{
		"one channel":        {[][]float64{{1}}, [][]float64{{1}}},
		"channel count":      {[][]float64{{1}, {1}, {1}}, [][]float64{{1}, {1}}},
		"ragged predictions": {[][]float64{{1, 2}, {1}, {1, 2}}, [][]float64{{1, 2}, {1, 2}, {1, 2}}},
		"ragged actuals":     {[][]float64{{1, 2}, {1, 2}, {1, 2}}, [][]float64{{1, 2}, {1, 2}, {1}}},
		"no rows":            {[][]float64{{}, {}}, [][]float64{{}, {}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MarginDifference(tc.predictions, tc.actuals)
			assert.True(t, errors.HasCode(err, errors.CodeDimensionError), "got %v", err)
		})
	}
}

func TestRMSE(t *testing.T) {
	predictions := [][]float64{{1, 2, 3}, {0, 0, 0}, {2, 2, 2}}
	actuals := [][]float64{{1, 2, 3}, {3, 4, 0}, {1, 3, 1}}

	got, err := RMSE(predictions, actuals)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 0.0, got[0])
	assert.InDelta(t, math.Sqrt(25.0/3.0), got[1], 1e-12)
	assert.InDelta(t, 1.0, got[2], 1e-12)

	mean, err := MeanRMSE(predictions, actuals)
	require.NoError(t, err)
	assert.InDelta(t, (0+math.Sqrt(25.0/3.0)+1)/3, mean, 1e-12)
}

func TestRMSEDimensionErrors(t *testing.T) {
	_, err := RMSE([][]float64{{1, 2}}, [][]float64{{1, 2}, {1, 2}})
	assert.True(t, errors.HasCode(err, errors.CodeDimensionError))

	_, err = RMSE([][]float64{{1, 2}, {1}}, [][]float64{{1, 2}, {1}})
	assert.True(t, errors.HasCode(err, errors.CodeDimensionError))

	_, err = RMSE(nil, nil)
	assert.True(t, errors.HasCode(err, errors.CodeDimensionError))
}

func TestLookup(t *testing.T) {
	m, err := Lookup(" Margin ")
	require.NoError(t, err)
	score, err := m([][]float64{{0}, {1}}, [][]float64{{0}, {0}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	_, err = Lookup("mae")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
	assert.Equal(t, []string{"margin", "rmse"}, Names())
}
