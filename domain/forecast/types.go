package forecast

import (
	"time"

	"pollcast/domain/core"
	"pollcast/internal/errors"
)

// Tier is a confidence label derived from a margin and the model's error margin.
type Tier string

const (
	TierTilt   Tier = "Tilt"
	TierLean   Tier = "Lean"
	TierLikely Tier = "Likely"
	TierSafe   Tier = "Safe"
)

// Labels names the three channels in reports and classifications.
type Labels [NumChannels]string

// DefaultLabels are the party labels of the US presidential data.
var DefaultLabels = Labels{"D", "R", "Other"}

// Classification is the outcome of one row. Winner is empty when no channel strictly
// exceeds both others.
type Classification struct {
	Winner string  `json:"winner"`
	Tier   Tier    `json:"tier"`
	Margin float64 `json:"margin"`
}

// PerformanceTable maps each candidate order to its mean score across folds.
// Orders keeps the candidates in evaluation order.
type PerformanceTable struct {
	Orders    []int             `json:"orders"`
	Mean      map[int]float64   `json:"mean"`
	FoldScore map[int][]float64 `json:"fold_scores"`
}

// NewPerformanceTable returns an empty table for the given candidates.
func NewPerformanceTable(orders []int) *PerformanceTable {
	return &PerformanceTable{
		Orders:    append([]int(nil), orders...),
		Mean:      make(map[int]float64, len(orders)),
		FoldScore: make(map[int][]float64, len(orders)),
	}
}

// BestOrder returns the order with the lowest mean score. Scores are errors, so lower
// is better; on a tie the earlier candidate wins.
func (t *PerformanceTable) BestOrder() (int, float64, error) {
	if t == nil || len(t.Orders) == 0 {
		return 0, 0, errors.Dimension("performance table is empty")
	}
	best := -1
	var bestScore float64
	for _, order := range t.Orders {
		score, ok := t.Mean[order]
		if !ok {
			return 0, 0, errors.Dimension("no score recorded for order %d", order)
		}
		if best < 0 || score < bestScore {
			best, bestScore = order, score
		}
	}
	return best, bestScore, nil
}

// RegionForecast is the prediction for one row of current polling data.
type RegionForecast struct {
	Key    string `json:"key"`
	Shares Shares `json:"shares"`
	Classification
}

// PredictionCheck summarises sanity checks on a batch of raw predictions.
type PredictionCheck struct {
	Passed         bool    `json:"passed"`
	Tolerance      float64 `json:"tolerance"`
	UnequalLengths bool    `json:"unequal_lengths"`
	NegativeValues int     `json:"negative_values"`
	SumAboveOne    int     `json:"sum_above_one"`
	RowsChecked    int     `json:"rows_checked"`
}

// Run is the persisted record of one forecast.
type Run struct {
	ID          core.RunID           `json:"id"`
	CreatedAt   time.Time            `json:"created_at"`
	DatasetHash core.Hash            `json:"dataset_hash"`
	PollsHash   core.Hash            `json:"polls_hash,omitempty"`
	Seed        int64                `json:"seed"`
	Folds       int                  `json:"folds"`
	Split       [2]float64           `json:"split"`
	Policy      string               `json:"policy"`
	Metric      string               `json:"metric"`
	Labels      Labels               `json:"labels"`
	Performance *PerformanceTable    `json:"performance"`
	BestOrder   int                  `json:"best_order"`
	TestRMSE    [NumChannels]float64 `json:"test_rmse"`
	ErrorMargin float64              `json:"error_margin"`
	Thresholds  [3]float64           `json:"thresholds"`
	Check       PredictionCheck      `json:"check"`
	Forecasts   []RegionForecast     `json:"forecasts"`
}

// TierThresholds returns the margins at which Lean, Likely and Safe begin.
func TierThresholds(errorMargin float64) [3]float64 {
	return [3]float64{errorMargin, 2 * errorMargin, 4 * errorMargin}
}
