// Package classify turns predicted shares into winners and confidence tiers, and
// sanity-checks raw predictions before they are reported.
package classify

import (
	"sort"

	"pollcast/domain/forecast"
)

// DefaultTolerance is the slack CheckPredictions allows below 0 and above 1.
const DefaultTolerance = 0.01

// Tier maps a margin onto a confidence tier: below 1×, 2× and 4× the error margin
// are Tilt, Lean and Likely; anything else is Safe. Each bound is exclusive, so a
// margin equal to errorMargin is Lean.
func Tier(margin, errorMargin float64) forecast.Tier {
	thresholds := forecast.TierThresholds(errorMargin)
	switch {
	case margin < thresholds[0]:
		return forecast.TierTilt
	case margin < thresholds[1]:
		return forecast.TierLean
	case margin < thresholds[2]:
		return forecast.TierLikely
	default:
		return forecast.TierSafe
	}
}

// ClassifyOne finds the channel whose share strictly exceeds both others. When
// there is none (a two- or three-way tie at the top) the winner is left empty and
// the margin is 0; the tier is still derived from that margin.
func ClassifyOne(shares forecast.Shares, errorMargin float64, labels forecast.Labels) forecast.Classification {
	var out forecast.Classification
	for c := range shares {
		others := make([]float64, 0, forecast.NumChannels-1)
		for o := range shares {
			if o != c {
				others = append(others, shares[o])
			}
		}
		runnerUp := others[0]
		if others[1] > runnerUp {
			runnerUp = others[1]
		}
		if shares[c] > runnerUp {
			out.Winner = labels[c]
			out.Margin = shares[c] - runnerUp
			break
		}
	}
	out.Tier = Tier(out.Margin, errorMargin)
	return out
}

// Classify labels every row.
func Classify(shares []forecast.Shares, errorMargin float64, labels forecast.Labels) []forecast.Classification {
	out := make([]forecast.Classification, len(shares))
	for i, row := range shares {
		out[i] = ClassifyOne(row, errorMargin, labels)
	}
	return out
}

// Forecasts pairs keys with shares, classifies them and orders the result by margin,
// widest first. Rows with equal margins keep their input order.
func Forecasts(keys []string, shares []forecast.Shares, errorMargin float64, labels forecast.Labels) []forecast.RegionForecast {
	classes := Classify(shares, errorMargin, labels)
	out := make([]forecast.RegionForecast, len(shares))
	for i := range shares {
		out[i] = forecast.RegionForecast{
			Key:            keys[i],
			Shares:         shares[i],
			Classification: classes[i],
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Margin > out[b].Margin
	})
	return out
}

// CheckPredictions inspects raw channel predictions for values a share should not
// take: channels of unequal length, values below -tolerance, and rows summing to
// more than 1+tolerance. It reports rather than fails.
func CheckPredictions(series forecast.ChannelSeries, tolerance float64) forecast.PredictionCheck {
	check := forecast.PredictionCheck{Tolerance: tolerance}

	n, err := series.Len()
	if err != nil {
		check.UnequalLengths = true
		n = len(series[0])
		for c := 1; c < forecast.NumChannels; c++ {
			n = min(n, len(series[c]))
		}
	}
	check.RowsChecked = n

	for c := range series {
		for _, v := range series[c] {
			if v < -tolerance {
				check.NegativeValues++
			}
		}
	}
	for i := 0; i < n; i++ {
		if series.Row(i).Sum() > 1+tolerance {
			check.SumAboveOne++
		}
	}

	check.Passed = !check.UnequalLengths && check.NegativeValues == 0 && check.SumAboveOne == 0
	return check
}
