package crossval

import (
	"strings"

	"pollcast/domain/forecast"
	"pollcast/internal/errors"
)

// Policy decides how raw per-channel predictions are turned into the values that get
// scored, and which columns they are scored against.
type Policy int

const (
	// PolicyIdentity scores raw predictions against the raw targets.
	PolicyIdentity Policy = iota
	// PolicyMultiplierAdjust treats predictions as multipliers: each channel is scaled
	// by its baseline column, the row is renormalised, and the result is scored
	// against the evaluation columns.
	PolicyMultiplierAdjust
	// PolicyShareRenormalize renormalises each predicted row to sum to 1 and scores it
	// against the raw targets.
	PolicyShareRenormalize
)

var policyNames = map[Policy]string{
	PolicyIdentity:         "identity",
	PolicyMultiplierAdjust: "multiplier",
	PolicyShareRenormalize: "share",
}

var policyAliases = map[string]Policy{
	"identity":          PolicyIdentity,
	"plain":             PolicyIdentity,
	"multiplier":        PolicyMultiplierAdjust,
	"multiplier-adjust": PolicyMultiplierAdjust,
	"share":             PolicyShareRenormalize,
	"share-renormalize": PolicyShareRenormalize,
	"share-renormalise": PolicyShareRenormalize,
	"renormalize":       PolicyShareRenormalize,
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	p, ok := policyAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, errors.InvalidInput("unknown cross-validation policy " + s)
	}
	return p, nil
}

// NeedsEvaluation reports whether the policy scores against the evaluation columns.
func (p Policy) NeedsEvaluation() bool {
	return p == PolicyMultiplierAdjust
}

// Apply turns raw predictions into the scored series and returns the matching
// actuals. baselines and evaluation are only read by PolicyMultiplierAdjust.
func (p Policy) Apply(predicted, targets, baselines, evaluation forecast.ChannelSeries) (scored, actual forecast.ChannelSeries, err error) {
	switch p {
	case PolicyIdentity:
		return predicted, targets, nil
	case PolicyShareRenormalize:
		scored, err = predicted.Normalize()
		if err != nil {
			return forecast.ChannelSeries{}, forecast.ChannelSeries{}, err
		}
		return scored, targets, nil
	case PolicyMultiplierAdjust:
		adjusted, err := predicted.Multiply(baselines)
		if err != nil {
			return forecast.ChannelSeries{}, forecast.ChannelSeries{}, err
		}
		scored, err = adjusted.Normalize()
		if err != nil {
			return forecast.ChannelSeries{}, forecast.ChannelSeries{}, err
		}
		return scored, evaluation, nil
	default:
		return forecast.ChannelSeries{}, forecast.ChannelSeries{}, errors.InvalidInput("unknown cross-validation policy " + p.String())
	}
}
