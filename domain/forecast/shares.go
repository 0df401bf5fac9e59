// Package forecast holds the value types that flow out of model selection: channel
// shares, performance tables, classifications and the persisted run record.
package forecast

import (
	"math"

	"pollcast/internal/errors"
)

// NumChannels is fixed: two parties plus "other".
const NumChannels = 3

// Channel indexes one of the three predicted quantities.
type Channel int

const (
	ChannelA Channel = iota
	ChannelB
	ChannelC
)

// Shares holds one row's three channel values.
type Shares [NumChannels]float64

// Sum adds the three channels.
func (s Shares) Sum() float64 {
	return s[0] + s[1] + s[2]
}

// Normalize scales the row so its channels sum to 1. A row that cannot be scaled to
// finite shares (zero or non-finite sum) is an error.
func (s Shares) Normalize() (Shares, error) {
	sum := s.Sum()
	var out Shares
	for c := range s {
		out[c] = s[c] / sum
		if math.IsNaN(out[c]) || math.IsInf(out[c], 0) {
			return Shares{}, errors.Fit(nil, "cannot renormalise shares %v: sum %g", s, sum)
		}
	}
	return out, nil
}

// ChannelSeries is the channel-major form of a batch of rows: series[c][i] is the
// value of channel c in row i.
type ChannelSeries [NumChannels][]float64

// Len returns the row count, or an error if the channels disagree.
func (cs ChannelSeries) Len() (int, error) {
	n := len(cs[0])
	for c := 1; c < NumChannels; c++ {
		if len(cs[c]) != n {
			return 0, errors.Dimension("channel %d has %d rows, channel 0 has %d", c, len(cs[c]), n)
		}
	}
	return n, nil
}

// Row returns row i across the three channels.
func (cs ChannelSeries) Row(i int) Shares {
	return Shares{cs[0][i], cs[1][i], cs[2][i]}
}

// Rows converts to row-major form.
func (cs ChannelSeries) Rows() ([]Shares, error) {
	n, err := cs.Len()
	if err != nil {
		return nil, err
	}
	out := make([]Shares, n)
	for i := range out {
		out[i] = cs.Row(i)
	}
	return out, nil
}

// Slices returns the channels as a [][]float64, the shape the metrics take.
func (cs ChannelSeries) Slices() [][]float64 {
	return [][]float64{cs[0], cs[1], cs[2]}
}

// Multiply returns cs scaled element-wise by base.
func (cs ChannelSeries) Multiply(base ChannelSeries) (ChannelSeries, error) {
	n, err := cs.Len()
	if err != nil {
		return ChannelSeries{}, err
	}
	m, err := base.Len()
	if err != nil {
		return ChannelSeries{}, err
	}
	if n != m {
		return ChannelSeries{}, errors.Dimension("cannot scale %d rows by %d baseline rows", n, m)
	}
	var out ChannelSeries
	for c := range cs {
		out[c] = make([]float64, n)
		for i := range cs[c] {
			out[c][i] = cs[c][i] * base[c][i]
		}
	}
	return out, nil
}

// Normalize renormalises every row so its three channels sum to 1.
func (cs ChannelSeries) Normalize() (ChannelSeries, error) {
	n, err := cs.Len()
	if err != nil {
		return ChannelSeries{}, err
	}
	var out ChannelSeries
	for c := range out {
		out[c] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		row, err := cs.Row(i).Normalize()
		if err != nil {
			return ChannelSeries{}, errors.Wrapf(err, "row %d", i)
		}
		for c := range row {
			out[c][i] = row[c]
		}
	}
	return out, nil
}
