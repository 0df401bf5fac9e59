package dataset

import (
	"gonum.org/v1/gonum/mat"

	"pollcast/internal/errors"
)

// XY is one (feature matrix, target vector) pair. Row i of Features and Target[i]
// come from row i of the source dataset.
type XY struct {
	Features *mat.Dense
	Target   []float64
}

// Extract projects ds into one XY pair per target column. Every name must exist and
// no name may appear in both lists. The pairs share a single read-only feature matrix.
func Extract(ds *Dataset, features, targets []string) ([]XY, error) {
	featureSet := make(map[string]struct{}, len(features))
	for _, col := range features {
		if !ds.HasColumn(col) {
			return nil, errors.Schema("feature column %q missing from %q", col, ds.Name())
		}
		featureSet[col] = struct{}{}
	}
	for _, col := range targets {
		if !ds.HasColumn(col) {
			return nil, errors.Schema("target column %q missing from %q", col, ds.Name())
		}
		if _, clash := featureSet[col]; clash {
			return nil, errors.Schema("column %q cannot be both a feature and a target", col)
		}
	}

	x, err := FeatureMatrix(ds, features)
	if err != nil {
		return nil, err
	}

	out := make([]XY, len(targets))
	for i, col := range targets {
		y, err := ds.Column(col)
		if err != nil {
			return nil, err
		}
		out[i] = XY{Features: x, Target: y}
	}
	return out, nil
}

// FeatureMatrix builds the n×len(features) input matrix of ds.
func FeatureMatrix(ds *Dataset, features []string) (*mat.Dense, error) {
	if len(features) == 0 {
		return nil, errors.Schema("no feature columns given for %q", ds.Name())
	}
	if ds.Len() == 0 {
		return nil, errors.Dimension("dataset %q has no rows", ds.Name())
	}

	x := mat.NewDense(ds.Len(), len(features), nil)
	for j, col := range features {
		values, err := ds.Column(col)
		if err != nil {
			return nil, err
		}
		x.SetCol(j, values)
	}
	return x, nil
}
