package ports

import (
	"gonum.org/v1/gonum/mat"
)

// ModelFitter fits a regression of a given polynomial order. Implementations must
// report fitting failures as errors rather than returning a degenerate model.
type ModelFitter interface {
	Fit(features *mat.Dense, target []float64, order int) (Model, error)
}

// Model is a fitted regression. It is immutable after fitting.
type Model interface {
	Predict(features *mat.Dense) ([]float64, error)
	Order() int
	Coefficients() []float64
}
