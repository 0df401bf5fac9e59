// Package regression provides the polynomial least-squares fitter used for model
// selection. A model of order d regresses the target on every monomial of the
// features up to total degree d, the constant term included, with no separate
// intercept.
package regression

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"pollcast/internal/errors"
	"pollcast/ports"
)

const machineEpsilon = 2.220446049250313e-16

// PolynomialFitter fits polynomial regressions by SVD least squares. When the design
// matrix is rank deficient (including when there are more terms than rows) it
// returns the minimum-norm solution, so high orders overfit instead of failing.
type PolynomialFitter struct {
	// rcond is the relative cutoff below which singular values count as zero.
	// Zero selects eps*max(rows, terms).
	rcond float64
}

// NewPolynomialFitter creates a fitter with the default singular value cutoff.
func NewPolynomialFitter() *PolynomialFitter {
	return &PolynomialFitter{}
}

// NewPolynomialFitterWithCutoff creates a fitter with an explicit relative cutoff.
func NewPolynomialFitterWithCutoff(rcond float64) *PolynomialFitter {
	return &PolynomialFitter{rcond: rcond}
}

var _ ports.ModelFitter = (*PolynomialFitter)(nil)

// Fit regresses target on the polynomial expansion of features.
func (f *PolynomialFitter) Fit(features *mat.Dense, target []float64, order int) (ports.Model, error) {
	if order < 0 {
		return nil, errors.InvalidInput("polynomial order must not be negative")
	}
	if features == nil {
		return nil, errors.Fit(nil, "no feature matrix")
	}
	rows, cols := features.Dims()
	if rows == 0 {
		return nil, errors.Dimension("no rows to fit")
	}
	if rows != len(target) {
		return nil, errors.Dimension("%d feature rows but %d targets", rows, len(target))
	}
	if err := checkFinite(features, target); err != nil {
		return nil, err
	}

	terms := monomials(cols, order)
	design := expand(features, terms)

	var svd mat.SVD
	if ok := svd.Factorize(design, mat.SVDThin); !ok {
		return nil, errors.Fit(nil, "SVD of %dx%d design matrix did not converge (order %d)", rows, len(terms), order)
	}

	rcond := f.rcond
	if rcond <= 0 {
		rcond = machineEpsilon * float64(max(rows, len(terms)))
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, errors.Fit(nil, "design matrix has rank 0 (order %d)", order)
	}

	var coef mat.VecDense
	svd.SolveVecTo(&coef, mat.NewVecDense(len(target), append([]float64(nil), target...)), rank)

	coefficients := make([]float64, coef.Len())
	for i := range coefficients {
		coefficients[i] = coef.AtVec(i)
		if math.IsNaN(coefficients[i]) || math.IsInf(coefficients[i], 0) {
			return nil, errors.Fit(nil, "non-finite coefficient %d (order %d)", i, order)
		}
	}

	return &PolynomialModel{
		order:     order,
		nFeatures: cols,
		terms:     terms,
		coef:      coefficients,
	}, nil
}

// PolynomialModel is a fitted polynomial regression.
type PolynomialModel struct {
	order     int
	nFeatures int
	terms     [][]int
	coef      []float64
}

// Order returns the polynomial degree.
func (m *PolynomialModel) Order() int { return m.order }

// Coefficients returns a copy of the coefficients, one per monomial, in the order
// constant, degree-1 terms, degree-2 terms, ...
func (m *PolynomialModel) Coefficients() []float64 {
	return append([]float64(nil), m.coef...)
}

// Predict evaluates the model on each row of features.
func (m *PolynomialModel) Predict(features *mat.Dense) ([]float64, error) {
	rows, cols := features.Dims()
	if cols != m.nFeatures {
		return nil, errors.Dimension("model expects %d features, got %d", m.nFeatures, cols)
	}
	design := expand(features, m.terms)
	var out mat.VecDense
	out.MulVec(design, mat.NewVecDense(len(m.coef), m.coef))

	predictions := make([]float64, rows)
	for i := range predictions {
		predictions[i] = out.AtVec(i)
	}
	return predictions, nil
}

// NumTerms returns the number of monomials of nFeatures variables up to degree order.
func NumTerms(nFeatures, order int) int {
	return len(monomials(nFeatures, order))
}

// monomials lists the feature index multisets of every monomial up to degree order,
// grouped by degree, each multiset in non-decreasing index order.
func monomials(nFeatures, order int) [][]int {
	terms := [][]int{{}}
	for degree := 1; degree <= order; degree++ {
		var build func(start int, prefix []int)
		build = func(start int, prefix []int) {
			if len(prefix) == degree {
				terms = append(terms, append([]int(nil), prefix...))
				return
			}
			for j := start; j < nFeatures; j++ {
				build(j, append(prefix, j))
			}
		}
		build(0, make([]int, 0, degree))
	}
	return terms
}

// expand builds the design matrix: column t is the product of the features in terms[t].
func expand(features *mat.Dense, terms [][]int) *mat.Dense {
	rows, _ := features.Dims()
	design := mat.NewDense(rows, len(terms), nil)
	for i := 0; i < rows; i++ {
		for t, term := range terms {
			v := 1.0
			for _, j := range term {
				v *= features.At(i, j)
			}
			design.Set(i, t, v)
		}
	}
	return design
}

func checkFinite(features *mat.Dense, target []float64) error {
	rows, cols := features.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := features.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Fit(nil, "non-finite feature at row %d column %d", i, j)
			}
		}
		if math.IsNaN(target[i]) || math.IsInf(target[i], 0) {
			return errors.Fit(nil, "non-finite target at row %d", i)
		}
	}
	return nil
}
