package partition

import (
	"math"
	"math/rand"

	"pollcast/domain/dataset"
	"pollcast/internal/errors"
)

// splitTolerance bounds how far split fractions may drift from summing to 1.
const splitTolerance = 1e-9

// SplitNByK divides n into k integer pieces that sum to n. Each piece is the ceiling
// of what remains divided by the pieces left, so larger pieces come first:
// SplitNByK(38, 7) = [6 6 6 5 5 5 5].
func SplitNByK(n, k int) ([]int, error) {
	if k < 1 {
		return nil, errors.Dimension("cannot split into %d pieces", k)
	}
	if n < 0 {
		return nil, errors.Dimension("cannot split a negative count %d", n)
	}
	pieces := make([]int, k)
	remaining := n
	for i := 0; i < k; i++ {
		left := k - i
		piece := (remaining + left - 1) / left
		pieces[i] = piece
		remaining -= piece
	}
	return pieces, nil
}

// Partitioner draws folds and train/test splits from a deterministic seed.
type Partitioner struct {
	seed int64
}

// NewPartitioner creates a partitioner with a specific seed for reproducibility
func NewPartitioner(seed int64) *Partitioner {
	return &Partitioner{seed: seed}
}

// Partition splits ds into k disjoint folds that together contain every row exactly
// once. Fold sizes follow SplitNByK. Each fold is a uniform sample without replacement
// from the rows not yet assigned; the same seed yields the same folds.
func (p *Partitioner) Partition(ds *dataset.Dataset, k int) ([]*dataset.Dataset, error) {
	n := ds.Len()
	if k < 1 || k > n {
		return nil, errors.Dimension("cannot make %d folds from %d rows", k, n)
	}
	sizes, err := SplitNByK(n, k)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(p.seed))
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}

	folds := make([]*dataset.Dataset, k)
	for f, size := range sizes {
		var drawn []int
		drawn, pool = sampleWithoutReplacement(rng, pool, size)
		fold, err := ds.Subset(drawn)
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", f)
		}
		folds[f] = fold
	}
	return folds, nil
}

// TrainTestSplit divides ds into a training and a test set. fractions holds the
// training and test proportions; they must be non-negative and sum to 1. The
// training set is round(n*fractions[0]) rows drawn at random; the test set keeps the
// remaining rows in their original order.
func (p *Partitioner) TrainTestSplit(ds *dataset.Dataset, fractions []float64) (*dataset.Dataset, *dataset.Dataset, error) {
	if len(fractions) != 2 {
		return nil, nil, errors.Dimension("split needs 2 fractions (training, test), got %d", len(fractions))
	}
	for _, f := range fractions {
		if f < 0 {
			return nil, nil, errors.Dimension("split fractions must not be negative: %v", fractions)
		}
	}
	if math.Abs(fractions[0]+fractions[1]-1) > splitTolerance {
		return nil, nil, errors.Dimension("split fractions must sum to 1: %v", fractions)
	}

	n := ds.Len()
	trainSize := int(math.Round(float64(n) * fractions[0]))

	rng := rand.New(rand.NewSource(p.seed))
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	trainIdx, testIdx := sampleWithoutReplacement(rng, pool, trainSize)

	train, err := ds.Subset(trainIdx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "training set")
	}
	test, err := ds.Subset(testIdx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "test set")
	}
	return train, test, nil
}

// sampleWithoutReplacement draws size entries of pool uniformly at random. It returns
// the drawn entries in draw order and the rest in their original order; pool itself
// is not modified.
func sampleWithoutReplacement(rng *rand.Rand, pool []int, size int) (drawn, rest []int) {
	perm := rng.Perm(len(pool))
	taken := make([]bool, len(pool))
	drawn = make([]int, size)
	for i := 0; i < size; i++ {
		drawn[i] = pool[perm[i]]
		taken[perm[i]] = true
	}
	rest = make([]int, 0, len(pool)-size)
	for i, idx := range pool {
		if !taken[i] {
			rest = append(rest, idx)
		}
	}
	return drawn, rest
}
