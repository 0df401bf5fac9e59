package partition

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollcast/domain/dataset"
	"pollcast/internal/errors"
)

func makeDataset(t *testing.T, n int) *dataset.Dataset {
	t.Helper()
	keys := make([]string, n)
	cells := make([][]float64, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("row-%02d", i)
		cells[i] = []float64{float64(i), float64(i * i)}
	}
	ds, err := dataset.New("rows", []string{"x", "x2"}, keys, cells)
	require.NoError(t, err)
	return ds
}

func TestSplitNByK(t *testing.T) {
	pieces, err := SplitNByK(38, 7)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 6, 6, 5, 5, 5, 5}, pieces)

	for n := 0; n <= 60; n++ {
		for k := 1; k <= 12; k++ {
			pieces, err := SplitNByK(n, k)
			require.NoError(t, err)
			require.Len(t, pieces, k)

			sum := 0
			for i, p := range pieces {
				sum += p
				if i > 0 {
					assert.LessOrEqual(t, p, pieces[i-1], "n=%d k=%d not non-increasing: %v", n, k, pieces)
				}
				assert.LessOrEqual(t, pieces[0]-p, 1, "n=%d k=%d uneven: %v", n, k, pieces)
			}
			assert.Equal(t, n, sum, "n=%d k=%d", n, k)
		}
	}
}

func TestSplitNByKInvalid(t *testing.T) {
	_, err := SplitNByK(10, 0)
	assert.True(t, errors.HasCode(err, errors.CodeDimensionError))
	_, err = SplitNByK(-1, 3)
	assert.True(t, errors.HasCode(err, errors.CodeDimensionError))
}

func TestPartitionCoversEveryRowOnce(t *testing.T) {
	ds := makeDataset(t, 38)
	folds, err := NewPartitioner(20).Partition(ds, 7)
	require.NoError(t, err)
	require.Len(t, folds, 7)

	sizes := make([]int, len(folds))
	var seen []string
	for i, fold := range folds {
		sizes[i] = fold.Len()
		seen = append(seen, fold.Keys()...)
	}
	assert.Equal(t, []int{6, 6, 6, 5, 5, 5, 5}, sizes)

	want := ds.Keys()
	sort.Strings(seen)
	sort.Strings(want)
	assert.Equal(t, want, seen)
}

func TestPartitionDeterministic(t *testing.T) {
	ds := makeDataset(t, 25)

	a, err := NewPartitioner(42).Partition(ds, 4)
	require.NoError(t, err)
	b, err := NewPartitioner(42).Partition(ds, 4)
	require.NoError(t, err)
	for i := range a {
		assert.Equal(t, a[i].Keys(), b[i].Keys())
	}

	c, err := NewPartitioner(43).Partition(ds, 4)
	require.NoError(t, err)
	differs := false
	for i := range a {
		if fmt.Sprint(a[i].Keys()) != fmt.Sprint(c[i].Keys()) {
			differs = true
		}
	}
	assert.True(t, differs, "different seeds produced identical folds")
}

func TestPartitionRowsStayIntact(t *testing.T) {
	ds := makeDataset(t, 10)
	folds, err := NewPartitioner(1).Partition(ds, 3)
	require.NoError(t, err)
	for _, fold := range folds {
		x, _ := fold.Column("x")
		x2, _ := fold.Column("x2")
		for i := range x {
			assert.Equal(t, x[i]*x[i], x2[i])
			assert.Equal(t, fmt.Sprintf("row-%02d", int(x[i])), fold.Key(i))
		}
	}
}

func TestPartitionInvalidK(t *testing.T) {
	ds := makeDataset(t, 5)
	_, err := NewPartitioner(1).Partition(ds, 0)
	assert.True(t, errors.HasCode(err, errors.CodeDimensionError))
	_, err = NewPartitioner(1).Partition(ds, 6)
	assert.True(t, errors.HasCode(err, errors.CodeDimensionError))

	folds, err := NewPartitioner(1).Partition(ds, 5)
	require.NoError(t, err)
	for _, f := range folds {
		assert.Equal(t, 1, f.Len())
	}
}

func TestTrainTestSplit(t *testing.T) {
	ds := makeDataset(t, 51)
	train, test, err := NewPartitioner(7).TrainTestSplit(ds, []float64{0.7, 0.3})
	require.NoError(t, err)
	assert.Equal(t, 36, train.Len())
	assert.Equal(t, 15, test.Len())

	all := append(train.Keys(), test.Keys()...)
	sort.Strings(all)
	want := ds.Keys()
	sort.Strings(want)
	assert.Equal(t, want, all)

	testKeys := test.Keys()
	assert.True(t, sort.StringsAreSorted(testKeys), "test set should keep source order")
}

func TestTrainTestSplitValidation(t *testing.T) {
	ds := makeDataset(t, 10)
	p := NewPartitioner(1)

	cases := map[string][]float64{
		"wrong count":   {0.5, 0.3, 0.2},
		"not summing":   {0.6, 0.3},
		"negative part": {1.2, -0.2},
		"empty":         nil,
	}
	for name, fractions := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := p.TrainTestSplit(ds, fractions)
			assert.True(t, errors.HasCode(err, errors.CodeDimensionError))
		})
	}
}
