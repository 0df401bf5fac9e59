// Package dataset holds the tabular data model: an immutable numeric table keyed by
// row, the Schema that assigns column roles, and the projection of a table into
// per-target (features, target) pairs.
package dataset

import (
	"pollcast/domain/core"
	"pollcast/internal/errors"
)

// Dataset is an immutable numeric table. Each row has a string key (for example a
// state code, or "state|year" when several key columns are configured) and one
// float64 cell per column. Subsetting and concatenation return new tables.
type Dataset struct {
	name    string
	columns []string
	index   map[string]int
	keys    []string
	cells   [][]float64
}

// New builds a Dataset. Column names must be unique and every row must have one
// cell per column.
func New(name string, columns, keys []string, cells [][]float64) (*Dataset, error) {
	if len(keys) != len(cells) {
		return nil, errors.Dimension("dataset %q: %d keys for %d rows", name, len(keys), len(cells))
	}

	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if _, dup := index[col]; dup {
			return nil, errors.Schema("dataset %q: duplicate column %q", name, col)
		}
		index[col] = i
	}

	rows := make([][]float64, len(cells))
	for i, row := range cells {
		if len(row) != len(columns) {
			return nil, errors.Dimension("dataset %q: row %d has %d cells, expected %d", name, i, len(row), len(columns))
		}
		rows[i] = append([]float64(nil), row...)
	}

	return &Dataset{
		name:    name,
		columns: append([]string(nil), columns...),
		index:   index,
		keys:    append([]string(nil), keys...),
		cells:   rows,
	}, nil
}

// Name returns the label the dataset was created with.
func (d *Dataset) Name() string { return d.name }

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.cells) }

// Columns returns a copy of the column names in table order.
func (d *Dataset) Columns() []string { return append([]string(nil), d.columns...) }

// HasColumn reports whether name is a column of the table.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Key returns the key of row i.
func (d *Dataset) Key(i int) string { return d.keys[i] }

// Keys returns a copy of all row keys.
func (d *Dataset) Keys() []string { return append([]string(nil), d.keys...) }

// Column returns a copy of the named column.
func (d *Dataset) Column(name string) ([]float64, error) {
	j, ok := d.index[name]
	if !ok {
		return nil, errors.Schema("dataset %q has no column %q", d.name, name)
	}
	out := make([]float64, len(d.cells))
	for i, row := range d.cells {
		out[i] = row[j]
	}
	return out, nil
}

// Subset returns the rows at indices, in the given order.
func (d *Dataset) Subset(indices []int) (*Dataset, error) {
	keys := make([]string, len(indices))
	cells := make([][]float64, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(d.cells) {
			return nil, errors.Dimension("dataset %q: row index %d out of range [0,%d)", d.name, idx, len(d.cells))
		}
		keys[i] = d.keys[idx]
		cells[i] = d.cells[idx]
	}
	return New(d.name, d.columns, keys, cells)
}

// Concat stacks datasets that share an identical column list.
func Concat(name string, parts ...*Dataset) (*Dataset, error) {
	if len(parts) == 0 {
		return nil, errors.Dimension("concat %q: no datasets given", name)
	}
	columns := parts[0].columns
	var keys []string
	var cells [][]float64
	for i, p := range parts {
		if !sameColumns(columns, p.columns) {
			return nil, errors.Schema("concat %q: part %d has columns %v, expected %v", name, i, p.columns, columns)
		}
		keys = append(keys, p.keys...)
		cells = append(cells, p.cells...)
	}
	return New(name, columns, keys, cells)
}

// Hash fingerprints the table contents.
func (d *Dataset) Hash() core.Hash {
	return core.ComputeTableHash(d.columns, d.keys, d.cells)
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
