// Package excel loads poll and result tables from CSV files and Excel workbooks.
package excel

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"pollcast/domain/dataset"
	"pollcast/internal/errors"
	"pollcast/ports"
)

// KeySeparator joins multiple key columns into one row key.
const KeySeparator = "|"

// Loader implements ports.DatasetLoader over CSV and XLSX files.
type Loader struct {
	sheet  string
	logger zerolog.Logger
}

var _ ports.DatasetLoader = (*Loader)(nil)

// NewLoader creates a loader that reads the first sheet of workbooks.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger}
}

// NewLoaderForSheet creates a loader that reads a named workbook sheet.
func NewLoaderForSheet(sheet string, logger zerolog.Logger) *Loader {
	return &Loader{sheet: sheet, logger: logger}
}

// LoadHistory reads a file of past polls and results. Rows are keyed by the
// schema's key columns and the dataset carries every column the schema assigns a
// role to.
func (l *Loader) LoadHistory(ctx context.Context, path string, schema dataset.Schema) (*dataset.Dataset, error) {
	schema = schema.WithDefaults()
	columns := append(append([]string(nil), schema.Features...), schema.TargetColumns()...)
	for _, col := range schema.Baselines {
		if col != "" {
			columns = append(columns, col)
		}
	}
	if schema.HasEvaluation() {
		columns = append(columns, schema.Evaluation[:]...)
	}

	ds, err := l.load(ctx, path, "history", schema.KeyColumns, columns)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// LoadPolls reads a file of current polls, keyed by the schema's poll key columns.
// Only the feature columns are loaded.
func (l *Loader) LoadPolls(ctx context.Context, path string, schema dataset.Schema) (*dataset.Dataset, error) {
	schema = schema.WithDefaults()
	ds, err := l.load(ctx, path, "polls", schema.PollKeyColumns, schema.Features)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidateInputs(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (l *Loader) load(ctx context.Context, path, name string, keyColumns, columns []string) (*dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := NewDataReader(path, l.logger).WithSheet(l.sheet).ReadTable()
	if err != nil {
		return nil, err
	}

	ds, err := buildDataset(table, name+":"+filepath.Base(path), keyColumns, unique(columns))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}
	l.logger.Info().
		Str("file", path).
		Int("rows", ds.Len()).
		Int("columns", len(ds.Columns())).
		Str("hash", ds.Hash().Short()).
		Msg("dataset loaded")
	return ds, nil
}

// buildDataset keys each row by keyColumns and parses columns as numbers. With no
// key columns the 1-based row number is the key.
func buildDataset(table *Table, name string, keyColumns, columns []string) (*dataset.Dataset, error) {
	index, err := table.columnIndex()
	if err != nil {
		return nil, err
	}

	keyIdx := make([]int, len(keyColumns))
	for i, col := range keyColumns {
		j, ok := index[col]
		if !ok {
			return nil, errors.Schema("key column %q not found in header %v", col, table.Headers)
		}
		keyIdx[i] = j
	}
	colIdx := make([]int, len(columns))
	for i, col := range columns {
		j, ok := index[col]
		if !ok {
			return nil, errors.Schema("column %q not found in header %v", col, table.Headers)
		}
		colIdx[i] = j
	}

	keys := make([]string, len(table.Rows))
	cells := make([][]float64, len(table.Rows))
	for r, row := range table.Rows {
		if len(keyIdx) == 0 {
			keys[r] = strconv.Itoa(r + 1)
		} else {
			parts := make([]string, len(keyIdx))
			for i, j := range keyIdx {
				parts[i] = row[j]
			}
			keys[r] = strings.Join(parts, KeySeparator)
		}

		values := make([]float64, len(colIdx))
		for i, j := range colIdx {
			v, err := parseNumber(row[j])
			if err != nil {
				return nil, errors.Schema("row %d (%s), column %q: %q is not a number", r+2, keys[r], columns[i], row[j])
			}
			values[i] = v
		}
		cells[r] = values
	}
	return dataset.New(name, columns, keys, cells)
}

// parseNumber accepts plain numbers and percentages ("48.5%" reads as 0.485).
func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if strings.HasSuffix(s, "%") {
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		return v / 100, err
	}
	return strconv.ParseFloat(s, 64)
}

func unique(columns []string) []string {
	seen := make(map[string]struct{}, len(columns))
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		out = append(out, col)
	}
	return out
}
