package excel

import (
	"pollcast/internal/errors"
)

// Table is a sheet or CSV file as text: a header row and the data rows below it.
// Every row has exactly len(Headers) cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// columnIndex maps each header to its position. A repeated header is ambiguous and
// rejected; blank headers are skipped.
func (t *Table) columnIndex() (map[string]int, error) {
	index := make(map[string]int, len(t.Headers))
	for i, h := range t.Headers {
		if h == "" {
			continue
		}
		if first, seen := index[h]; seen {
			return nil, errors.Schema("duplicate header %q in columns %d and %d", h, first+1, i+1)
		}
		index[h] = i
	}
	return index, nil
}
