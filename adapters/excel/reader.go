package excel

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"pollcast/internal/errors"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	logger   zerolog.Logger
}

// NewDataReader creates a reader for path; the type follows the extension, with
// anything other than .csv read as a workbook.
func NewDataReader(filePath string, logger zerolog.Logger) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: logger}
}

// WithSheet selects the workbook sheet to read. The default is the first sheet.
func (r *DataReader) WithSheet(name string) *DataReader {
	r.sheet = name
	return r
}

// ReadTable reads the header row and every data row.
func (r *DataReader) ReadTable() (*Table, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.NotFound(strings.ToUpper(r.fileType) + " file " + r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, errors.InvalidInput("unsupported file type: " + r.fileType)
	}
}

func (r *DataReader) readExcelData() (*Table, error) {
	start := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open Excel file %s", r.filePath)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.Schema("workbook %s has no sheets", r.filePath)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", sheet)
	}
	r.logger.Debug().
		Str("file", r.filePath).
		Str("sheet", sheet).
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("workbook read")

	return r.processRows(rows)
}

func (r *DataReader) readCSVData() (*Table, error) {
	start := time.Now()
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open CSV file %s", r.filePath)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.WithCode(errors.CodeSchemaError, errors.Wrapf(err, "failed to parse CSV file %s", r.filePath))
	}
	r.logger.Debug().
		Str("file", r.filePath).
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("CSV read")

	return r.processRows(rows)
}

// processRows trims every cell, skips blank lines and pads short rows so each row
// has one cell per header.
func (r *DataReader) processRows(rows [][]string) (*Table, error) {
	if len(rows) < 2 {
		return nil, errors.Schema("%s must have a header row and at least one data row", r.filePath)
	}

	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}

	table := &Table{Headers: headers}
	for _, row := range rows[1:] {
		cells := make([]string, len(headers))
		blank := true
		for j := 0; j < len(row) && j < len(headers); j++ {
			cells[j] = strings.TrimSpace(row[j])
			if cells[j] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		table.Rows = append(table.Rows, cells)
	}
	if len(table.Rows) == 0 {
		return nil, errors.Schema("%s has no data rows", r.filePath)
	}
	return table, nil
}
