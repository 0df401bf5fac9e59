package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"pollcast/domain/dataset"
	"pollcast/domain/forecast"
	"pollcast/internal/errors"
)

// Column names of the generated files.
const (
	ColumnState = "State"
	ColumnYear  = "Year"
)

var (
	pollColumns   = []string{"Poll-D", "Poll-R", "Poll-Other"}
	resultColumns = []string{"Result-D", "Result-R", "Result-Other"}
)

// PollSchema returns the schema matching the generated files.
func PollSchema() dataset.Schema {
	return dataset.Schema{
		KeyColumns:     []string{ColumnState, ColumnYear},
		PollKeyColumns: []string{ColumnState},
		Features:       append([]string(nil), pollColumns...),
		Targets:        [3]string{resultColumns[0], resultColumns[1], resultColumns[2]},
	}.WithDefaults()
}

// PollGeneratorConfig configures the synthetic election generator
type PollGeneratorConfig struct {
	Regions int   `json:"regions"`
	Years   []int `json:"years"`
	// PollNoise is the standard deviation of the sampling error added to each poll share.
	PollNoise float64 `json:"poll_noise"`
	// PollBias is the systematic error of the polls per channel: polls read
	// result + bias before noise.
	PollBias [3]float64 `json:"poll_bias"`
	Seed     int64      `json:"seed"`
}

// DefaultPollConfig returns a history comparable in size to a real presidential dataset
func DefaultPollConfig() PollGeneratorConfig {
	return PollGeneratorConfig{
		Regions:   50,
		Years:     []int{2004, 2008, 2012, 2016, 2020},
		PollNoise: 0.015,
		PollBias:  [3]float64{0.01, -0.015, 0.02},
		Seed:      20,
	}
}

// PollGenerator produces historical poll/result pairs and a set of current polls.
// Results follow a per-region lean plus a per-year national swing; polls are the
// results shifted by a fixed bias, perturbed by noise and renormalised.
type PollGenerator struct {
	config PollGeneratorConfig
	rng    *rand.Rand
	lean   []float64
	other  []float64
}

// NewPollGenerator creates a new poll generator
func NewPollGenerator(config PollGeneratorConfig) *PollGenerator {
	g := &PollGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
	g.lean = make([]float64, config.Regions)
	g.other = make([]float64, config.Regions)
	for r := range g.lean {
		g.lean[r] = -0.25 + 0.5*g.rng.Float64()
		g.other[r] = 0.02 + 0.06*g.rng.Float64()
	}
	return g
}

// RegionName returns the key of region r.
func RegionName(r int) string {
	return fmt.Sprintf("S%02d", r+1)
}

// History generates one row per region and year with poll and result columns.
func (g *PollGenerator) History() (*dataset.Dataset, error) {
	if g.config.Regions < 1 || len(g.config.Years) == 0 {
		return nil, errors.InvalidInput("generator needs at least one region and one year")
	}
	columns := append(append([]string(nil), pollColumns...), resultColumns...)

	var keys []string
	var cells [][]float64
	for _, year := range g.config.Years {
		swing := g.rng.NormFloat64() * 0.03
		for r := 0; r < g.config.Regions; r++ {
			result := g.result(r, swing)
			poll := g.poll(result)
			keys = append(keys, RegionName(r)+"|"+strconv.Itoa(year))
			cells = append(cells, []float64{poll[0], poll[1], poll[2], result[0], result[1], result[2]})
		}
	}
	return dataset.New("history", columns, keys, cells)
}

// Current generates one row of polls per region for an upcoming election.
func (g *PollGenerator) Current() (*dataset.Dataset, error) {
	if g.config.Regions < 1 {
		return nil, errors.InvalidInput("generator needs at least one region")
	}
	swing := g.rng.NormFloat64() * 0.03
	keys := make([]string, g.config.Regions)
	cells := make([][]float64, g.config.Regions)
	for r := range keys {
		poll := g.poll(g.result(r, swing))
		keys[r] = RegionName(r)
		cells[r] = []float64{poll[0], poll[1], poll[2]}
	}
	return dataset.New("polls", append([]string(nil), pollColumns...), keys, cells)
}

func (g *PollGenerator) result(r int, swing float64) forecast.Shares {
	other := g.other[r]
	two := 1 - other
	d := clamp(two/2+(g.lean[r]+swing)/2, 0.05, two-0.05)
	return forecast.Shares{d, two - d, other}
}

func (g *PollGenerator) poll(result forecast.Shares) forecast.Shares {
	var raw forecast.Shares
	for c := range raw {
		raw[c] = math.Max(result[c]+g.config.PollBias[c]+g.rng.NormFloat64()*g.config.PollNoise, 0.001)
	}
	sum := raw.Sum()
	for c := range raw {
		raw[c] /= sum
	}
	return raw
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// records lays ds out as text rows: the key parts under keyColumns, then every
// numeric column.
func records(ds *dataset.Dataset, keyColumns []string) ([][]string, error) {
	header := append(append([]string(nil), keyColumns...), ds.Columns()...)
	columns := make([][]float64, 0, len(ds.Columns()))
	for _, name := range ds.Columns() {
		col, err := ds.Column(name)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}

	out := [][]string{header}
	for i := 0; i < ds.Len(); i++ {
		parts := strings.Split(ds.Key(i), "|")
		if len(parts) != len(keyColumns) {
			return nil, errors.Schema("row key %q does not have %d parts", ds.Key(i), len(keyColumns))
		}
		row := append([]string(nil), parts...)
		for _, col := range columns {
			row = append(row, strconv.FormatFloat(col[i], 'f', -1, 64))
		}
		out = append(out, row)
	}
	return out, nil
}

// WriteCSV writes ds as CSV with the row keys split back into keyColumns.
func WriteCSV(w io.Writer, ds *dataset.Dataset, keyColumns []string) error {
	rows, err := records(ds, keyColumns)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(rows); err != nil {
		return errors.Wrap(err, "failed to write CSV")
	}
	return nil
}

// WriteXLSX writes ds to the first sheet of a new workbook at path. Numeric cells
// are stored as numbers.
func WriteXLSX(path string, ds *dataset.Dataset, keyColumns []string) error {
	rows, err := records(ds, keyColumns)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		values := make([]interface{}, len(row))
		for j, cell := range row {
			if i > 0 && j >= len(keyColumns) {
				v, _ := strconv.ParseFloat(cell, 64)
				values[j] = v
				continue
			}
			values[j] = cell
		}
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrap(err, "failed to address row")
		}
		if err := f.SetSheetRow("Sheet1", ref, &values); err != nil {
			return errors.Wrapf(err, "failed to write row %d", i)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	return nil
}
