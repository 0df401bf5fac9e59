package testkit

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollcast/adapters/excel"
)

func TestHistoryShape(t *testing.T) {
	cfg := DefaultPollConfig()
	ds, err := NewPollGenerator(cfg).History()
	require.NoError(t, err)

	assert.Equal(t, cfg.Regions*len(cfg.Years), ds.Len())
	assert.Equal(t, "S01|2004", ds.Key(0))
	assert.Equal(t, "S02|2004", ds.Key(1))
	require.NoError(t, PollSchema().Validate(ds))

	for _, prefix := range []string{"Poll-", "Result-"} {
		d, _ := ds.Column(prefix + "D")
		r, _ := ds.Column(prefix + "R")
		o, _ := ds.Column(prefix + "Other")
		for i := range d {
			assert.InDelta(t, 1.0, d[i]+r[i]+o[i], 1e-9)
			assert.Greater(t, o[i], 0.0)
		}
	}
}

func TestGeneratorIsSeeded(t *testing.T) {
	a, err := NewPollGenerator(DefaultPollConfig()).History()
	require.NoError(t, err)
	b, err := NewPollGenerator(DefaultPollConfig()).History()
	require.NoError(t, err)
	assert.Equal(t, a.Hash(), b.Hash())

	cfg := DefaultPollConfig()
	cfg.Seed = 21
	c, err := NewPollGenerator(cfg).History()
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestGeneratorRejectsEmptyConfig(t *testing.T) {
	_, err := NewPollGenerator(PollGeneratorConfig{}).History()
	assert.Error(t, err)
	_, err = NewPollGenerator(PollGeneratorConfig{}).Current()
	assert.Error(t, err)
}

func TestWriteCSVSplitsKeys(t *testing.T) {
	cfg := DefaultPollConfig()
	cfg.Regions = 2
	cfg.Years = []int{2020}
	ds, err := NewPollGenerator(cfg).History()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds, []string{ColumnState, ColumnYear}))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"State", "Year", "Poll-D", "Poll-R", "Poll-Other", "Result-D", "Result-R", "Result-Other"}, rows[0])
	assert.Equal(t, []string{"S02", "2020"}, rows[2][:2])

	// a key layout that does not match is rejected
	assert.Error(t, WriteCSV(&bytes.Buffer{}, ds, []string{ColumnState}))
}

func TestWriteFixturesLoads(t *testing.T) {
	for _, format := range []string{FormatCSV, FormatXLSX} {
		t.Run(format, func(t *testing.T) {
			cfg := DefaultPollConfig()
			cfg.Regions = 5
			fixtures, err := WriteFixtures(t.TempDir(), cfg, format)
			require.NoError(t, err)

			loader := excel.NewLoader(zerolog.Nop())
			history, err := loader.LoadHistory(context.Background(), fixtures.HistoryPath, fixtures.Schema)
			require.NoError(t, err)
			assert.Equal(t, 5*len(cfg.Years), history.Len())

			polls, err := loader.LoadPolls(context.Background(), fixtures.PollsPath, fixtures.Schema)
			require.NoError(t, err)
			assert.Equal(t, []string{"S01", "S02", "S03", "S04", "S05"}, polls.Keys())
		})
	}

	_, err := WriteFixtures(t.TempDir(), DefaultPollConfig(), "parquet")
	assert.Error(t, err)
}
