package testkit

import (
	"os"
	"path/filepath"

	"pollcast/domain/dataset"
	"pollcast/internal/errors"
)

// File formats WriteFixtures can produce.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Fixtures locates a generated history and current-polls pair on disk.
type Fixtures struct {
	HistoryPath string
	PollsPath   string
	Schema      dataset.Schema
}

// WriteFixtures generates a history and a set of current polls with config and
// writes them to dir as history.<format> and polls.<format>.
func WriteFixtures(dir string, config PollGeneratorConfig, format string) (*Fixtures, error) {
	if format != FormatCSV && format != FormatXLSX {
		return nil, errors.InvalidInput("unknown fixture format " + format)
	}

	gen := NewPollGenerator(config)
	history, err := gen.History()
	if err != nil {
		return nil, err
	}
	current, err := gen.Current()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create fixture directory")
	}

	fixtures := &Fixtures{
		HistoryPath: filepath.Join(dir, "history."+format),
		PollsPath:   filepath.Join(dir, "polls."+format),
		Schema:      PollSchema(),
	}
	if err := writeFile(fixtures.HistoryPath, format, history, fixtures.Schema.KeyColumns); err != nil {
		return nil, err
	}
	if err := writeFile(fixtures.PollsPath, format, current, fixtures.Schema.PollKeyColumns); err != nil {
		return nil, err
	}
	return fixtures, nil
}

func writeFile(path, format string, ds *dataset.Dataset, keyColumns []string) error {
	if format == FormatXLSX {
		return WriteXLSX(path, ds, keyColumns)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create "+path)
	}
	if err := WriteCSV(f, ds, keyColumns); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
