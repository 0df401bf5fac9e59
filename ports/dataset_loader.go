package ports

import (
	"context"

	"pollcast/domain/dataset"
)

// DatasetLoader reads a tabular file into a Dataset. The returned dataset has
// been validated against the schema: a history file against every role, a polls
// file against its inputs only.
type DatasetLoader interface {
	LoadHistory(ctx context.Context, path string, schema dataset.Schema) (*dataset.Dataset, error)
	LoadPolls(ctx context.Context, path string, schema dataset.Schema) (*dataset.Dataset, error)
}
