package dataset

import (
	"pollcast/internal/errors"
)

// Schema assigns roles to dataset columns. It is validated once, when a dataset is
// loaded, instead of on every column access.
type Schema struct {
	// KeyColumns are joined with "|" to form the row key of historical rows. They
	// are read as text and never become numeric columns.
	KeyColumns []string `yaml:"key_columns" json:"key_columns"`
	// PollKeyColumns key the rows of a current-polls file. Defaults to the first
	// key column.
	PollKeyColumns []string `yaml:"poll_key_columns" json:"poll_key_columns"`
	// Features are the model inputs.
	Features []string `yaml:"features" json:"features"`
	// Targets are the fit targets, one per channel.
	Targets [3]string `yaml:"targets" json:"targets"`
	// Baselines are multiplied into the predictions by the multiplier-adjusted policy.
	Baselines [3]string `yaml:"baselines" json:"baselines"`
	// Evaluation columns hold the ground truth for the multiplier-adjusted policy.
	Evaluation [3]string `yaml:"evaluation" json:"evaluation"`
}

// WithDefaults fills unset baselines from the feature columns, repeating the last
// feature when there are fewer than three, and the poll key from the first key column.
func (s Schema) WithDefaults() Schema {
	if len(s.PollKeyColumns) == 0 && len(s.KeyColumns) > 0 {
		s.PollKeyColumns = s.KeyColumns[:1]
	}
	if len(s.Features) == 0 {
		return s
	}
	for c := range s.Baselines {
		if s.Baselines[c] != "" {
			continue
		}
		if c < len(s.Features) {
			s.Baselines[c] = s.Features[c]
		} else {
			s.Baselines[c] = s.Features[len(s.Features)-1]
		}
	}
	return s
}

// TargetColumns returns the three target names as a slice.
func (s Schema) TargetColumns() []string { return s.Targets[:] }

// HasEvaluation reports whether all three evaluation columns are configured.
func (s Schema) HasEvaluation() bool {
	return s.Evaluation[0] != "" && s.Evaluation[1] != "" && s.Evaluation[2] != ""
}

// ValidateInputs checks the feature columns, which is all a dataset of current
// polls needs to carry.
func (s Schema) ValidateInputs(ds *Dataset) error {
	if len(s.Features) == 0 {
		return errors.Schema("schema has no feature columns")
	}
	for _, col := range s.Features {
		if !ds.HasColumn(col) {
			return errors.Schema("feature column %q missing from %q", col, ds.Name())
		}
	}
	return nil
}

// Validate checks every role of a historical dataset: inputs, targets, and the
// baseline and evaluation columns when configured. A target may not also be a feature.
func (s Schema) Validate(ds *Dataset) error {
	if err := s.ValidateInputs(ds); err != nil {
		return err
	}

	features := make(map[string]struct{}, len(s.Features))
	for _, col := range s.Features {
		features[col] = struct{}{}
	}
	for c, col := range s.Targets {
		if col == "" {
			return errors.Schema("target column for channel %d is not set", c)
		}
		if !ds.HasColumn(col) {
			return errors.Schema("target column %q missing from %q", col, ds.Name())
		}
		if _, clash := features[col]; clash {
			return errors.Schema("column %q cannot be both a feature and a target", col)
		}
	}
	for _, col := range s.Baselines {
		if col != "" && !ds.HasColumn(col) {
			return errors.Schema("baseline column %q missing from %q", col, ds.Name())
		}
	}
	for _, col := range s.Evaluation {
		if col != "" && !ds.HasColumn(col) {
			return errors.Schema("evaluation column %q missing from %q", col, ds.Name())
		}
	}
	return nil
}
