package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollcast/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, cfg.Model.Orders)
	assert.Equal(t, 20, cfg.Model.Folds)
	assert.Equal(t, []float64{0.7, 0.3}, cfg.Model.Split)
	assert.Equal(t, "share", cfg.Model.Policy)
	assert.Equal(t, "margin", cfg.Model.Metric)
	assert.Equal(t, DriverBolt, cfg.Storage.Driver)
	assert.Equal(t, [3]string{"Poll-D", "Poll-R", "Poll-Other"}, cfg.Data.Schema.Baselines)
	assert.Equal(t, []string{"State"}, cfg.Data.Schema.PollKeyColumns)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MODEL_ORDERS", "0, 1,2")
	t.Setenv("FOLDS", "5")
	t.Setenv("SPLIT", "0.8,0.2")
	t.Setenv("SEED", "99")
	t.Setenv("CV_POLICY", "multiplier")
	t.Setenv("EVALUATION_COLUMNS", "Eval-D,Eval-R,Eval-Other")
	t.Setenv("PARTY_LABELS", "Dem,Rep,Ind")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, cfg.Model.Orders)
	assert.Equal(t, 5, cfg.Model.Folds)
	assert.Equal(t, []float64{0.8, 0.2}, cfg.Model.Split)
	assert.Equal(t, int64(99), cfg.Model.Seed)
	assert.Equal(t, [3]string{"Eval-D", "Eval-R", "Eval-Other"}, cfg.Data.Schema.Evaluation)
	assert.Equal(t, "Rep", cfg.Data.Labels[1])
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollcast.yaml")
	yamlDoc := `
data:
  history_file: fixtures/history.xlsx
  labels: [Labour, Conservative, Other]
model:
  orders: [1, 2]
  folds: 10
  metric: rmse
storage:
  driver: postgres
  database_url: postgres://localhost/pollcast
server:
  read_timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("FOLDS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fixtures/history.xlsx", cfg.Data.HistoryFile)
	assert.Equal(t, "Conservative", cfg.Data.Labels[1])
	assert.Equal(t, []int{1, 2}, cfg.Model.Orders)
	assert.Equal(t, 8, cfg.Model.Folds)
	assert.Equal(t, "rmse", cfg.Model.Metric)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	// untouched sections keep their defaults
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "Result-D", cfg.Data.Schema.Targets[0])
}

func TestLoadRejectsBadFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid), "got %v", err)
}

func TestLoadRejectsMalformedLists(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TARGET_COLUMNS", "a,b")
	_, err := Load()
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))

	t.Setenv("TARGET_COLUMNS", "")
	t.Setenv("MODEL_ORDERS", "0,one")
	_, err = Load()
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestLoadRejectsMalformedScalars(t *testing.T) {
	cases := map[string]string{
		"FOLDS":            "five",
		"SEED":             "0x2a",
		"PARALLELISM":      "2.5",
		"CHECK_TOLERANCE":  "abc",
		"SHUTDOWN_TIMEOUT": "10",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid), "got %v", err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadRejectsDuplicateOrders(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MODEL_ORDERS", "1,1")
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid), "got %v", err)
	assert.Contains(t, err.Error(), "listed twice")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no orders":          func(c *Config) { c.Model.Orders = nil },
		"negative order":     func(c *Config) { c.Model.Orders = []int{-1} },
		"duplicate orders":   func(c *Config) { c.Model.Orders = []int{0, 2, 2} },
		"one fold":           func(c *Config) { c.Model.Folds = 1 },
		"bad split":          func(c *Config) { c.Model.Split = []float64{0.5, 0.4} },
		"unknown policy":     func(c *Config) { c.Model.Policy = "bespoke" },
		"no evaluation":      func(c *Config) { c.Model.Policy = "multiplier" },
		"unknown metric":     func(c *Config) { c.Model.Metric = "mae" },
		"unknown driver":     func(c *Config) { c.Storage.Driver = "sqlite" },
		"postgres no url":    func(c *Config) { c.Storage.Driver = DriverPostgres },
		"missing label":      func(c *Config) { c.Data.Labels[2] = "" },
		"no history file":    func(c *Config) { c.Data.HistoryFile = "" },
		"negative tolerance": func(c *Config) { c.Model.CheckTolerance = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			err := cfg.Validate()
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid), "got %v", err)
		})
	}

	assert.NoError(t, Default().Validate())
}
