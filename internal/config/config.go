package config

import (
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pollcast/domain/dataset"
	"pollcast/domain/forecast"
	"pollcast/internal/crossval"
	"pollcast/internal/errors"
	"pollcast/internal/performance"
)

// Config represents the complete application configuration
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Model   ModelConfig   `yaml:"model"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig locates the input files and names their columns
type DataConfig struct {
	HistoryFile string          `yaml:"history_file"`
	PollsFile   string          `yaml:"polls_file"`
	Schema      dataset.Schema  `yaml:"schema"`
	Labels      forecast.Labels `yaml:"labels"`
}

// ModelConfig controls model selection
type ModelConfig struct {
	Orders         []int     `yaml:"orders"`
	Folds          int       `yaml:"folds"`
	Split          []float64 `yaml:"split"`
	Seed           int64     `yaml:"seed"`
	Policy         string    `yaml:"policy"`
	Metric         string    `yaml:"metric"`
	Parallelism    int       `yaml:"parallelism"`
	CheckTolerance float64   `yaml:"check_tolerance"`
}

// StorageConfig selects where runs are persisted
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	BoltPath    string `yaml:"bolt_path"`
	DatabaseURL string `yaml:"database_url"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// Default returns the configuration used when nothing is overridden: the
// presidential poll layout, orders 0-4, 20 folds and a 70/30 split.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			HistoryFile: "data/history.csv",
			PollsFile:   "data/polls.csv",
			Schema: dataset.Schema{
				KeyColumns: []string{"State", "Year"},
				Features:   []string{"Poll-D", "Poll-R", "Poll-Other"},
				Targets:    [3]string{"Result-D", "Result-R", "Result-Other"},
			},
			Labels: forecast.DefaultLabels,
		},
		Model: ModelConfig{
			Orders:         []int{0, 1, 2, 3, 4},
			Folds:          20,
			Split:          []float64{0.7, 0.3},
			Seed:           20,
			Policy:         crossval.PolicyShareRenormalize.String(),
			Metric:         performance.MetricMargin,
			Parallelism:    runtime.NumCPU(),
			CheckTolerance: 0.01,
		},
		Storage: StorageConfig{
			Driver:   DriverBolt,
			BoltPath: "data/pollcast.db",
		},
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by CONFIG_FILE
// (if set) and environment variables, in increasing order of precedence, then
// validates it.
func Load() (*Config, error) {
	config := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFromYAML(path, config); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}
	config.Data.Schema = config.Data.Schema.WithDefaults()

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadFromYAML(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "failed to read config file %s", path))
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, errors.Wrapf(err, "failed to parse config file %s", path))
	}
	return nil
}

func applyEnv(config *Config) error {
	d := &config.Data
	d.HistoryFile = getEnvOrDefault("HISTORY_FILE", d.HistoryFile)
	d.PollsFile = getEnvOrDefault("POLLS_FILE", d.PollsFile)
	d.Schema.KeyColumns = getEnvListOrDefault("KEY_COLUMNS", d.Schema.KeyColumns)
	d.Schema.PollKeyColumns = getEnvListOrDefault("POLL_KEY_COLUMNS", d.Schema.PollKeyColumns)
	d.Schema.Features = getEnvListOrDefault("FEATURE_COLUMNS", d.Schema.Features)

	var err error
	if d.Schema.Targets, err = getEnvTripleOrDefault("TARGET_COLUMNS", d.Schema.Targets); err != nil {
		return err
	}
	if d.Schema.Baselines, err = getEnvTripleOrDefault("BASELINE_COLUMNS", d.Schema.Baselines); err != nil {
		return err
	}
	if d.Schema.Evaluation, err = getEnvTripleOrDefault("EVALUATION_COLUMNS", d.Schema.Evaluation); err != nil {
		return err
	}
	labels, err := getEnvTripleOrDefault("PARTY_LABELS", d.Labels)
	if err != nil {
		return err
	}
	d.Labels = labels

	m := &config.Model
	if m.Orders, err = getEnvIntsOrDefault("MODEL_ORDERS", m.Orders); err != nil {
		return err
	}
	if m.Split, err = getEnvFloatsOrDefault("SPLIT", m.Split); err != nil {
		return err
	}
	if m.Folds, err = getEnvIntOrDefault("FOLDS", m.Folds); err != nil {
		return err
	}
	if m.Seed, err = getEnvInt64OrDefault("SEED", m.Seed); err != nil {
		return err
	}
	m.Policy = getEnvOrDefault("CV_POLICY", m.Policy)
	m.Metric = getEnvOrDefault("METRIC", m.Metric)
	if m.Parallelism, err = getEnvIntOrDefault("PARALLELISM", m.Parallelism); err != nil {
		return err
	}
	if m.CheckTolerance, err = getEnvFloatOrDefault("CHECK_TOLERANCE", m.CheckTolerance); err != nil {
		return err
	}

	s := &config.Storage
	s.Driver = getEnvOrDefault("STORAGE_DRIVER", s.Driver)
	s.BoltPath = getEnvOrDefault("BOLT_PATH", s.BoltPath)
	s.DatabaseURL = getEnvOrDefault("DATABASE_URL", s.DatabaseURL)

	srv := &config.Server
	srv.Port = getEnvOrDefault("PORT", srv.Port)
	if srv.ReadTimeout, err = getEnvDurationOrDefault("READ_TIMEOUT", srv.ReadTimeout); err != nil {
		return err
	}
	if srv.WriteTimeout, err = getEnvDurationOrDefault("WRITE_TIMEOUT", srv.WriteTimeout); err != nil {
		return err
	}
	if srv.ShutdownTimeout, err = getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", srv.ShutdownTimeout); err != nil {
		return err
	}

	config.Logging.Level = getEnvOrDefault("LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnvOrDefault("LOG_FORMAT", config.Logging.Format)
	return nil
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Data.HistoryFile == "" {
		return errors.ConfigInvalid("history file is required")
	}
	if len(c.Data.Schema.Features) == 0 {
		return errors.ConfigInvalid("at least one feature column is required")
	}
	for i, col := range c.Data.Schema.Targets {
		if col == "" {
			return errors.ConfigInvalid("target column " + strconv.Itoa(i) + " is required")
		}
	}
	for _, label := range c.Data.Labels {
		if label == "" {
			return errors.ConfigInvalid("all three party labels are required")
		}
	}

	m := c.Model
	if len(m.Orders) == 0 {
		return errors.ConfigInvalid("at least one model order is required")
	}
	seen := make(map[int]bool, len(m.Orders))
	for _, order := range m.Orders {
		if order < 0 {
			return errors.ConfigInvalid("model orders must not be negative")
		}
		if seen[order] {
			return errors.ConfigInvalid("model order " + strconv.Itoa(order) + " is listed twice")
		}
		seen[order] = true
	}
	if m.Folds < 2 {
		return errors.ConfigInvalid("folds must be at least 2")
	}
	if len(m.Split) != 2 || m.Split[0] <= 0 || m.Split[1] < 0 || math.Abs(m.Split[0]+m.Split[1]-1) > 1e-9 {
		return errors.ConfigInvalid("split must be two non-negative fractions summing to 1")
	}
	policy, err := crossval.ParsePolicy(m.Policy)
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if policy.NeedsEvaluation() && !c.Data.Schema.HasEvaluation() {
		return errors.ConfigInvalid("policy " + policy.String() + " requires EVALUATION_COLUMNS")
	}
	if _, err := performance.Lookup(m.Metric); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if m.CheckTolerance < 0 {
		return errors.ConfigInvalid("check tolerance must not be negative")
	}

	switch c.Storage.Driver {
	case DriverBolt:
		if c.Storage.BoltPath == "" {
			return errors.ConfigInvalid("BOLT_PATH is required for the bolt driver")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.ConfigInvalid("DATABASE_URL is required for the postgres driver")
		}
	default:
		return errors.ConfigInvalid("unknown storage driver " + c.Storage.Driver)
	}

	if c.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// The numeric helpers reject a set but malformed value instead of falling back.
func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue, errors.ConfigInvalid(key + ": " + value + " is not an integer")
	}
	return intValue, nil
}

func getEnvInt64OrDefault(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return defaultValue, errors.ConfigInvalid(key + ": " + value + " is not an integer")
	}
	return intValue, nil
}

func getEnvFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue, errors.ConfigInvalid(key + ": " + value + " is not a number")
	}
	return floatValue, nil
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return defaultValue, errors.ConfigInvalid(key + ": " + value + " is not a duration")
	}
	return duration, nil
}

// getEnvListOrDefault reads a comma-separated list.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvTripleOrDefault(key string, defaultValue [3]string) ([3]string, error) {
	if os.Getenv(key) == "" {
		return defaultValue, nil
	}
	list := getEnvListOrDefault(key, nil)
	if len(list) != 3 {
		return defaultValue, errors.ConfigInvalid(key + " must list exactly 3 names")
	}
	return [3]string{list[0], list[1], list[2]}, nil
}

func getEnvIntsOrDefault(key string, defaultValue []int) ([]int, error) {
	if os.Getenv(key) == "" {
		return defaultValue, nil
	}
	var out []int
	for _, part := range getEnvListOrDefault(key, nil) {
		v, err := strconv.Atoi(part)
		if err != nil {
			return defaultValue, errors.ConfigInvalid(key + ": " + part + " is not an integer")
		}
		out = append(out, v)
	}
	return out, nil
}

func getEnvFloatsOrDefault(key string, defaultValue []float64) ([]float64, error) {
	if os.Getenv(key) == "" {
		return defaultValue, nil
	}
	var out []float64
	for _, part := range getEnvListOrDefault(key, nil) {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return defaultValue, errors.ConfigInvalid(key + ": " + part + " is not a number")
		}
		out = append(out, v)
	}
	return out, nil
}
