package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pollcast/internal/config"
	"pollcast/internal/logging"
)

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	rootCmd := &cobra.Command{
		Use:           "pollcast",
		Short:         "Select a polynomial poll model by cross-validation and forecast current polls",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("CONFIG_FILE", configFile)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file (overrides CONFIG_FILE)")

	rootCmd.AddCommand(
		newSweepCmd(),
		newForecastCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newGenerateCmd(),
	)
	return rootCmd
}

// setup loads the configuration and installs the global logger.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	return cfg, logger, nil
}
