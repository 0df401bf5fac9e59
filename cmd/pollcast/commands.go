package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"pollcast/adapters/api"
	"pollcast/adapters/bolt"
	"pollcast/adapters/excel"
	"pollcast/adapters/postgres"
	"pollcast/app"
	"pollcast/internal/config"
	"pollcast/internal/errors"
	"pollcast/internal/logging"
	"pollcast/internal/migration"
	"pollcast/internal/regression"
	"pollcast/internal/report"
	"pollcast/internal/telemetry"
	"pollcast/internal/testkit"
	"pollcast/ports"
)

func newSweepCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Cross-validate the candidate orders and print the performance table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			svc, err := app.NewForecastService(cfg, excel.NewLoader(logging.Component("loader")),
				regression.NewPolynomialFitter(), app.WithLogger(logger))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			result, err := svc.Sweep(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ORDER\tMEAN SCORE\t")
			for _, order := range result.Table.Orders {
				mark := ""
				if order == result.BestOrder {
					mark = "*"
				}
				fmt.Fprintf(tw, "%d\t%.6f\t%s\n", order, result.Table.Mean[order], mark)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newForecastCmd() *cobra.Command {
	var format, out string
	var noSave bool

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Select the best order, forecast the current polls and persist the run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			opts := []app.ServiceOption{app.WithLogger(logger)}
			if !noSave {
				runs, err := openRunRepository(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer runs.Close()
				opts = append(opts, app.WithRunRepository(runs))
			}
			svc, err := app.NewForecastService(cfg, excel.NewLoader(logging.Component("loader")),
				regression.NewPolynomialFitter(), opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			run, err := svc.Run(ctx)
			if err != nil {
				return err
			}

			var body []byte
			switch format {
			case "markdown", "md":
				body = report.Markdown(run)
			case "html":
				if body, err = report.HTML(run); err != nil {
					return err
				}
			case "json":
				if body, err = json.MarshalIndent(run, "", "  "); err != nil {
					return err
				}
			default:
				return errors.InvalidInput("unknown output format " + format)
			}

			if out == "" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			return os.WriteFile(out, body, 0o644)
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "Output format: markdown, html or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not persist the run")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve persisted runs over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			runs, err := openRunRepository(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			metrics := telemetry.New()
			svc, err := app.NewForecastService(cfg, excel.NewLoader(logging.Component("loader")),
				regression.NewPolynomialFitter(),
				app.WithRunRepository(runs),
				app.WithMetrics(metrics),
				app.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			server := api.NewServer(runs, svc, api.WithLogger(logging.Component("api")))
			return server.ListenAndServe(ctx, cfg.Server)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres tables used to store runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.Storage.DatabaseURL == "" {
				return errors.ConfigInvalid("DATABASE_URL is required")
			}

			db, err := sqlx.Connect("postgres", cfg.Storage.DatabaseURL)
			if err != nil {
				return errors.DatabaseError("failed to connect to database", err)
			}
			defer db.Close()

			runner := migration.NewRunner()
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}
			logger.Info().Str("version", runner.Version()).Msg("Migrations applied")
			return nil
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var outDir, format string
	var regions int
	var seed int64

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic history and current-polls file",
		Long: `Generate a synthetic election history and a set of current polls in the
column layout of the default configuration.

Example: pollcast generate --out data --format xlsx --regions 50 --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			genCfg := testkit.DefaultPollConfig()
			genCfg.Regions = regions
			genCfg.Seed = seed

			fixtures, err := testkit.WriteFixtures(outDir, genCfg, format)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), fixtures.HistoryPath)
			fmt.Fprintln(cmd.OutOrStdout(), fixtures.PollsPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "data", "Output directory")
	cmd.Flags().StringVar(&format, "format", "csv", "File format: csv or xlsx")
	cmd.Flags().IntVar(&regions, "regions", 50, "Number of regions")
	cmd.Flags().Int64Var(&seed, "seed", 20, "Random seed")
	return cmd
}

// openRunRepository opens the configured run store.
func openRunRepository(ctx context.Context, cfg *config.Config) (ports.RunRepository, error) {
	switch cfg.Storage.Driver {
	case config.DriverBolt:
		store, err := bolt.NewRunStore(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, errors.DatabaseError("failed to connect to database", err)
		}
		return postgres.NewRunRepository(db), nil
	default:
		return nil, errors.ConfigInvalid("unknown storage driver " + cfg.Storage.Driver)
	}
}
