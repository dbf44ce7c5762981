// Package main provides the CLI entry point for ddlbench, a DDL latency
// benchmarking tool for SQL engines and open dictionary catalogs.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/weiihann/ddlbench/backend"
	"github.com/weiihann/ddlbench/bench"
	"github.com/weiihann/ddlbench/config"
	"github.com/weiihann/ddlbench/harness"
	"github.com/weiihann/ddlbench/recorder"
	"github.com/weiihann/ddlbench/report"
	"github.com/weiihann/ddlbench/telemetry"
	"github.com/weiihann/ddlbench/workload"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(logger, level)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

// globals holds flags shared by every command.
type globals struct {
	configPath string
	verbose    bool
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var g globals

	root := &cobra.Command{
		Use:   "ddlbench",
		Short: "DDL latency benchmarking tool",
		Long: `Ddlbench measures how long catalog operations take. It creates,
alters, comments on and lists tables or functions at growing object counts
against SQLite, PostgreSQL, DuckDB, Snowflake and open dictionary catalogs,
and records every timed statement in a local DuckDB file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if g.verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "",
		"Path to config file (default $DDLBENCH_CONFIG or ddlbench.yaml)")
	flags.BoolVarP(&g.verbose, "verbose", "v", false,
		"Log every timed query")

	root.AddCommand(
		newRunCmd(logger, &g),
		newReportCmd(logger, &g),
		newExportCmd(logger, &g),
		newPingCmd(logger, &g),
		newSystemsCmd(),
	)

	return root
}

func loadConfig(g *globals) (*config.Config, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}

	path := g.configPath
	if path == "" {
		path = env.Config
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(env)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func parseSystems(names []string) ([]bench.System, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one system must be specified via --systems")
	}

	systems := make([]bench.System, 0, len(names))

	for _, name := range names {
		sys, err := bench.ParseSystem(name)
		if err != nil {
			return nil, err
		}

		systems = append(systems, sys)
	}

	return systems, nil
}

func newRunCmd(logger *slog.Logger, g *globals) *cobra.Command {
	var cfg runConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a DDL experiment against one or more systems",
		Long: `Tear each system down, create objects tier by tier and time every
DDL statement, recording the results in the results store. Systems run one
after another.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBenchmark(cmd.Context(), cmd.OutOrStdout(), logger, g, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&cfg.systems, "systems", nil,
		"Systems to benchmark (e.g. sqlite,duckDB,postgres)")
	flags.StringVar(&cfg.experiment, "experiment", string(harness.Tables),
		"Experiment to run: tables (1) or functions (2)")
	flags.StringSliceVar(&cfg.granularities, "granularities", nil,
		"Object count tiers (default 1,10,100,1000,10000,100000)")
	flags.IntVar(&cfg.repetitions, "repetitions", harness.DefaultRepetitions,
		"Point operations per tier")
	flags.Int64Var(&cfg.seed, "seed", 0,
		"Random seed for target selection (0 = use current time)")
	flags.BoolVar(&cfg.outputJSON, "json", false,
		"Output results as JSON instead of table")

	return cmd
}

type runConfig struct {
	systems       []string
	experiment    string
	granularities []string
	repetitions   int
	seed          int64
	outputJSON    bool
}

// runBenchmark runs rc against every selected system and reports on the
// records written by this invocation only.
func runBenchmark(
	ctx context.Context,
	out io.Writer,
	logger *slog.Logger,
	g *globals,
	rc runConfig,
) error {
	systems, err := parseSystems(rc.systems)
	if err != nil {
		return err
	}

	experiment, err := harness.ParseExperiment(rc.experiment)
	if err != nil {
		return err
	}

	tiers := bench.DefaultGranularities()
	if len(rc.granularities) > 0 {
		if tiers, err = bench.ParseGranularities(rc.granularities); err != nil {
			return err
		}
	}

	seed := rc.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	metrics, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("start telemetry: %w", err)
	}
	defer metrics.Close(context.WithoutCancel(ctx))

	store, err := recorder.Open(ctx, cfg.ResultsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	secrets := config.NewSecretCache(nil)

	logger.InfoContext(ctx, "starting benchmark",
		slog.Any("systems", systems),
		slog.String("experiment", string(experiment)),
		slog.Any("granularities", tiers),
		slog.Int("repetitions", rc.repetitions),
		slog.Int64("seed", seed),
		slog.String("results_db", cfg.ResultsDB),
	)

	var records []recorder.Record

	for _, sys := range systems {
		recs, err := runSystem(ctx, logger, cfg, secrets, store, metrics, sys, harness.RunConfig{
			Experiment:    experiment,
			Granularities: tiers,
			Repetitions:   rc.repetitions,
			Seed:          seed,
		})
		if err != nil {
			return fmt.Errorf("run %s: %w", sys, err)
		}

		records = append(records, recs...)
	}

	if err := writeReport(out, rc.outputJSON, report.Summarize(records)); err != nil {
		return err
	}

	logger.InfoContext(ctx, "benchmark complete")

	return nil
}

func runSystem(
	ctx context.Context,
	logger *slog.Logger,
	cfg *config.Config,
	secrets *config.SecretCache,
	store *recorder.Store,
	metrics telemetry.Metrics,
	sys bench.System,
	rc harness.RunConfig,
) ([]recorder.Record, error) {
	b, err := backend.Open(ctx, sys, cfg, secrets)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	startedAt := time.Now()

	run, err := store.StartRun(ctx, sys, string(rc.Experiment), rc.Seed, startedAt)
	if err != nil {
		return nil, err
	}

	runner := harness.NewRunner(b, store, metrics, logger.With(slog.String("run_id", run.ID.String())))
	if term.IsTerminal(int(os.Stdout.Fd())) {
		runner.Progress = os.Stdout
	}

	summary, runErr := runner.Run(ctx, rc)

	status := recorder.StatusComplete
	if runErr != nil {
		status = recorder.StatusFailed
	}

	err = store.FinishRun(context.WithoutCancel(ctx), run.ID, time.Now(), status, len(summary.FailedTiers))
	if err != nil {
		logger.WarnContext(ctx, "failed to finish run",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if runErr != nil {
		return nil, runErr
	}

	return store.RecordsSince(ctx, sys, startedAt)
}

func writeReport(w io.Writer, outputJSON bool, summaries []report.Summary) error {
	if outputJSON {
		if err := report.GenerateJSON(w, summaries); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}

		return nil
	}

	if err := report.Generate(w, summaries); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	return nil
}

func newReportCmd(logger *slog.Logger, g *globals) *cobra.Command {
	var (
		systems    []string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise recorded latencies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			selected := bench.KnownSystems()
			if len(systems) > 0 {
				var err error
				if selected, err = parseSystems(systems); err != nil {
					return err
				}
			}

			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}

			store, err := recorder.Open(ctx, cfg.ResultsDB)
			if err != nil {
				return err
			}
			defer store.Close()

			var records []recorder.Record

			for _, sys := range selected {
				recs, err := store.Records(ctx, sys)
				if err != nil {
					return err
				}

				records = append(records, recs...)
			}

			logger.DebugContext(ctx, "loaded records", slog.Int("records", len(records)))

			return writeReport(cmd.OutOrStdout(), outputJSON, report.Summarize(records))
		},
	}

	cmd.Flags().StringSliceVar(&systems, "systems", nil,
		"Systems to report on (default all)")
	cmd.Flags().BoolVar(&outputJSON, "json", false,
		"Output results as JSON instead of table")

	return cmd
}

func newExportCmd(logger *slog.Logger, g *globals) *cobra.Command {
	var (
		system string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a system's results table to parquet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			sys, err := bench.ParseSystem(system)
			if err != nil {
				return err
			}

			if output == "" {
				output = string(sys) + ".parquet"
			}

			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}

			store, err := recorder.Open(ctx, cfg.ResultsDB)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Export(ctx, sys, output); err != nil {
				return err
			}

			logger.InfoContext(ctx, "results exported",
				slog.String("system", string(sys)),
				slog.String("path", output),
			)

			return nil
		},
	}

	cmd.Flags().StringVar(&system, "system", "",
		"System whose results to export")
	cmd.Flags().StringVarP(&output, "output", "o", "",
		"Parquet file to write (default <system>.parquet)")
	_ = cmd.MarkFlagRequired("system")

	return cmd
}

func newPingCmd(logger *slog.Logger, g *globals) *cobra.Command {
	var (
		system string
		count  int
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Measure the round trip latency of a system",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			sys, err := bench.ParseSystem(system)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}

			b, err := backend.Open(ctx, sys, cfg, config.NewSecretCache(nil))
			if err != nil {
				return err
			}
			defer b.Close()

			query := workload.NewBuilder(workload.Config{System: sys}).Ping()

			avg, err := backend.Ping(ctx, b, query, count)
			if err != nil {
				return err
			}

			logger.DebugContext(ctx, "ping finished",
				slog.String("query", query),
				slog.Int("count", count),
			)

			fmt.Fprintf(cmd.OutOrStdout(), "%s: average latency over %d queries: %s\n", sys, count, avg)

			return nil
		},
	}

	cmd.Flags().StringVar(&system, "system", "",
		"System to ping")
	cmd.Flags().IntVarP(&count, "count", "n", 10,
		"Number of round trips")
	_ = cmd.MarkFlagRequired("system")

	return cmd
}

func newSystemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "systems",
		Short: "List supported systems and experiments",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Systems:")
			for _, sys := range bench.KnownSystems() {
				fmt.Fprintf(out, "  %s\n", sys)
			}

			fmt.Fprintln(out, "Experiments:")
			for i, e := range harness.KnownExperiments() {
				fmt.Fprintf(out, "  %d  %s\n", i+1, e)
			}
		},
	}
}
