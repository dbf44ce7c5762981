package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/weiihann/ddlbench/backend"
	"github.com/weiihann/ddlbench/bench"
	"github.com/weiihann/ddlbench/recorder"
	"github.com/weiihann/ddlbench/telemetry"
	"github.com/weiihann/ddlbench/workload"
)

const (
	// DefaultRepetitions is the number of point operations per tier.
	DefaultRepetitions = 3

	progressWidth = 80
)

var errRecord = errors.New("record result")

// Execute runs query on b and measures it. End is derived from Start and
// the monotonic elapsed time, so it never precedes Start even if the wall
// clock steps. Driver errors are returned as is.
func Execute(ctx context.Context, b backend.Backend, query string) (Timing, error) {
	start := time.Now()

	if err := b.Exec(ctx, query); err != nil {
		return Timing{}, err
	}

	elapsed := time.Since(start)

	return Timing{
		Start:   start,
		End:     start.Add(elapsed),
		Elapsed: elapsed,
	}, nil
}

// Recorder persists one record per timed statement.
type Recorder interface {
	Record(ctx context.Context, r recorder.Record) error
}

// RunConfig holds parameters for a single experiment run.
type RunConfig struct {
	Experiment    Experiment
	Granularities []bench.Granularity
	Repetitions   int
	Seed          int64
}

// Runner drives experiments against one open backend.
type Runner struct {
	Backend  backend.Backend
	Recorder Recorder
	Metrics  telemetry.Metrics
	Logger   *slog.Logger

	// Progress receives a "--running: <query>" line per statement when set.
	Progress io.Writer
}

// NewRunner creates a Runner for b. A nil metrics discards observations.
func NewRunner(
	b backend.Backend,
	rec Recorder,
	metrics telemetry.Metrics,
	logger *slog.Logger,
) *Runner {
	if metrics == nil {
		metrics = telemetry.NoOp{}
	}

	return &Runner{
		Backend:  b,
		Recorder: rec,
		Metrics:  metrics,
		Logger:   logger.With(slog.String("system", string(b.System()))),
	}
}

// run is the state of one experiment run.
type run struct {
	cfg     RunConfig
	builder *workload.Builder

	// objects is the number of objects that currently exist. Tiers grow
	// the set incrementally from here.
	objects int
	summary Summary
}

// Run tears the system down, runs cfg.Experiment over every tier and tears
// it down again. A failing tier is logged and the run carries on with the
// next one; only recorder failures and cancellation abort the run.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (Summary, error) {
	if cfg.Repetitions <= 0 {
		cfg.Repetitions = DefaultRepetitions
	}
	if len(cfg.Granularities) == 0 {
		cfg.Granularities = bench.DefaultGranularities()
	}

	st := &run{
		cfg: cfg,
		builder: workload.NewBuilder(workload.Config{
			System: r.Backend.System(),
			Seed:   cfg.Seed,
		}),
	}

	if err := cfg.Experiment.Supported(st.builder); err != nil {
		return st.summary, err
	}

	r.Logger.InfoContext(ctx, "starting experiment",
		slog.String("experiment", string(cfg.Experiment)),
		slog.Any("granularities", cfg.Granularities),
		slog.Int("repetitions", cfg.Repetitions),
		slog.Int64("seed", cfg.Seed),
	)

	if err := r.teardown(ctx, st.builder); err != nil {
		return st.summary, fmt.Errorf("teardown before run: %w", err)
	}

	if err := r.untimed(ctx, st.builder.Setup(cfg.Experiment.Object())...); err != nil {
		return st.summary, fmt.Errorf("setup: %w", err)
	}

	runErr := r.tiers(ctx, st)

	r.endProgress()

	if err := r.teardown(context.WithoutCancel(ctx), st.builder); err != nil {
		r.Logger.WarnContext(ctx, "teardown after run failed",
			slog.String("error", err.Error()),
		)
	}

	st.summary.Objects = st.objects

	r.Logger.InfoContext(ctx, "experiment finished",
		slog.Int("records", st.summary.Records),
		slog.Int("objects", st.objects),
		slog.Int("failed_tiers", len(st.summary.FailedTiers)),
	)

	return st.summary, runErr
}

func (r *Runner) tiers(ctx context.Context, st *run) error {
	for _, g := range st.cfg.Granularities {
		tierStart := time.Now()

		var err error

		switch st.cfg.Experiment {
		case Functions:
			err = r.functionsTier(ctx, st, g)
		default:
			err = r.tablesTier(ctx, st, g)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if errors.Is(err, errRecord) {
			return err
		}

		if err != nil {
			st.summary.FailedTiers = append(st.summary.FailedTiers, FailedTier{
				Granularity: g,
				Err:         err,
			})

			r.Logger.ErrorContext(ctx, "tier failed",
				slog.Int("granularity", int(g)),
				slog.Int("objects", st.objects),
				slog.String("error", err.Error()),
			)

			continue
		}

		r.Logger.InfoContext(ctx, "tier finished",
			slog.Int("granularity", int(g)),
			slog.Duration("wall_time", time.Since(tierStart)),
		)
	}

	return nil
}

func (r *Runner) tablesTier(ctx context.Context, st *run, g bench.Granularity) error {
	if err := r.createTables(ctx, st, g); err != nil {
		return err
	}

	b := st.builder

	for rep := 0; rep < st.cfg.Repetitions; rep++ {
		stmt, err := b.AlterTable(b.Pick(st.objects), g, rep)
		if err = r.timed(ctx, st, stmt, err, g, rep); err != nil {
			return err
		}

		k := b.Pick(st.objects)

		stmt, err = b.CommentTable(k, g, rep)
		if err = r.timed(ctx, st, stmt, err, g, rep); err != nil {
			return err
		}

		if restore, ok := b.RestoreTable(k); ok {
			if err := r.untimed(ctx, restore); err != nil {
				return fmt.Errorf("restore t_%d: %w", k, err)
			}
		}

		stmt, err = b.ShowTables()
		if err = r.timed(ctx, st, stmt, err, g, rep); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) createTables(ctx context.Context, st *run, g bench.Granularity) error {
	b := st.builder

	if b.System().IsBatch() {
		stmts, err := b.CreateTableBatches(st.objects, int(g))
		if err != nil {
			return err
		}

		for _, stmt := range stmts {
			if err := r.timed(ctx, st, stmt, nil, g, 0); err != nil {
				return err
			}

			st.objects = min(st.objects+workload.BatchSize, int(g))
		}

		return nil
	}

	for st.objects < int(g) {
		stmt, err := b.CreateTable(st.objects)
		if err = r.timed(ctx, st, stmt, err, g, 0); err != nil {
			return err
		}

		st.objects++
	}

	return nil
}

func (r *Runner) functionsTier(ctx context.Context, st *run, g bench.Granularity) error {
	b := st.builder

	for st.objects < int(g) {
		stmt, err := b.CreateFunction(st.objects)
		if err = r.timed(ctx, st, stmt, err, g, 0); err != nil {
			return err
		}

		st.objects++
	}

	for rep := 0; rep < st.cfg.Repetitions; rep++ {
		stmt, err := b.AlterFunction(b.Pick(st.objects))
		if err = r.timed(ctx, st, stmt, err, g, rep); err != nil {
			return err
		}

		stmt, err = b.CommentFunction(b.Pick(st.objects), rep)
		if err = r.timed(ctx, st, stmt, err, g, rep); err != nil {
			return err
		}

		stmt, err = b.ShowFunctions()
		if err = r.timed(ctx, st, stmt, err, g, rep); err != nil {
			return err
		}
	}

	return nil
}

// timed executes stmt and records it. buildErr is the error returned while
// building stmt, checked here to keep call sites flat.
func (r *Runner) timed(
	ctx context.Context,
	st *run,
	stmt workload.Statement,
	buildErr error,
	g bench.Granularity,
	rep int,
) error {
	if buildErr != nil {
		return fmt.Errorf("build %s %s: %w", stmt.Command, stmt.Object, buildErr)
	}

	r.showProgress(stmt.Query)

	timing, err := Execute(ctx, r.Backend, stmt.Query)
	if err != nil {
		return fmt.Errorf("%s %s: %w", stmt.Command, stmt.Object, err)
	}

	sys := r.Backend.System()

	r.Metrics.RecordQuery(ctx, sys, stmt.Command, stmt.Object, timing.Elapsed)

	rec := recorder.Record{
		System:      sys,
		Command:     stmt.Command,
		Query:       stmt.Text(),
		Object:      stmt.Object,
		Granularity: g,
		Repetition:  rep,
		Runtime:     timing.Seconds(),
		Start:       timing.Start,
		End:         timing.End,
	}

	if err := r.Recorder.Record(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", errRecord, err)
	}

	st.summary.Records++

	r.Logger.DebugContext(ctx, "query timed",
		slog.String("command", string(stmt.Command)),
		slog.String("object", string(stmt.Object)),
		slog.Int("granularity", int(g)),
		slog.Int("repetition", rep),
		slog.Duration("elapsed", timing.Elapsed),
	)

	return nil
}

// untimed runs maintenance statements that are neither timed nor recorded.
func (r *Runner) untimed(ctx context.Context, queries ...string) error {
	for _, q := range queries {
		if err := r.Backend.Exec(ctx, q); err != nil {
			return fmt.Errorf("exec %q: %w", abbreviate(q), err)
		}
	}

	return nil
}

func (r *Runner) teardown(ctx context.Context, b *workload.Builder) error {
	if resetter, ok := r.Backend.(backend.Resetter); ok {
		return resetter.Reset(ctx)
	}

	return r.untimed(ctx, b.Teardown()...)
}

func (r *Runner) showProgress(query string) {
	if r.Progress == nil {
		return
	}

	fmt.Fprintf(r.Progress, "\r\033[K--running: %s", abbreviate(query))
}

func (r *Runner) endProgress() {
	if r.Progress != nil {
		fmt.Fprintln(r.Progress)
	}
}

func abbreviate(query string) string {
	q := strings.Join(strings.Fields(query), " ")
	if utf8.RuneCountInString(q) <= progressWidth {
		return q
	}

	return string([]rune(q)[:progressWidth])
}
