package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/ddlbench/bench"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func countTables(t *testing.T, s *Store) int {
	t.Helper()

	var n int
	require.NoError(t, s.db.QueryRow(
		`SELECT count(*) FROM information_schema.tables WHERE table_schema = 'main'`,
	).Scan(&n))

	return n
}

func TestOpenCreatesTablePerSystem(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "results.db"))

	for _, sys := range bench.KnownSystems() {
		records, err := s.Records(context.Background(), sys)
		require.NoError(t, err, sys)
		assert.Empty(t, records, sys)
	}

	assert.Equal(t, len(bench.KnownSystems())+1, countTables(t, s))
}

func TestOpenTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")

	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Record(ctx, Record{
		System: bench.DuckDB, Command: bench.Create, Object: bench.Table,
		Query: "CREATE TABLE t_0 (id INTEGER PRIMARY KEY, value TEXT);",
		Start: time.Now(), End: time.Now(),
	}))
	require.NoError(t, first.Close())

	second := openStore(t, path)

	assert.Equal(t, len(bench.KnownSystems())+1, countTables(t, second))

	records, err := second.Records(ctx, bench.DuckDB)
	require.NoError(t, err)
	assert.Len(t, records, 1, "existing rows must survive reopening")
}

func TestRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "results.db"))

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(10 * time.Millisecond)

	want := Record{
		System:      bench.SQLite,
		Command:     bench.Create,
		Query:       "CREATE TABLE t_0 ...",
		Object:      bench.Table,
		Granularity: 1,
		Repetition:  0,
		Runtime:     0.01,
		Start:       t0,
		End:         t1,
	}
	require.NoError(t, s.Record(ctx, want))

	got, err := s.Records(ctx, bench.SQLite)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, want.System, got[0].System)
	assert.Equal(t, want.Command, got[0].Command)
	assert.Equal(t, want.Query, got[0].Query)
	assert.Equal(t, want.Object, got[0].Object)
	assert.Equal(t, want.Granularity, got[0].Granularity)
	assert.Equal(t, want.Repetition, got[0].Repetition)
	assert.InDelta(t, want.Runtime, got[0].Runtime, 1e-12)
	assert.True(t, t0.Equal(got[0].Start), "start = %v, want %v", got[0].Start, t0)
	assert.True(t, t1.Equal(got[0].End), "end = %v, want %v", got[0].End, t1)

	others, err := s.Records(ctx, bench.Postgres)
	require.NoError(t, err)
	assert.Empty(t, others, "records land only in their system's table")
}

func TestRecordStoresQueryVerbatim(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "results.db"))

	query := "CREATE OPEN table t_1\nPROPS {\"comment\": \"it's \\\"quoted\\\"\"}; DROP TABLE x; --"

	require.NoError(t, s.Record(ctx, Record{
		System: bench.OpenDictPolarisFile, Command: bench.Create, Object: bench.Table,
		Query: query, Granularity: 10, Repetition: 2,
		Start: time.Now(), End: time.Now(),
	}))

	got, err := s.Records(ctx, bench.OpenDictPolarisFile)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, query, got[0].Query)
	assert.Equal(t, bench.Granularity(10), got[0].Granularity)
	assert.Equal(t, 2, got[0].Repetition)
}

func TestRecordUnknownSystem(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "results.db"))

	err := s.Record(context.Background(), Record{System: "oracle"})
	assert.ErrorIs(t, err, bench.ErrUnknownSystem)
}

func TestRecordCanonicalSystemName(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "results.db"))

	require.NoError(t, s.Record(ctx, Record{
		System: "SQLITE", Command: bench.Show, Object: bench.Table,
		Query: "SELECT name FROM sqlite_master WHERE type='table';",
		Start: time.Now(), End: time.Now(),
	}))

	got, err := s.Records(ctx, bench.SQLite)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, bench.SQLite, got[0].System)
}

func TestRecordsSince(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "results.db"))

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, start := range []time.Time{t0, t0.Add(time.Second), t0.Add(2 * time.Second)} {
		require.NoError(t, s.Record(ctx, Record{
			System: bench.Postgres, Command: bench.Create, Object: bench.Table,
			Query: fmt.Sprintf("CREATE TABLE t_%d (id INTEGER PRIMARY KEY, value TEXT);", i),
			Start: start, End: start.Add(time.Millisecond),
		}))
	}

	got, err := s.RecordsSince(ctx, bench.Postgres, t0.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, got, 2, "a record starting exactly at since is included")
	assert.Contains(t, got[0].Query, "t_1")
	assert.Contains(t, got[1].Query, "t_2")

	all, err := s.Records(ctx, bench.Postgres)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Sub-microsecond since values still match rows stored in the same microsecond.
	got, err = s.RecordsSince(ctx, bench.Postgres, t0.Add(2*time.Second+500*time.Nanosecond))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecordsNoDedup(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "results.db"))

	r := Record{
		System: bench.Snowflake, Command: bench.Show, Object: bench.Table,
		Query: "show tables limit 10000", Granularity: 100,
		Start: time.Now(), End: time.Now(),
	}
	require.NoError(t, s.Record(ctx, r))
	require.NoError(t, s.Record(ctx, r))

	got, err := s.Records(ctx, bench.Snowflake)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestExportParquet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, filepath.Join(dir, "results.db"))

	for rep := 0; rep < 3; rep++ {
		require.NoError(t, s.Record(ctx, Record{
			System: bench.DuckDB, Command: bench.Alter, Object: bench.Table,
			Query: "ALTER TABLE t_0 ADD COLUMN x TEXT;", Granularity: 1, Repetition: rep,
			Start: time.Now(), End: time.Now(),
		}))
	}

	out := filepath.Join(dir, "duck's results.parquet")
	require.NoError(t, s.Export(ctx, bench.DuckDB, out))

	_, err := os.Stat(out)
	require.NoError(t, err)

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT count(*) FROM read_parquet(%s)", quoteLiteral(out)),
	).Scan(&n))
	assert.Equal(t, 3, n)

	assert.Error(t, s.Export(ctx, bench.DuckDB, ""))
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "results.db"))

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	run, err := s.StartRun(ctx, bench.Postgres, "tables", 42, start)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.True(t, runs[0].FinishedAt.IsZero())

	require.NoError(t, s.FinishRun(ctx, run.ID, start.Add(time.Minute), StatusComplete, 1))

	runs, err = s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusComplete, runs[0].Status)
	assert.Equal(t, 1, runs[0].FailedTiers)
	assert.Equal(t, int64(42), runs[0].Seed)
	assert.Equal(t, "tables", runs[0].Experiment)
	assert.True(t, start.Add(time.Minute).Equal(runs[0].FinishedAt))

	// The results tables keep their layout.
	var cols int
	require.NoError(t, s.db.QueryRow(
		`SELECT count(*) FROM information_schema.columns WHERE table_name = 'postgres'`,
	).Scan(&cols))
	assert.Equal(t, 9, cols)
}
