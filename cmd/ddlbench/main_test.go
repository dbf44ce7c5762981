package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/weiihann/ddlbench/bench"
	"github.com/weiihann/ddlbench/recorder"
	"github.com/weiihann/ddlbench/report"
)

func TestSystemsCommand(t *testing.T) {
	root := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)), new(slog.LevelVar))

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"systems"})

	if err := root.Execute(); err != nil {
		t.Fatalf("systems failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"sqlite", "duckDB", "opendict_polaris_cloud_azure", "1  tables", "2  functions"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseSystems(t *testing.T) {
	systems, err := parseSystems([]string{"SQLite", "duckdb"})
	if err != nil {
		t.Fatalf("parseSystems failed: %v", err)
	}
	if len(systems) != 2 || systems[0] != bench.SQLite || systems[1] != bench.DuckDB {
		t.Errorf("systems = %v", systems)
	}

	if _, err := parseSystems(nil); err == nil {
		t.Error("expected error for no systems")
	}
	if _, err := parseSystems([]string{"oracle"}); err == nil {
		t.Error("expected error for unknown system")
	}
}

func TestLoadConfigFromFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")

	if err := os.WriteFile(path, []byte("results_db: "+filepath.Join(dir, "out.db")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(&globals{configPath: path})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.ResultsDB != filepath.Join(dir, "out.db") {
		t.Errorf("results_db = %q", cfg.ResultsDB)
	}
}

func TestRunSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	resultsDB := filepath.Join(dir, "results.db")

	conf := "results_db: " + resultsDB + "\nsqlite:\n  path: " + filepath.Join(dir, "sqlite.db") + "\n"
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := runBenchmark(context.Background(), io.Discard, logger, &globals{configPath: path}, runConfig{
		systems:       []string{"sqlite"},
		experiment:    "tables",
		granularities: []string{"1", "5"},
		repetitions:   1,
		seed:          7,
		outputJSON:    true,
	})
	if err != nil {
		t.Fatalf("runBenchmark failed: %v", err)
	}

	store, err := recorder.Open(context.Background(), resultsDB)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	records, err := store.Records(context.Background(), bench.SQLite)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	if want := 5 + 2*3; len(records) != want {
		t.Errorf("records = %d, want %d", len(records), want)
	}

	runs, err := store.Runs(context.Background())
	if err != nil {
		t.Fatalf("read runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != recorder.StatusComplete || runs[0].Seed != 7 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestRunReportsOnlyCurrentRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	resultsDB := filepath.Join(dir, "results.db")

	conf := "results_db: " + resultsDB + "\nsqlite:\n  path: " + filepath.Join(dir, "sqlite.db") + "\n"
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rc := runConfig{
		systems:       []string{"sqlite"},
		experiment:    "tables",
		granularities: []string{"1"},
		repetitions:   1,
		seed:          3,
		outputJSON:    true,
	}

	for i := range 2 {
		var buf bytes.Buffer
		if err := runBenchmark(context.Background(), &buf, logger, &globals{configPath: path}, rc); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}

		var summaries []report.Summary
		if err := json.Unmarshal(buf.Bytes(), &summaries); err != nil {
			t.Fatalf("run %d report is not valid JSON: %v\n%s", i, err, buf.String())
		}

		if len(summaries) != 4 {
			t.Fatalf("run %d summaries = %d, want 4", i, len(summaries))
		}
		for _, s := range summaries {
			if s.Count != 1 {
				t.Errorf("run %d: %s %s g=%d count = %d, want 1", i, s.Command, s.Object, s.Granularity, s.Count)
			}
		}
	}

	// The results store itself stays cumulative.
	store, err := recorder.Open(context.Background(), resultsDB)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	records, err := store.Records(context.Background(), bench.SQLite)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	if len(records) != 8 {
		t.Errorf("stored records = %d, want 8", len(records))
	}
}
