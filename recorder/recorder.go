// Package recorder persists experiment records in a local DuckDB file. Every
// system gets its own results table, named after the system, with the same
// column layout. Query text is bound as a parameter and stored verbatim.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/weiihann/ddlbench/bench"
)

// Record is one timed operation. The natural key is (System, Command,
// Object, Granularity, Repetition); it is not enforced.
type Record struct {
	System      bench.System
	Command     bench.Command
	Query       string
	Object      bench.Object
	Granularity bench.Granularity
	Repetition  int
	Runtime     float64 // seconds
	Start       time.Time
	End         time.Time
}

const resultsColumns = `(
	system_name VARCHAR,
	ddl_command VARCHAR,
	query_text VARCHAR,
	target_object VARCHAR,
	granularity INTEGER,
	repetition_nr INTEGER,
	query_runtime DOUBLE,
	start_time TIMESTAMP,
	end_time TIMESTAMP
)`

// Store is the results database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the results store at path and makes sure a results table
// exists for every known system, plus the runs table. Opening an existing
// store leaves its tables and rows untouched.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open results store %s: %w", path, err)
	}

	s := &Store{db: db, path: path}

	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, sys := range bench.KnownSystems() {
		stmt := "CREATE TABLE IF NOT EXISTS " + quoteIdent(string(sys)) + " " + resultsColumns
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create results table %s: %w", sys, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, createRuns); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}

	return nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string { return s.path }

// Record appends r to the results table of r.System. The system name is
// stored in its canonical spelling.
func (s *Store) Record(ctx context.Context, r Record) error {
	sys, err := bench.ParseSystem(string(r.System))
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}

	stmt := "INSERT INTO " + quoteIdent(string(sys)) +
		" VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"

	_, err = s.db.ExecContext(ctx, stmt,
		string(sys),
		string(r.Command),
		r.Query,
		string(r.Object),
		int(r.Granularity),
		r.Repetition,
		r.Runtime,
		r.Start.UTC(),
		r.End.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert %s record: %w", sys, err)
	}

	return nil
}

// Records returns every record of sys in insertion-time order.
func (s *Store) Records(ctx context.Context, sys bench.System) ([]Record, error) {
	return s.records(ctx, sys, "")
}

// RecordsSince returns the records of sys that started at or after since.
func (s *Store) RecordsSince(ctx context.Context, sys bench.System, since time.Time) ([]Record, error) {
	// TIMESTAMP columns keep microseconds.
	return s.records(ctx, sys, "WHERE start_time >= ?", since.UTC().Truncate(time.Microsecond))
}

func (s *Store) records(ctx context.Context, sys bench.System, where string, args ...any) ([]Record, error) {
	sys, err := bench.ParseSystem(string(sys))
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT system_name, ddl_command, query_text, target_object,
			granularity, repetition_nr, query_runtime, start_time, end_time
		FROM `+quoteIdent(string(sys))+` `+where+` ORDER BY start_time`, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s records: %w", sys, err)
	}
	defer rows.Close()

	var out []Record

	for rows.Next() {
		var (
			r                       Record
			system, command, object string
			granularity, repetition int
		)

		if err := rows.Scan(
			&system, &command, &r.Query, &object,
			&granularity, &repetition, &r.Runtime, &r.Start, &r.End,
		); err != nil {
			return nil, fmt.Errorf("scan %s record: %w", sys, err)
		}

		r.System = bench.System(system)
		r.Command = bench.Command(command)
		r.Object = bench.Object(object)
		r.Granularity = bench.Granularity(granularity)
		r.Repetition = repetition

		out = append(out, r)
	}

	return out, rows.Err()
}

// Export writes the results table of sys to a parquet file at path.
func (s *Store) Export(ctx context.Context, sys bench.System, path string) error {
	if _, err := bench.ParseSystem(string(sys)); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if path == "" {
		return errors.New("export: output path is required")
	}

	stmt := fmt.Sprintf("COPY (SELECT * FROM %s) TO %s (FORMAT PARQUET)",
		quoteIdent(string(sys)), quoteLiteral(path))

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("export %s to %s: %w", sys, path, err)
	}

	return nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
