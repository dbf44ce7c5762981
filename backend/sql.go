package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/weiihann/ddlbench/bench"
)

// sqlBackend drives any database/sql driver.
type sqlBackend struct {
	system bench.System
	db     *sql.DB

	// commit wraps every statement in its own transaction.
	commit bool
}

func openSQL(sys bench.System, driver, dsn string, commit bool) (*sqlBackend, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", sys, err)
	}

	// USE and search_path are per session, so every statement must reuse
	// the same connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &sqlBackend{system: sys, db: db, commit: commit}, nil
}

func (b *sqlBackend) System() bench.System { return b.system }

func (b *sqlBackend) Exec(ctx context.Context, query string) error {
	if !b.commit {
		return run(ctx, b.db, query)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if err := run(ctx, tx, query); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (b *sqlBackend) Close() error {
	return b.db.Close()
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// run executes query, draining the result set of row-returning statements
// so their cost is part of the measurement.
func run(ctx context.Context, conn execQueryer, query string) error {
	if !returnsRows(query) {
		_, err := conn.ExecContext(ctx, query)
		return err
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
	}

	return rows.Err()
}

func returnsRows(query string) bool {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToUpper(fields[0]) {
	case "SELECT", "SHOW", "WITH", "DESCRIBE":
		return true
	default:
		return false
	}
}

// SQLite is a file-backed SQLite database. Statements are committed one by
// one.
type SQLite struct {
	*sqlBackend
	path string
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(path string) (*SQLite, error) {
	b, err := openSQL(bench.SQLite, "sqlite3", path, true)
	if err != nil {
		return nil, err
	}

	return &SQLite{sqlBackend: b, path: path}, nil
}

// Reset deletes the database file and reopens an empty one.
func (s *SQLite) Reset(_ context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", s.path, err)
	}

	b, err := openSQL(bench.SQLite, "sqlite3", s.path, true)
	if err != nil {
		return err
	}

	s.sqlBackend = b

	return nil
}

// OpenDuckDB opens (creating if needed) the DuckDB database at path. DuckDB
// autocommits each statement.
func OpenDuckDB(path string) (Backend, error) {
	b, err := openSQL(bench.DuckDB, "duckdb", path, false)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// OpenPostgresSQL connects to PostgreSQL through lib/pq and database/sql.
func OpenPostgresSQL(ctx context.Context, dsn string) (Backend, error) {
	b, err := openSQL(bench.Postgres, "postgres", dsn, true)
	if err != nil {
		return nil, err
	}

	if err := b.db.PingContext(ctx); err != nil {
		b.db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return b, nil
}
