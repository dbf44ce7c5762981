// Package workload builds the DDL statements issued during an experiment.
// Each system speaks its own dialect: SQL engines get plain DDL, the open
// dictionary catalog gets its DEFINE/CREATE/ALTER/SHOW OPEN language. Target
// objects for point operations are drawn from a seeded RNG so a run can be
// reproduced.
package workload

import (
	"encoding/json"
	"errors"
	"fmt"
	mrand "math/rand"

	"github.com/weiihann/ddlbench/bench"
)

// BatchSize is the maximum number of objects in one batch create statement.
const BatchSize = 10_000

// ErrUnsupported is returned for statements a system cannot express, such as
// user defined functions on SQLite.
var ErrUnsupported = errors.New("statement not supported")

// Statement is a single DDL statement ready to execute.
type Statement struct {
	Command bench.Command
	Object  bench.Object
	Query   string

	// Label replaces Query in the results store when set. Batch statements
	// carry thousands of objects and are recorded abbreviated.
	Label string
}

// Text returns the query text to record.
func (s Statement) Text() string {
	if s.Label != "" {
		return s.Label
	}

	return s.Query
}

// Config controls statement generation.
type Config struct {
	System bench.System
	Seed   int64
}

// Builder produces statements for one system.
type Builder struct {
	system bench.System
	rng    *mrand.Rand
}

// NewBuilder creates a Builder from the given Config.
func NewBuilder(cfg Config) *Builder {
	return &Builder{
		system: cfg.System,
		rng:    mrand.New(mrand.NewSource(cfg.Seed)),
	}
}

// System returns the system statements are built for.
func (b *Builder) System() bench.System { return b.system }

// Pick returns a random object index in [0, n).
func (b *Builder) Pick(n int) int {
	if n <= 1 {
		return 0
	}

	return b.rng.Intn(n)
}

// Setup returns the untimed statements that prepare the system before
// objects of the given kind are created.
func (b *Builder) Setup(obj bench.Object) []string {
	switch {
	case b.system == bench.DuckDB:
		return []string{
			"CREATE SCHEMA IF NOT EXISTS experiment;",
			"USE experiment;",
		}
	case b.system == bench.Snowflake:
		return []string{
			"CREATE OR REPLACE SCHEMA metadata_experiment;",
			"USE SCHEMA metadata_experiment;",
		}
	case b.system.IsOpenDict():
		switch obj {
		case bench.Table:
			return []string{"DEFINE OPEN table\nPROPS " + tableTypeProps}
		case bench.Function:
			return []string{"DEFINE OPEN function\nPROPS " + functionTypeProps}
		}
	}

	return nil
}

// Teardown returns the untimed statements that drop everything an
// experiment created. SQLite is reset by removing its database file and the
// catalog keeps its objects, so both return nothing.
func (b *Builder) Teardown() []string {
	switch b.system {
	case bench.DuckDB:
		return []string{"DROP SCHEMA IF EXISTS experiment CASCADE;"}
	case bench.Postgres:
		return []string{
			"DROP SCHEMA public CASCADE;",
			"CREATE SCHEMA public;",
		}
	case bench.Snowflake:
		return []string{
			"USE SCHEMA public;",
			"DROP SCHEMA IF EXISTS metadata_experiment CASCADE;",
		}
	default:
		return nil
	}
}

// Ping returns the cheapest round trip statement for latency probes.
func (b *Builder) Ping() string {
	if b.system.IsOpenDict() {
		return "SHOW OPEN table"
	}

	return "SELECT 1;"
}

func tableName(i int) string    { return fmt.Sprintf("t_%d", i) }
func functionName(i int) string { return fmt.Sprintf("f_%d", i) }

func marshalProps(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal props: %w", err)
	}

	return string(data), nil
}
