// Package bench defines the vocabulary shared by every part of the DDL
// benchmark: the systems under test, the DDL commands issued against them,
// the kinds of objects they target and the granularity tiers.
package bench

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownSystem is returned when a system name cannot be resolved.
var ErrUnknownSystem = errors.New("unknown system")

// System identifies a database or catalog service under test. Its value is
// also the name of the system's results table.
type System string

const (
	SQLite                     System = "sqlite"
	Postgres                   System = "postgres"
	DuckDB                     System = "duckDB"
	Snowflake                  System = "snowflake"
	OpenDictPolarisFile        System = "opendict_polaris_file"
	OpenDictPolarisFileBatch   System = "opendict_polaris_file_batch"
	OpenDictPolarisFileCached  System = "opendict_polaris_file_cache"
	OpenDictPolarisCachedBatch System = "opendict_polaris_file_cache_batch"
	OpenDictPolarisAzure       System = "opendict_polaris_cloud_azure"
)

// KnownSystems returns every supported system in a stable order.
func KnownSystems() []System {
	return []System{
		SQLite, Postgres, DuckDB, Snowflake,
		OpenDictPolarisFile, OpenDictPolarisFileBatch,
		OpenDictPolarisFileCached, OpenDictPolarisCachedBatch,
		OpenDictPolarisAzure,
	}
}

// ParseSystem resolves a system by name, ignoring case.
func ParseSystem(name string) (System, error) {
	for _, s := range KnownSystems() {
		if strings.EqualFold(string(s), name) {
			return s, nil
		}
	}

	return "", fmt.Errorf("%w %q", ErrUnknownSystem, name)
}

// IsOpenDict reports whether the system is served by the open dictionary
// catalog rather than a SQL engine.
func (s System) IsOpenDict() bool {
	return strings.HasPrefix(string(s), "opendict_")
}

// IsBatch reports whether objects are created with batch statements.
func (s System) IsBatch() bool {
	return s == OpenDictPolarisFileBatch || s == OpenDictPolarisCachedBatch
}

func (s System) String() string { return string(s) }

// Command is a DDL command kind.
type Command string

const (
	Create  Command = "CREATE"
	Drop    Command = "DROP"
	Alter   Command = "ALTER"
	Comment Command = "COMMENT"
	Show    Command = "SHOW"
)

// Object is the kind of catalog object a statement targets.
type Object string

const (
	Table    Object = "table"
	Index    Object = "index"
	View     Object = "view"
	Function Object = "function"
	Sequence Object = "sequence"
	Database Object = "database"
)

// Granularity is the number of objects present in an experiment tier.
type Granularity int

// DefaultGranularities returns the standard tiers, smallest first.
func DefaultGranularities() []Granularity {
	return []Granularity{1, 10, 100, 1_000, 10_000, 100_000}
}

// ParseGranularities parses values such as "1,10,100" into tiers. The
// result must be strictly increasing.
func ParseGranularities(values []string) ([]Granularity, error) {
	out := make([]Granularity, 0, len(values))

	for _, v := range values {
		n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(v), "_", ""))
		if err != nil {
			return nil, fmt.Errorf("parse granularity %q: %w", v, err)
		}

		if n <= 0 {
			return nil, fmt.Errorf("granularity %d must be positive", n)
		}

		if len(out) > 0 && Granularity(n) <= out[len(out)-1] {
			return nil, fmt.Errorf(
				"granularities must be strictly increasing, got %d after %d",
				n, out[len(out)-1],
			)
		}

		out = append(out, Granularity(n))
	}

	return out, nil
}
