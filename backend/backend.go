// Package backend provides connections to the systems under test. Each
// Backend hides its client's call convention behind a single Exec so the
// timed executor can treat every system alike.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/weiihann/ddlbench/bench"
	"github.com/weiihann/ddlbench/config"
	"github.com/weiihann/ddlbench/opendict"
)

// Backend is one open connection to a system under test.
type Backend interface {
	// System returns the system the connection belongs to.
	System() bench.System

	// Exec runs query to completion. Statements that return rows have
	// their rows read and discarded.
	Exec(ctx context.Context, query string) error

	Close() error
}

// Resetter is implemented by backends that clear their state by recreating
// the underlying store instead of issuing DROP statements.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Open connects to sys using cfg. Secrets referenced by cfg are resolved
// through secrets.
func Open(
	ctx context.Context,
	sys bench.System,
	cfg *config.Config,
	secrets *config.SecretCache,
) (Backend, error) {
	switch {
	case sys == bench.SQLite:
		b, err := OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}

		return b, nil

	case sys == bench.DuckDB:
		return OpenDuckDB(cfg.DuckDB.Path)

	case sys == bench.Postgres:
		password, err := secrets.Get(ctx, cfg.Postgres.Password)
		if err != nil {
			return nil, fmt.Errorf("resolve postgres password: %w", err)
		}

		dsn := cfg.Postgres.DSN(password)

		switch cfg.Postgres.Driver {
		case "pq":
			return OpenPostgresSQL(ctx, dsn)
		default:
			pg, err := OpenPostgres(ctx, dsn)
			if err != nil {
				return nil, err
			}

			return pg, nil
		}

	case sys == bench.Snowflake:
		password, err := secrets.Get(ctx, cfg.Snowflake.Password)
		if err != nil {
			return nil, fmt.Errorf("resolve snowflake password: %w", err)
		}

		return OpenSnowflake(ctx, cfg.Snowflake, password)

	case sys.IsOpenDict():
		return openCatalog(ctx, sys, cfg, secrets)

	default:
		return nil, fmt.Errorf("open %s: %w", sys, bench.ErrUnknownSystem)
	}
}

func openCatalog(
	ctx context.Context,
	sys bench.System,
	cfg *config.Config,
	secrets *config.SecretCache,
) (Backend, error) {
	target, err := cfg.OpenDictTarget(sys)
	if err != nil {
		return nil, err
	}

	clientID, err := secrets.Get(ctx, cfg.OpenDict.ClientID)
	if err != nil {
		return nil, fmt.Errorf("resolve opendict client id: %w", err)
	}

	clientSecret, err := secrets.Get(ctx, cfg.OpenDict.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("resolve opendict client secret: %w", err)
	}

	client, err := opendict.New(opendict.Config{
		APIURL:       target.APIURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scope:        cfg.OpenDict.Scope,
		TokenPath:    cfg.OpenDict.TokenPath,
		QueryPath:    cfg.OpenDict.QueryPath,
		Timeout:      cfg.OpenDict.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return NewOpenDict(sys, client), nil
}

// Ping runs query n times against b and returns the mean latency.
func Ping(ctx context.Context, b Backend, query string, n int) (time.Duration, error) {
	if n <= 0 {
		return 0, fmt.Errorf("ping count %d must be positive", n)
	}

	var total time.Duration

	for i := 0; i < n; i++ {
		start := time.Now()
		if err := b.Exec(ctx, query); err != nil {
			return 0, fmt.Errorf("ping %s: %w", b.System(), err)
		}

		total += time.Since(start)
	}

	return total / time.Duration(n), nil
}
