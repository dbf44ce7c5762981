package backend

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/weiihann/ddlbench/bench"
)

// Postgres is a native pgx connection. Every statement runs in its own
// transaction and is committed before Exec returns.
type Postgres struct {
	conn *pgx.Conn
}

// OpenPostgres connects to PostgreSQL with pgx.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Postgres{conn: conn}, nil
}

func (p *Postgres) System() bench.System { return bench.Postgres }

func (p *Postgres) Exec(ctx context.Context, query string) error {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	if _, err := tx.Exec(ctx, query); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (p *Postgres) Close() error {
	return p.conn.Close(context.Background())
}
