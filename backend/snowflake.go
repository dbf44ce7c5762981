package backend

import (
	"context"
	"fmt"

	"github.com/snowflakedb/gosnowflake"

	"github.com/weiihann/ddlbench/bench"
	"github.com/weiihann/ddlbench/config"
)

// SnowflakeDSN builds a gosnowflake DSN from cfg.
func SnowflakeDSN(cfg config.SnowflakeConfig, password string) (string, error) {
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
	if err != nil {
		return "", fmt.Errorf("build snowflake dsn: %w", err)
	}

	return dsn, nil
}

// OpenSnowflake connects to Snowflake. Snowflake autocommits DDL.
func OpenSnowflake(ctx context.Context, cfg config.SnowflakeConfig, password string) (Backend, error) {
	dsn, err := SnowflakeDSN(cfg, password)
	if err != nil {
		return nil, err
	}

	b, err := openSQL(bench.Snowflake, "snowflake", dsn, false)
	if err != nil {
		return nil, err
	}

	if err := b.db.PingContext(ctx); err != nil {
		b.db.Close()
		return nil, fmt.Errorf("connect snowflake: %w", err)
	}

	return b, nil
}
