package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weiihann/ddlbench/bench"
)

const createRuns = `CREATE TABLE IF NOT EXISTS runs (
	run_id VARCHAR,
	system_name VARCHAR,
	experiment VARCHAR,
	seed BIGINT,
	started_at TIMESTAMP,
	finished_at TIMESTAMP,
	status VARCHAR,
	failed_tiers INTEGER
)`

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Run describes one experiment run against one system.
type Run struct {
	ID          uuid.UUID
	System      bench.System
	Experiment  string
	Seed        int64
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Status      string
	FailedTiers int
}

// StartRun registers a new running run and returns it with a fresh ID.
func (s *Store) StartRun(
	ctx context.Context,
	sys bench.System,
	experiment string,
	seed int64,
	startedAt time.Time,
) (Run, error) {
	run := Run{
		ID:         uuid.New(),
		System:     sys,
		Experiment: experiment,
		Seed:       seed,
		StartedAt:  startedAt.UTC(),
		Status:     StatusRunning,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, system_name, experiment, seed, started_at, status, failed_tiers)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		run.ID.String(), string(sys), experiment, seed, run.StartedAt, run.Status,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	return run, nil
}

// FinishRun marks run as finished with the given status.
func (s *Store) FinishRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status string,
	failedTiers int,
) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, failed_tiers = ? WHERE run_id = ?`,
		finishedAt.UTC(), status, failedTiers, id.String(),
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: not found", id)
	}

	return nil
}

// Runs returns every run, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, system_name, experiment, seed, started_at, finished_at,
			status, failed_tiers
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run

	for rows.Next() {
		var (
			r        Run
			id, sys  string
			finished sql.NullTime
		)

		if err := rows.Scan(
			&id, &sys, &r.Experiment, &r.Seed, &r.StartedAt, &finished,
			&r.Status, &r.FailedTiers,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		r.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", id, err)
		}

		r.System = bench.System(sys)
		if finished.Valid {
			r.FinishedAt = finished.Time
		}

		out = append(out, r)
	}

	return out, rows.Err()
}
