// Package harness times DDL statements against a system under test and
// drives the experiments that produce results.
package harness

import (
	"time"

	"github.com/weiihann/ddlbench/bench"
)

// Timing holds the wall-clock measurement of one statement.
type Timing struct {
	Start   time.Time
	End     time.Time
	Elapsed time.Duration
}

// Seconds returns Elapsed in seconds.
func (t Timing) Seconds() float64 {
	return t.Elapsed.Seconds()
}

// Summary describes what a run produced.
type Summary struct {
	Records     int
	Objects     int
	FailedTiers []FailedTier
}

// FailedTier records a tier that was abandoned after an error.
type FailedTier struct {
	Granularity bench.Granularity
	Err         error
}
