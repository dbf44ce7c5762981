package harness

import (
	"fmt"
	"strings"

	"github.com/weiihann/ddlbench/bench"
	"github.com/weiihann/ddlbench/workload"
)

// Experiment names a workload shape run against a system.
type Experiment string

const (
	// Tables creates tables tier by tier, then alters, comments on and
	// lists them.
	Tables Experiment = "tables"

	// Functions does the same with user defined functions.
	Functions Experiment = "functions"
)

// KnownExperiments returns the supported experiments in numbered order.
func KnownExperiments() []Experiment {
	return []Experiment{Tables, Functions}
}

// ParseExperiment resolves an experiment by name or by its number, starting
// at 1.
func ParseExperiment(name string) (Experiment, error) {
	for i, e := range KnownExperiments() {
		if strings.EqualFold(name, string(e)) || name == fmt.Sprint(i+1) {
			return e, nil
		}
	}

	return "", fmt.Errorf("unknown experiment %q", name)
}

// Object returns the kind of object the experiment targets.
func (e Experiment) Object() bench.Object {
	if e == Functions {
		return bench.Function
	}

	return bench.Table
}

// Supported reports whether the experiment can run on the builder's system.
func (e Experiment) Supported(b *workload.Builder) error {
	if e != Functions {
		return nil
	}

	if _, err := b.CreateFunction(0); err != nil {
		return fmt.Errorf("%s experiment: %w", e, err)
	}

	return nil
}
