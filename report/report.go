// Package report summarises recorded query latencies into comparison tables.
package report

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/weiihann/ddlbench/bench"
	"github.com/weiihann/ddlbench/recorder"
)

// Summary aggregates the latency of one command on one object kind at one
// granularity. Latencies are in seconds.
type Summary struct {
	System      bench.System      `json:"system"`
	Command     bench.Command     `json:"command"`
	Object      bench.Object      `json:"object"`
	Granularity bench.Granularity `json:"granularity"`
	Count       int               `json:"count"`
	Mean        float64           `json:"mean_s"`
	Stddev      float64           `json:"stddev_s"`
	Min         float64           `json:"min_s"`
	Max         float64           `json:"max_s"`
}

type groupKey struct {
	system      bench.System
	command     bench.Command
	object      bench.Object
	granularity bench.Granularity
}

var commandOrder = map[bench.Command]int{
	bench.Create:  0,
	bench.Alter:   1,
	bench.Comment: 2,
	bench.Show:    3,
	bench.Drop:    4,
}

// Summarize groups records by system, command, object and granularity.
func Summarize(records []recorder.Record) []Summary {
	groups := make(map[groupKey][]float64)

	for _, r := range records {
		k := groupKey{r.System, r.Command, r.Object, r.Granularity}
		groups[k] = append(groups[k], r.Runtime)
	}

	out := make([]Summary, 0, len(groups))

	for k, runtimes := range groups {
		s := Summary{
			System:      k.system,
			Command:     k.command,
			Object:      k.object,
			Granularity: k.granularity,
			Count:       len(runtimes),
			Min:         math.Inf(1),
			Max:         math.Inf(-1),
		}

		var sum float64
		for _, v := range runtimes {
			sum += v
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}

		s.Mean = sum / float64(len(runtimes))

		if len(runtimes) > 1 {
			var sq float64
			for _, v := range runtimes {
				sq += (v - s.Mean) * (v - s.Mean)
			}

			s.Stddev = math.Sqrt(sq / float64(len(runtimes)-1))
		}

		out = append(out, s)
	}

	slices.SortFunc(out, func(a, b Summary) int {
		return cmp.Or(
			cmp.Compare(a.System, b.System),
			cmp.Compare(a.Object, b.Object),
			cmp.Compare(commandOrder[a.Command], commandOrder[b.Command]),
			cmp.Compare(a.Granularity, b.Granularity),
		)
	})

	return out
}

// Generate writes a markdown table per system for the given summaries.
func Generate(w io.Writer, summaries []Summary) error {
	if len(summaries) == 0 {
		return fmt.Errorf("no results to report")
	}

	baseline := findBaselines(summaries)

	fmt.Fprintln(w, "## DDL Latency Results")

	var current bench.System

	for _, s := range summaries {
		if s.System != current {
			current = s.System

			fmt.Fprintln(w)
			fmt.Fprintf(w, "### %s\n", s.System)
			fmt.Fprintln(w)
			fmt.Fprintln(w, "| Command | Object | Granularity | Count "+
				"| Mean | Stddev | Min | Max | Slowdown |")
			fmt.Fprintln(w, "|---------|--------|-------------|-------"+
				"|------|--------|-----|-----|----------|")
		}

		slowdown := 1.0
		if base := baseline[baselineKey(s)]; base > 0 && s.Mean > 0 {
			slowdown = s.Mean / base
		}

		fmt.Fprintf(w, "| %s | %s | %d | %d | %s | %s | %s | %s | %.2fx |\n",
			s.Command,
			s.Object,
			s.Granularity,
			s.Count,
			formatSeconds(s.Mean),
			formatSeconds(s.Stddev),
			formatSeconds(s.Min),
			formatSeconds(s.Max),
			slowdown,
		)
	}

	return nil
}

// GenerateJSON writes summaries as JSON to w.
func GenerateJSON(w io.Writer, summaries []Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(summaries)
}

func baselineKey(s Summary) groupKey {
	return groupKey{system: s.System, command: s.Command, object: s.Object}
}

// findBaselines returns the mean latency at the smallest granularity of
// every system, command and object.
func findBaselines(summaries []Summary) map[groupKey]float64 {
	smallest := make(map[groupKey]bench.Granularity)
	out := make(map[groupKey]float64)

	for _, s := range summaries {
		k := baselineKey(s)

		if g, ok := smallest[k]; !ok || s.Granularity < g {
			smallest[k] = s.Granularity
			out[k] = s.Mean
		}
	}

	return out
}

func formatSeconds(s float64) string {
	switch {
	case s == 0:
		return "0"
	case s < 0.001:
		return fmt.Sprintf("%.0fµs", s*1e6)
	case s < 1:
		return fmt.Sprintf("%.2fms", s*1e3)
	default:
		return fmt.Sprintf("%.2fs", s)
	}
}
