package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ra56/loadgen/internal/metrics"
	"github.com/ra56/loadgen/internal/threshold"
)

// Report is everything printed at the end of a run.
type Report struct {
	Method       string             `json:"method" yaml:"method"`
	Target       string             `json:"target" yaml:"target"`
	Summary      Summary            `json:"summary" yaml:"summary"`
	Planned      int                `json:"planned" yaml:"planned"`
	Emitted      int                `json:"emitted" yaml:"emitted"`
	Skipped      int64              `json:"skipped" yaml:"skipped"`
	JoinTimedOut bool               `json:"join_timed_out,omitempty" yaml:"join_timed_out,omitempty"`
	Latency      metrics.Stats      `json:"latency" yaml:"latency"`
	Thresholds   []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// ThresholdsPassed reports whether every evaluated threshold held.
func (r Report) ThresholdsPassed() bool {
	for _, res := range r.Thresholds {
		if !res.Pass {
			return false
		}
	}
	return true
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	s := r.Summary
	fmt.Fprintln(w, "\n=== Result ===")
	if r.Target != "" {
		fmt.Fprintf(w, "Target:            %s %s\n", r.Method, r.Target)
	}
	fmt.Fprintf(w, "Duration:          %.2fs\n", s.Elapsed.Seconds())
	fmt.Fprintf(w, "Total:             %d\n", s.Total)
	fmt.Fprintf(w, "OK:                %d\n", s.Succeeded)
	fmt.Fprintf(w, "Errors:            %d\n", s.Failed)
	fmt.Fprintf(w, "Target RPS:        %d\n", s.TargetRPS)
	fmt.Fprintf(w, "Achieved RPS:      %.2f\n", s.AchievedRPS)
	fmt.Fprintf(w, "Verdict:           %s (%s)\n", s.Verdict, s.Verdict.Description())

	fmt.Fprintln(w, "\nSchedule:")
	fmt.Fprintf(w, "  Planned:         %d\n", r.Planned)
	fmt.Fprintf(w, "  Emitted:         %d\n", r.Emitted)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped:         %d\n", r.Skipped)
	}
	if r.JoinTimedOut {
		fmt.Fprintln(w, "  Workers:         did not stop within the join timeout")
	}

	l := r.Latency
	if l.Total > 0 {
		fmt.Fprintln(w, "\nLatency:")
		fmt.Fprintf(w, "  Min:             %s\n", l.MinLatency)
		fmt.Fprintf(w, "  Max:             %s\n", l.MaxLatency)
		fmt.Fprintf(w, "  Mean:            %s\n", l.MeanLatency)
		fmt.Fprintf(w, "  P50:             %s\n", l.P50Latency)
		fmt.Fprintf(w, "  P90:             %s\n", l.P90Latency)
		fmt.Fprintf(w, "  P95:             %s\n", l.P95Latency)
		fmt.Fprintf(w, "  P99:             %s\n", l.P99Latency)
	}

	if len(l.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, kind := range sortedByCount(l.Errors) {
			fmt.Fprintf(w, "  %s: %d\n", kind, l.Errors[kind])
		}
	}

	if rows := metrics.SortStatusBuckets(l.StatusCodes); len(rows) > 0 {
		fmt.Fprintln(w, "\nFailure Status:")
		for _, row := range rows {
			fmt.Fprintf(w, "  %s: %d\n", row.Code, row.Count)
		}
	}

	if len(r.Thresholds) > 0 {
		passed := 0
		for _, res := range r.Thresholds {
			if res.Pass {
				passed++
			}
		}
		fmt.Fprintf(w, "\nThresholds: %d/%d passed\n", passed, len(r.Thresholds))
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func sortedByCount(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] == counts[keys[j]] {
			return keys[i] < keys[j]
		}
		return counts[keys[i]] > counts[keys[j]]
	})
	return keys
}
