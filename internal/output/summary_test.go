package output

import (
	"testing"
	"time"

	"github.com/ra56/loadgen/internal/runner"
)

func TestSummarizeVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		snap    runner.StatsSnapshot
		elapsed time.Duration
		target  int
		want    Verdict
	}{
		{
			name:    "target met with no errors",
			snap:    runner.StatsSnapshot{Total: 20, Succeeded: 20},
			elapsed: 1950 * time.Millisecond,
			target:  10,
			want:    VerdictPass,
		},
		{
			name:    "exactly on target",
			snap:    runner.StatsSnapshot{Total: 20, Succeeded: 20},
			elapsed: 2 * time.Second,
			target:  10,
			want:    VerdictPass,
		},
		{
			name:    "slow server",
			snap:    runner.StatsSnapshot{Total: 20, Succeeded: 20},
			elapsed: 4 * time.Second,
			target:  10,
			want:    VerdictPartial,
		},
		{
			name:    "every request failed",
			snap:    runner.StatsSnapshot{Total: 20, Failed: 20},
			elapsed: 2 * time.Second,
			target:  10,
			want:    VerdictFail,
		},
		{
			name:    "single failure",
			snap:    runner.StatsSnapshot{Total: 100, Succeeded: 99, Failed: 1},
			elapsed: time.Second,
			target:  10,
			want:    VerdictFail,
		},
		{
			name:   "nothing scheduled",
			target: 0,
			want:   VerdictPass,
		},
		{
			name:   "zero elapsed with positive target",
			snap:   runner.StatsSnapshot{},
			target: 5,
			want:   VerdictPartial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.snap, tt.elapsed, tt.target)
			if got.Verdict != tt.want {
				t.Errorf("Verdict = %s, want %s (achieved %.2f)", got.Verdict, tt.want, got.AchievedRPS)
			}
		})
	}
}

func TestSummarizeComputesAchievedRate(t *testing.T) {
	s := Summarize(runner.StatsSnapshot{Total: 300, Succeeded: 290, Failed: 10}, 3*time.Second, 100)
	if s.AchievedRPS != 100 {
		t.Errorf("AchievedRPS = %v, want 100", s.AchievedRPS)
	}
	if s.Total != 300 || s.Succeeded != 290 || s.Failed != 10 {
		t.Errorf("counts = %d/%d/%d, want 300/290/10", s.Total, s.Succeeded, s.Failed)
	}
	if s.ElapsedSec != 3 {
		t.Errorf("ElapsedSec = %v, want 3", s.ElapsedSec)
	}
}

func TestSummarizeIsPure(t *testing.T) {
	snap := runner.StatsSnapshot{Total: 42, Succeeded: 40, Failed: 2}
	a := Summarize(snap, 1500*time.Millisecond, 30)
	b := Summarize(snap, 1500*time.Millisecond, 30)
	if a != b {
		t.Errorf("Summarize not repeatable: %+v vs %+v", a, b)
	}
}

func TestVerdictDescription(t *testing.T) {
	for _, v := range []Verdict{VerdictPass, VerdictPartial, VerdictFail} {
		if v.Description() == "" {
			t.Errorf("%s has no description", v)
		}
	}
	if Verdict("UNKNOWN").Description() != "" {
		t.Error("unknown verdict should have no description")
	}
}
