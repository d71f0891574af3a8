package output

import (
	"time"

	"github.com/ra56/loadgen/internal/runner"
)

// Verdict classifies a finished run. It is advisory and never changes the
// exit code unless strict mode is on.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictPartial Verdict = "PARTIAL"
	VerdictFail    Verdict = "FAIL"
)

// Description is the human-readable explanation printed next to the verdict.
func (v Verdict) Description() string {
	switch v {
	case VerdictPass:
		return "target rate sustained with no errors"
	case VerdictPartial:
		return "no errors, but throughput below target"
	case VerdictFail:
		return "errors observed"
	default:
		return ""
	}
}

// Summary is the headline result of a run.
type Summary struct {
	Elapsed     time.Duration `json:"-" yaml:"-"`
	ElapsedSec  float64       `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Total       int64         `json:"total" yaml:"total"`
	Succeeded   int64         `json:"succeeded" yaml:"succeeded"`
	Failed      int64         `json:"failed" yaml:"failed"`
	TargetRPS   int           `json:"target_rps" yaml:"target_rps"`
	AchievedRPS float64       `json:"achieved_rps" yaml:"achieved_rps"`
	Verdict     Verdict       `json:"verdict" yaml:"verdict"`
}

// Summarize derives the summary from frozen counters. It has no side effects,
// so calling it twice on the same input yields the same Summary.
func Summarize(snap runner.StatsSnapshot, elapsed time.Duration, targetRate int) Summary {
	s := Summary{
		Elapsed:    elapsed,
		ElapsedSec: elapsed.Seconds(),
		Total:      snap.Total,
		Succeeded:  snap.Succeeded,
		Failed:     snap.Failed,
		TargetRPS:  targetRate,
	}
	if elapsed > 0 {
		s.AchievedRPS = float64(snap.Total) / elapsed.Seconds()
	}
	s.Verdict = classify(snap.Failed, s.AchievedRPS, targetRate)
	return s
}

func classify(failed int64, achieved float64, target int) Verdict {
	switch {
	case failed > 0:
		return VerdictFail
	case achieved >= float64(target):
		return VerdictPass
	default:
		return VerdictPartial
	}
}
