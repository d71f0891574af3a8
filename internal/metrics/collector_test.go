package metrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/ra56/loadgen/internal/metrics"
	"github.com/ra56/loadgen/internal/runner"
)

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	// Record deterministic latencies.
	c.RecordRequest(10*time.Millisecond, 200, nil)
	c.RecordRequest(20*time.Millisecond, 200, nil)
	c.RecordRequest(30*time.Millisecond, 200, nil)
	c.RecordRequest(40*time.Millisecond, 200, nil)
	c.RecordRequest(50*time.Millisecond, 200, nil)

	stats := c.Stats(0)

	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Successes != 5 {
		t.Errorf("expected successes 5, got %d", stats.Successes)
	}
	if stats.Failures != 0 {
		t.Errorf("expected failures 0, got %d", stats.Failures)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
	if stats.Errors != nil || stats.StatusCodes != nil {
		t.Errorf("expected no error breakdown, got %v / %v", stats.Errors, stats.StatusCodes)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	// 100 samples: 1ms, 2ms, ..., 100ms.
	for i := 1; i <= 100; i++ {
		c.RecordRequest(time.Duration(i)*time.Millisecond, 200, nil)
	}

	stats := c.Stats(0)

	if stats.P50Latency < 49*time.Millisecond || stats.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Latency)
	}
	if stats.P90Latency < 89*time.Millisecond || stats.P90Latency > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", stats.P90Latency)
	}
	if stats.P95Latency < 94*time.Millisecond || stats.P95Latency > 96*time.Millisecond {
		t.Errorf("expected P95 ~95ms, got %s", stats.P95Latency)
	}
	if stats.P99Latency < 98*time.Millisecond || stats.P99Latency > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Latency)
	}
}

func TestCollectorFailureBreakdown(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordRequest(5*time.Millisecond, 200, nil)
	c.RecordRequest(5*time.Millisecond, 503, &runner.HTTPError{StatusCode: 503})
	c.RecordRequest(5*time.Millisecond, 503, &runner.HTTPError{StatusCode: 503})
	c.RecordRequest(time.Second, 0, &url.Error{Op: "Get", URL: "http://x", Err: context.DeadlineExceeded})
	c.RecordRequest(time.Millisecond, 0, &url.Error{Op: "Get", URL: "http://x", Err: syscall.ECONNREFUSED})

	stats := c.Stats(time.Second)
	if stats.Failures != 4 || stats.Successes != 1 {
		t.Fatalf("successes/failures = %d/%d, want 1/4", stats.Successes, stats.Failures)
	}
	wantErrors := map[string]int{"HTTP 503": 2, "Timeout": 1, "Connection refused": 1}
	for k, v := range wantErrors {
		if stats.Errors[k] != v {
			t.Errorf("Errors[%q] = %d, want %d (all: %v)", k, stats.Errors[k], v, stats.Errors)
		}
	}
	wantCodes := map[string]int{"503": 2, "timeout": 1, "transport": 1}
	for k, v := range wantCodes {
		if stats.StatusCodes[k] != v {
			t.Errorf("StatusCodes[%q] = %d, want %d (all: %v)", k, stats.StatusCodes[k], v, stats.StatusCodes)
		}
	}
	if got := c.GetErrorBreakdown(); len(got) != 3 {
		t.Errorf("GetErrorBreakdown() = %v, want 3 kinds", got)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&runner.HTTPError{StatusCode: 404}, "HTTP 404"},
		{fmt.Errorf("wrapped: %w", &runner.HTTPError{StatusCode: 500}), "HTTP 500"},
		{context.DeadlineExceeded, "Timeout"},
		{&url.Error{Op: "Get", URL: "http://x", Err: syscall.ECONNRESET}, "Connection reset"},
		{errors.New("boom"), "Error String (errors)"},
	}
	for _, tt := range tests {
		if got := metrics.ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestJSONReportSchema(t *testing.T) {
	c := metrics.NewCollector()

	c.RecordRequest(15*time.Millisecond, 200, nil)
	c.RecordRequest(25*time.Millisecond, 200, nil)

	stats := c.Stats(100 * time.Millisecond)

	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	requiredFields := []string{"total", "successes", "failures", "min_latency_ms", "max_latency_ms", "mean_latency_ms", "p50_latency_ms", "p90_latency_ms", "p95_latency_ms", "p99_latency_ms", "duration_ms", "requests_per_sec"}
	for _, field := range requiredFields {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := metrics.NewCollector()

	var wg sync.WaitGroup
	workers := 10
	recordsPerWorker := 100

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < recordsPerWorker; j++ {
				var err error
				if j%10 == 0 {
					err = &runner.HTTPError{StatusCode: 500}
				}
				c.RecordRequest(time.Millisecond, 200, err)
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats(0)
	expected := workers * recordsPerWorker
	if stats.Total != int64(expected) {
		t.Errorf("expected total %d, got %d", expected, stats.Total)
	}
	if stats.Failures != int64(workers*10) {
		t.Errorf("expected failures %d, got %d", workers*10, stats.Failures)
	}
}
