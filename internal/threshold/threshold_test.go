package threshold

import (
	"testing"
	"time"

	"github.com/ra56/loadgen/internal/metrics"
)

func TestParse(t *testing.T) {
	valid := []struct {
		input string
		want  Threshold
	}{
		{"http_req_duration:p95 < 500", Threshold{"http_req_duration", "p95", "<", 500, "http_req_duration:p95 < 500"}},
		{"http_req_failed:rate < 0.01", Threshold{"http_req_failed", "rate", "<", 0.01, "http_req_failed:rate < 0.01"}},
		{"http_req_duration:p99 <= 1000", Threshold{"http_req_duration", "p99", "<=", 1000, "http_req_duration:p99 <= 1000"}},
		{"http_requests:rate>100", Threshold{"http_requests", "rate", ">", 100, "http_requests:rate>100"}},
		{"  http_req_duration:mean < 200  ", Threshold{"http_req_duration", "mean", "<", 200, "http_req_duration:mean < 200"}},
	}
	for _, tt := range valid {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}

	invalid := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"missing operator", "http_req_duration:p95 500"},
		{"unknown metric", "invalid_metric:p95 < 500"},
		{"unknown aggregate", "http_req_duration:p85 < 500"},
		{"aggregate not valid for metric", "http_req_failed:p95 < 1"},
		{"bad operator", "http_req_duration:p95 << 500"},
		{"not a number", "http_req_duration:p95 < abc"},
		{"malformed number", "http_req_duration:p95 < 1.2.3"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) expected error", tt.input)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{
			name: "multiple valid thresholds",
			input: []string{
				"http_req_duration:p95 < 500",
				"http_req_failed:rate < 0.01",
				"http_requests:rate > 100",
			},
			wantCount: 3,
			wantError: false,
		},
		{
			name:      "empty slice",
			input:     []string{},
			wantCount: 0,
			wantError: false,
		},
		{
			name: "one valid, one invalid",
			input: []string{
				"http_req_duration:p95 < 500",
				"invalid threshold",
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMultiple(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseMultiple() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && len(got) != tt.wantCount {
				t.Errorf("ParseMultiple() returned %d thresholds, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestEvaluator(t *testing.T) {
	// Create sample stats
	stats := metrics.Stats{
		Total:          1000,
		Successes:      980,
		Failures:       20,
		MinLatency:     10 * time.Millisecond,
		MaxLatency:     500 * time.Millisecond,
		MeanLatency:    100 * time.Millisecond,
		P50Latency:     80 * time.Millisecond,
		P90Latency:     200 * time.Millisecond,
		P95Latency:     300 * time.Millisecond,
		P99Latency:     400 * time.Millisecond,
		MinLatencyMs:   10,
		MaxLatencyMs:   500,
		MeanLatencyMs:  100,
		P50LatencyMs:   80,
		P90LatencyMs:   200,
		P95LatencyMs:   300,
		P99LatencyMs:   400,
		RequestsPerSec: 100,
		Duration:       10 * time.Second,
	}

	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name: "all thresholds pass",
			thresholds: []string{
				"http_req_duration:p99 < 500",
				"http_req_failed:rate < 0.05",
				"http_requests:rate > 50",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "some thresholds fail",
			thresholds: []string{
				"http_req_duration:p99 < 300",
				"http_req_failed:rate < 0.01",
				"http_requests:rate > 50",
			},
			wantPass: []bool{false, false, true},
		},
		{
			name: "latency percentiles",
			thresholds: []string{
				"http_req_duration:p50 < 100",
				"http_req_duration:p90 < 250",
				"http_req_duration:p99 < 450",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "avg and max latency",
			thresholds: []string{
				"http_req_duration:avg < 150",
				"http_req_duration:max < 600",
				"http_req_duration:min > 5",
			},
			wantPass: []bool{true, true, true},
		},
		{
			name: "failure count",
			thresholds: []string{
				"http_req_failed:count < 50",
			},
			wantPass: []bool{true},
		},
		{
			name: "request count",
			thresholds: []string{
				"http_requests:count > 900",
			},
			wantPass: []bool{true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}

			evaluator := NewEvaluator(thresholds)
			results := evaluator.Evaluate(stats)

			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}

			for i, result := range results {
				if result.Pass != tt.wantPass[i] {
					t.Errorf("threshold[%d] %q: got pass=%v, want %v (actual=%.2f)",
						i, result.Threshold.Raw, result.Pass, tt.wantPass[i], result.Actual)
				}
			}
		})
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than false", 100, "<", 50, false},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal true", 50, "<=", 100, true},
		{"less than or equal equal", 100, "<=", 100, true},
		{"less than or equal false", 150, "<=", 100, false},
		{"greater than true", 150, ">", 100, true},
		{"greater than false", 50, ">", 100, false},
		{"greater than equal", 100, ">", 100, false},
		{"greater than or equal true", 150, ">=", 100, true},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"greater than or equal false", 50, ">=", 100, false},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}

func TestExtractMetricValue(t *testing.T) {
	stats := metrics.Stats{
		Total:          1000,
		Successes:      950,
		Failures:       50,
		MinLatencyMs:   10.5,
		MaxLatencyMs:   500.25,
		MeanLatencyMs:  100.75,
		P50LatencyMs:   80.5,
		P90LatencyMs:   200.25,
		P95LatencyMs:   300.5,
		P99LatencyMs:   400.5,
		RequestsPerSec: 123.45,
	}

	tests := []struct {
		name      string
		threshold Threshold
		want      float64
		wantError bool
	}{
		{
			name:      "http_req_duration p50",
			threshold: Threshold{Metric: "http_req_duration", Aggregate: "p50"},
			want:      80.5,
		},
		{
			name:      "http_req_duration p90",
			threshold: Threshold{Metric: "http_req_duration", Aggregate: "p90"},
			want:      200.25,
		},
		{
			name:      "http_req_duration p95",
			threshold: Threshold{Metric: "http_req_duration", Aggregate: "p95"},
			want:      300.5,
		},
		{
			name:      "http_req_duration p99",
			threshold: Threshold{Metric: "http_req_duration", Aggregate: "p99"},
			want:      400.5,
		},
		{
			name:      "http_req_duration avg",
			threshold: Threshold{Metric: "http_req_duration", Aggregate: "avg"},
			want:      100.75,
		},
		{
			name:      "http_req_duration min",
			threshold: Threshold{Metric: "http_req_duration", Aggregate: "min"},
			want:      10.5,
		},
		{
			name:      "http_req_duration max",
			threshold: Threshold{Metric: "http_req_duration", Aggregate: "max"},
			want:      500.25,
		},
		{
			name:      "http_req_failed rate",
			threshold: Threshold{Metric: "http_req_failed", Aggregate: "rate"},
			want:      0.05,
		},
		{
			name:      "http_req_failed count",
			threshold: Threshold{Metric: "http_req_failed", Aggregate: "count"},
			want:      50,
		},
		{
			name:      "http_requests rate",
			threshold: Threshold{Metric: "http_requests", Aggregate: "rate"},
			want:      123.45,
		},
		{
			name:      "http_requests count",
			threshold: Threshold{Metric: "http_requests", Aggregate: "count"},
			want:      1000,
		},
		{
			name:      "unsupported metric",
			threshold: Threshold{Metric: "invalid_metric", Aggregate: "p95"},
			wantError: true,
		},
		{
			name:      "unsupported aggregate for metric",
			threshold: Threshold{Metric: "http_req_failed", Aggregate: "p95"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractMetricValue(tt.threshold, stats)
			if (err != nil) != tt.wantError {
				t.Errorf("extractMetricValue() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("extractMetricValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluatorWithoutThresholds(t *testing.T) {
	if results := NewEvaluator(nil).Evaluate(metrics.Stats{Total: 10}); results != nil {
		t.Errorf("Evaluate() = %v, want nil", results)
	}
}

func TestEvaluatorReportsExtractionErrors(t *testing.T) {
	bad := Threshold{Metric: "http_req_failed", Aggregate: "p95", Operator: "<", Value: 1, Raw: "http_req_failed:p95 < 1"}
	results := NewEvaluator([]Threshold{bad}).Evaluate(metrics.Stats{})
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Pass {
		t.Error("threshold with an unsupported aggregate must not pass")
	}
	if results[0].Message == "" {
		t.Error("expected an error message")
	}
}

func TestFailureRateWithNoRequests(t *testing.T) {
	th, err := Parse("http_req_failed:rate < 0.01")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	results := NewEvaluator([]Threshold{th}).Evaluate(metrics.Stats{})
	if !results[0].Pass || results[0].Actual != 0 {
		t.Errorf("result = %+v, want pass with actual 0", results[0])
	}
}
