// Package promexport serves live run metrics in the Prometheus exposition
// format so a run can be watched from an existing dashboard.
package promexport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ra56/loadgen/internal/metrics"
	"github.com/ra56/loadgen/internal/runner"
)

const namespace = "loadgen"

// ProgressSource exposes live run counters. *runner.Runner satisfies it.
type ProgressSource interface {
	Progress() runner.Progress
}

// Exporter holds the run's collectors on a private registry.
type Exporter struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
	logger   *zap.Logger
	server   *http.Server
	addr     string
}

// New creates an exporter with request collectors registered.
func New(logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Exporter{
		registry: reg,
		logger:   logger,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Load requests completed, by outcome.",
		}, []string{"outcome"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Failed load requests, by error kind.",
		}, []string{"kind"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Load request latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Load requests currently awaiting a response.",
		}),
	}
}

// WatchRun registers gauges that read the scheduler and queue state from
// source on every scrape. Call it once per exporter.
func (e *Exporter) WatchRun(source ProgressSource) {
	factory := promauto.With(e.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "planned_requests",
		Help:      "Requests the schedule will emit if not cancelled.",
	}, func() float64 { return float64(source.Progress().Planned) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emitted_total",
		Help:      "Work tokens emitted by the scheduler.",
	}, func() float64 { return float64(source.Progress().Emitted) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skipped_total",
		Help:      "Work tokens acked without a request after cancellation.",
	}, func() float64 { return float64(source.Progress().Skipped) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_backlog",
		Help:      "Work tokens waiting in the queue.",
	}, func() float64 { return float64(source.Progress().Backlog) })
}

// RequestStarted marks a request in flight.
func (e *Exporter) RequestStarted() {
	e.inFlight.Inc()
}

// RequestFinished records the outcome of a request begun with RequestStarted.
func (e *Exporter) RequestFinished(latency time.Duration, err error) {
	e.inFlight.Dec()
	e.duration.Observe(latency.Seconds())
	if err == nil {
		e.requests.WithLabelValues("success").Inc()
		return
	}
	e.requests.WithLabelValues("failure").Inc()
	e.errors.WithLabelValues(metrics.ErrorKind(err)).Inc()
}

// Handler returns the /metrics handler for this exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// Serve listens on addr and serves /metrics in the background. It returns
// once the listener is bound, so a bad address fails fast.
func (e *Exporter) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	e.addr = ln.Addr().String()

	e.logger.Info("serving metrics", zap.String("addr", e.addr))
	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound listen address, empty before Serve.
func (e *Exporter) Addr() string {
	return e.addr
}

// Shutdown stops the metrics server if Serve was called.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}
