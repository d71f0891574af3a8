package main

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ra56/loadgen/internal/httpclient"
	"github.com/ra56/loadgen/internal/metrics"
	"github.com/ra56/loadgen/internal/promexport"
	"github.com/ra56/loadgen/internal/runner"
	"github.com/ra56/loadgen/internal/tracing"
)

const maxLoggedBodyBytes = 1024

// httpRequester implements runner.Requester for the load endpoint. Every
// call is one request: no retries, no redirects followed beyond the client's
// defaults.
type httpRequester struct {
	client    *http.Client
	builder   *httpclient.RequestBuilder
	collector *metrics.Collector
	exporter  *promexport.Exporter
	tracer    trace.Tracer
}

// Do executes one request and records its latency and outcome.
func (r *httpRequester) Do(ctx context.Context) error {
	ctx, span := tracing.StartRequestSpan(ctx, r.tracer, r.builder.Method(), r.builder.Target())
	if r.exporter != nil {
		r.exporter.RequestStarted()
	}

	start := time.Now()
	statusCode, err := r.send(ctx)
	latency := time.Since(start)

	r.collector.RecordRequest(latency, statusCode, err)
	if r.exporter != nil {
		r.exporter.RequestFinished(latency, err)
	}
	tracing.EndSpan(span, statusCode, err)
	return err
}

func (r *httpRequester) send(ctx context.Context) (int, error) {
	req, err := r.builder.Build(ctx)
	if err != nil {
		return 0, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer httpclient.DrainAndClose(resp.Body)

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBodyBytes))
		return resp.StatusCode, &runner.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	return resp.StatusCode, nil
}

// zapFailureLogger reports each failed request at warn level.
type zapFailureLogger struct {
	logger *zap.Logger
}

func (l zapFailureLogger) LogFailure(err error) {
	if err == nil {
		return
	}
	l.logger.Warn("request failed", zap.String("kind", metrics.ErrorKind(err)), zap.Error(err))
}
