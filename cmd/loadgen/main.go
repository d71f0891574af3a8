package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ra56/loadgen/internal/config"
	"github.com/ra56/loadgen/internal/dashboard"
	"github.com/ra56/loadgen/internal/history"
	"github.com/ra56/loadgen/internal/httpclient"
	"github.com/ra56/loadgen/internal/logging"
	"github.com/ra56/loadgen/internal/metrics"
	"github.com/ra56/loadgen/internal/output"
	"github.com/ra56/loadgen/internal/promexport"
	"github.com/ra56/loadgen/internal/runner"
	"github.com/ra56/loadgen/internal/session"
	"github.com/ra56/loadgen/internal/threshold"
	"github.com/ra56/loadgen/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// errStrictFailure is returned in strict mode when the verdict is FAIL or a
// threshold did not hold.
var errStrictFailure = errors.New("run did not pass strict checks")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive a fixed request rate against an HTTP endpoint",
		Long: "loadgen emits duration x rate requests on a drift-free schedule, " +
			"executes them on a fixed worker pool and reports a PASS/PARTIAL/FAIL verdict.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().LoadFlags(cmd.Flags())
			if err != nil {
				return err
			}
			return runLoad(cmd.Context(), cfg, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	config.RegisterFlags(cmd)
	cmd.AddCommand(newHistoryCommand(stdout))
	return cmd
}

func runLoad(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	client := httpclient.NewClient(cfg.Timeout, cfg.Concurrency)
	provider, err := authenticate(ctx, cfg, client, logger)
	if err != nil {
		return err
	}
	if provider != nil {
		defer provider.Close()
	}

	var builder *httpclient.RequestBuilder
	if provider != nil {
		builder, err = httpclient.NewRequestBuilderWithAuth(cfg, provider)
	} else {
		builder, err = httpclient.NewRequestBuilder(cfg)
	}
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	var exporter *promexport.Exporter
	if cfg.MetricsAddr != "" {
		exporter = promexport.New(logger)
	}

	var requester runner.Requester = &httpRequester{
		client:    client,
		builder:   builder,
		collector: collector,
		exporter:  exporter,
		tracer:    tp.Tracer(),
	}
	if cfg.LogErrors {
		requester = runner.WithLogging(requester, zapFailureLogger{logger: logger})
	}

	r := runner.New(runner.Options{
		Concurrency:   cfg.Concurrency,
		Duration:      cfg.Duration,
		RatePerSecond: cfg.Rate,
		QueueCapacity: cfg.QueueCapacity,
		PopTimeout:    cfg.PopTimeout,
		JoinTimeout:   cfg.JoinTimeout,
		Requester:     requester,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival.Model),
		RandomSeed:    arrivalSeed(cfg.Arrival.Seed),
		Logger:        logger,
	})

	if exporter != nil {
		exporter.WatchRun(r)
		if err := exporter.Serve(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			_ = exporter.Shutdown(shutdownCtx)
		}()
	}

	var heartbeat *session.Heartbeat
	if provider != nil && cfg.Session.Heartbeat {
		heartbeat = session.NewHeartbeat(client, cfg.URLFor(cfg.Session.HeartbeatPath), provider, cfg.Session.HeartbeatInterval, logger)
		heartbeat.Start(ctx)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	stopDisplay := startDisplay(cfg, r, collector, cancelRun, stderr, logger)

	logger.Info("starting run",
		zap.String("target", builder.Target()),
		zap.Int("rate", cfg.Rate),
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Concurrency),
		zap.Int("planned", r.Planned()),
	)
	startedAt := time.Now()
	result := r.Run(runCtx)
	stopDisplay()

	if heartbeat != nil {
		if !heartbeat.Stop(cfg.JoinTimeout) {
			logger.Warn("heartbeat did not stop in time")
		}
	}
	if provider != nil && cfg.Session.Logout {
		logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeout)
		session.Logout(logoutCtx, client, cfg.URLFor(cfg.Session.LogoutPath), provider, logger)
		cancel()
	}

	report := buildReport(cfg, builder, result, collector, thresholds)
	if err := printReport(stdout, cfg.Output.Format, report); err != nil {
		return err
	}
	recordHistory(cfg, startedAt, report, logger)

	if cfg.Strict && (report.Summary.Verdict == output.VerdictFail || !report.ThresholdsPassed()) {
		return errStrictFailure
	}
	return nil
}

// startDisplay starts the dashboard or the progress line, whichever the
// configuration asks for, and returns the function that stops it.
func startDisplay(cfg *config.Config, r *runner.Runner, collector *metrics.Collector, cancelRun context.CancelFunc, stderr io.Writer, logger *zap.Logger) func() {
	if cfg.Output.Dashboard {
		dash := dashboard.New(r, collector, dashboard.TestConfig{
			TargetURL:    cfg.TargetURL(),
			Method:       cfg.Method,
			Concurrency:  cfg.Concurrency,
			Duration:     cfg.Duration,
			Rate:         cfg.Rate,
			Timeout:      cfg.Timeout,
			ArrivalModel: string(cfg.Arrival.Model),
			ConfigFile:   cfg.ConfigFile,
		}, cancelRun)
		dash.Start()
		return func() {
			if err := dash.Stop(); err != nil {
				logger.Warn("dashboard exited with error", zap.Error(err))
			}
		}
	}
	if cfg.Output.Progress && cfg.Output.Format == config.OutputText {
		progress := output.NewProgressReporter(r, collector, progressInterval, stderr)
		progress.Start()
		return progress.Stop
	}
	return func() {}
}

// buildReport assembles the final report. Request totals come from the
// runner's counters; the collector contributes latency and error detail.
func buildReport(cfg *config.Config, builder *httpclient.RequestBuilder, result runner.Result, collector *metrics.Collector, thresholds []threshold.Threshold) output.Report {
	summary := output.Summarize(result.Stats, result.Duration, cfg.Rate)

	stats := collector.Stats(result.Duration)
	stats.Total = result.Stats.Total
	stats.Successes = result.Stats.Succeeded
	stats.Failures = result.Stats.Failed
	stats.RequestsPerSec = summary.AchievedRPS

	return output.Report{
		Method:       builder.Method(),
		Target:       builder.Target(),
		Summary:      summary,
		Planned:      result.Planned,
		Emitted:      result.Emitted,
		Skipped:      result.Skipped,
		JoinTimedOut: result.JoinTimedOut,
		Latency:      stats,
		Thresholds:   threshold.NewEvaluator(thresholds).Evaluate(stats),
	}
}

func printReport(w io.Writer, format config.OutputFormat, report output.Report) error {
	switch format {
	case config.OutputJSON:
		return output.PrintJSONReport(w, report)
	case config.OutputYAML:
		return output.PrintYAMLReport(w, report)
	default:
		output.PrintReport(w, report)
		return nil
	}
}

// recordHistory appends the run to the history file. Failures are logged and
// never fail the run.
func recordHistory(cfg *config.Config, startedAt time.Time, report output.Report, logger *zap.Logger) {
	if cfg.History.Disabled || cfg.History.Path == "" {
		return
	}
	failed := 0
	for _, res := range report.Thresholds {
		if !res.Pass {
			failed++
		}
	}
	rec, err := history.NewStore(cfg.History.Path).Append(history.Record{
		StartedAt:        startedAt,
		Method:           report.Method,
		Target:           report.Target,
		ArrivalModel:     string(cfg.Arrival.Model),
		Concurrency:      cfg.Concurrency,
		TargetRPS:        cfg.Rate,
		DurationSec:      cfg.Duration.Seconds(),
		ElapsedSec:       report.Summary.ElapsedSec,
		Total:            report.Summary.Total,
		Succeeded:        report.Summary.Succeeded,
		Failed:           report.Summary.Failed,
		AchievedRPS:      report.Summary.AchievedRPS,
		P99LatencyMs:     report.Latency.P99LatencyMs,
		Verdict:          string(report.Summary.Verdict),
		ThresholdsFailed: failed,
	})
	if err != nil {
		logger.Warn("could not record run history", zap.String("path", cfg.History.Path), zap.Error(err))
		return
	}
	logger.Debug("run recorded", zap.String("id", rec.ID), zap.String("path", cfg.History.Path))
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch model {
	case config.ArrivalModelPoisson:
		return runner.ArrivalModelPoisson
	case config.ArrivalModelTokenBucket:
		return runner.ArrivalModelTokenBucket
	default:
		return runner.ArrivalModelUniform
	}
}

// arrivalSeed returns seed, or a time-based seed when it is zero.
func arrivalSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}
