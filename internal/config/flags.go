package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all run flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "loadgen",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("base-url", DefaultBaseURL, "Base URL of the platform under test")
	flags.String("endpoint", DefaultEndpoint, "Path requested by every worker")
	flags.String("method", http.MethodGet, "HTTP method to use")
	flags.StringSlice("header", nil, "Additional request header in key=value form")

	// Load control flags
	flags.IntP("concurrency", "c", DefaultConcurrency, "Number of concurrent workers")
	flags.IntP("rate", "r", DefaultRate, "Target requests per second")
	flags.DurationP("duration", "d", DefaultDuration, "How long the scheduler emits work (e.g. 20s, 1m)")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.Int("queue-capacity", 0, "Work queue capacity (0 means max(4*rate, 1000))")
	flags.Duration("pop-timeout", DefaultPopTimeout, "How long an idle worker waits before re-checking the stop signal")
	flags.Duration("join-timeout", DefaultJoinTimeout, "Max time to wait for workers after the queue drains")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model: uniform, poisson or token-bucket")
	flags.Int64("seed", 0, "Random seed for the poisson arrival model (0 means time based)")
	flags.Bool("request-id", false, "Send a unique X-Request-Id header with every request")

	// Session flags
	flags.String("email", "", "Login email (or LOADGEN_EMAIL)")
	flags.String("password", "", "Login password (or LOADGEN_PASSWORD)")
	flags.String("token", "", "Static bearer token, skips login (or LOADGEN_TOKEN)")
	flags.String("login-path", DefaultLoginPath, "Login endpoint path")
	flags.Bool("heartbeat", true, "Send periodic heartbeats while a token is held")
	flags.String("heartbeat-path", DefaultHeartbeatPath, "Heartbeat endpoint path")
	flags.Duration("heartbeat-interval", DefaultHeartbeatInterval, "Interval between heartbeats")
	flags.Bool("logout", true, "Send a logout notification at shutdown")
	flags.String("logout-path", DefaultLogoutPath, "Logout endpoint path")

	// Output flags
	flags.String("output", string(OutputText), "Report format: text, json or yaml")
	flags.Bool("json-output", false, "Shorthand for --output json")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("progress", true, "Print a progress line every second")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "console", "Log encoding: console or json")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("env-file", DefaultEnvFile, "Path to a dotenv file with credentials")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Advisory thresholds (repeatable, e.g., 'http_req_duration:p95 < 500')")
	flags.Bool("strict", false, "Exit non-zero on a FAIL verdict or a failed threshold")

	// Observability flags
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("tracing-endpoint", "", "OTLP collector endpoint; enables tracing")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "loadgen", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1, "Fraction of requests traced (0..1)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Inject W3C trace headers into requests")

	// History flags
	flags.String("history-path", "", "Run history file (default ~/.loadgen/history.jsonl)")
	flags.Bool("no-history", false, "Do not record this run in the history file")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file and the environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := []struct {
		name string
		dst  *string
	}{
		{"base-url", &cfg.BaseURL},
		{"endpoint", &cfg.Endpoint},
		{"method", &cfg.Method},
		{"email", &cfg.Auth.Email},
		{"password", &cfg.Auth.Password},
		{"token", &cfg.Auth.Token},
		{"login-path", &cfg.Auth.LoginPath},
		{"heartbeat-path", &cfg.Session.HeartbeatPath},
		{"logout-path", &cfg.Session.LogoutPath},
		{"log-level", &cfg.Log.Level},
		{"log-format", &cfg.Log.Format},
		{"metrics-addr", &cfg.MetricsAddr},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
		{"history-path", &cfg.History.Path},
	}
	for _, f := range stringFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	intFlags := []struct {
		name string
		dst  *int
	}{
		{"concurrency", &cfg.Concurrency},
		{"rate", &cfg.Rate},
		{"queue-capacity", &cfg.QueueCapacity},
	}
	for _, f := range intFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetInt(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	durationFlags := []struct {
		name string
		dst  *time.Duration
	}{
		{"duration", &cfg.Duration},
		{"timeout", &cfg.Timeout},
		{"pop-timeout", &cfg.PopTimeout},
		{"join-timeout", &cfg.JoinTimeout},
		{"heartbeat-interval", &cfg.Session.HeartbeatInterval},
	}
	for _, f := range durationFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetDuration(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	boolFlags := []struct {
		name string
		dst  *bool
	}{
		{"request-id", &cfg.RequestID},
		{"heartbeat", &cfg.Session.Heartbeat},
		{"logout", &cfg.Session.Logout},
		{"dashboard", &cfg.Output.Dashboard},
		{"progress", &cfg.Output.Progress},
		{"log-errors", &cfg.LogErrors},
		{"strict", &cfg.Strict},
		{"tracing-insecure", &cfg.Tracing.Insecure},
		{"tracing-propagate", &cfg.Tracing.Propagate},
		{"no-history", &cfg.History.Disabled},
	}
	for _, f := range boolFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Arrival.Seed = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output.Format = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		if val {
			cfg.Output.Format = OutputJSON
		}
	}
	if fs.Changed("header") {
		values, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, raw := range values {
			key, val, ok := strings.Cut(raw, "=")
			if !ok {
				return fmt.Errorf("invalid header %q: expected key=value", raw)
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return fmt.Errorf("invalid header %q: empty key", raw)
			}
			cfg.Headers[http.CanonicalHeaderKey(key)] = strings.TrimSpace(val)
		}
	}
	if fs.Changed("threshold") {
		values, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = values
	}
	return nil
}
