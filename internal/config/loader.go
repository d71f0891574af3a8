package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultBaseURL           = "http://localhost:8080"
	DefaultEndpoint          = "/api/videos"
	DefaultLoginPath         = "/auth/login"
	DefaultHeartbeatPath     = "/api/monitoring/heartbeat"
	DefaultLogoutPath        = "/api/monitoring/logout"
	DefaultHeartbeatInterval = 20 * time.Second
	DefaultConcurrency       = 64
	DefaultRate              = 200
	DefaultDuration          = 20 * time.Second
	DefaultTimeout           = 5 * time.Second
	DefaultPopTimeout        = 500 * time.Millisecond
	DefaultJoinTimeout       = 5 * time.Second
	DefaultEnvFile           = ".env"
)

// envBindings maps config keys to the environment variables that may set them.
// Credentials use short names so an existing .env stays readable.
var envBindings = map[string][]string{
	"base_url":         {"LOADGEN_BASE_URL"},
	"endpoint":         {"LOADGEN_ENDPOINT"},
	"rate":             {"LOADGEN_RATE"},
	"duration":         {"LOADGEN_DURATION"},
	"concurrency":      {"LOADGEN_CONCURRENCY"},
	"timeout":          {"LOADGEN_TIMEOUT"},
	"metrics_addr":     {"LOADGEN_METRICS_ADDR"},
	"auth.email":       {"LOADGEN_EMAIL"},
	"auth.password":    {"LOADGEN_PASSWORD"},
	"auth.token":       {"LOADGEN_TOKEN"},
	"log.level":        {"LOADGEN_LOG_LEVEL"},
	"history.path":     {"LOADGEN_HISTORY_PATH"},
	"tracing.endpoint": {"LOADGEN_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"},
}

// Loader handles loading configuration from files, the environment and
// command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Endpoint:    DefaultEndpoint,
		Method:      http.MethodGet,
		Headers:     map[string]string{},
		Concurrency: DefaultConcurrency,
		Rate:        DefaultRate,
		Duration:    DefaultDuration,
		Timeout:     DefaultTimeout,
		PopTimeout:  DefaultPopTimeout,
		JoinTimeout: DefaultJoinTimeout,
		Arrival:     ArrivalConfig{Model: ArrivalModelUniform},
		Auth:        AuthConfig{LoginPath: DefaultLoginPath},
		Session: SessionConfig{
			Heartbeat:         true,
			HeartbeatPath:     DefaultHeartbeatPath,
			HeartbeatInterval: DefaultHeartbeatInterval,
			Logout:            true,
			LogoutPath:        DefaultLogoutPath,
		},
		Output:  OutputConfig{Format: OutputText, Progress: true},
		Tracing: TracingConfig{Protocol: "grpc", ServiceName: "loadgen", SampleRate: 1},
		History: HistoryConfig{Path: defaultHistoryPath()},
		Log:     LogConfig{Level: "info", Format: "console"},
		EnvFile: DefaultEnvFile,
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".loadgen", "history.jsonl")
}

// Load parses command-line arguments on a standalone flag set and resolves
// the full configuration.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	if helpFlag := cmd.Flags().Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	return l.LoadFlags(cmd.Flags())
}

// LoadFlags resolves the configuration from an already parsed flag set.
// Precedence, lowest first: defaults, config file, environment, flags.
func (Loader) LoadFlags(flagSet *pflag.FlagSet) (*Config, error) {
	configPath, _ := flagSet.GetString("config")
	envFile := DefaultEnvFile
	if flagSet.Changed("env-file") {
		envFile, _ = flagSet.GetString("env-file")
	}

	if err := loadEnvFile(envFile, flagSet.Changed("env-file")); err != nil {
		return nil, err
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}
	for key, names := range envBindings {
		if err := cfgViper.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath
	cfg.EnvFile = envFile

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Auth.Email = strings.TrimSpace(cfg.Auth.Email)
	cfg.Auth.Token = strings.TrimSpace(cfg.Auth.Token)
	cfg.Arrival.Model = ArrivalModel(strings.ToLower(string(cfg.Arrival.Model)))
	cfg.Output.Format = OutputFormat(strings.ToLower(string(cfg.Output.Format)))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return &cfg, nil
}

// loadEnvFile exports a dotenv file into the process environment. Variables
// already set win over the file. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// applyConfigSettings applies settings from a config file and the
// environment to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "base_url", "baseurl", "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		if val != "" {
			cfg.BaseURL = val
		}
	}

	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		if val != "" {
			cfg.Endpoint = val
		}
	}

	if raw, ok := lookupSetting(settings, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("method: %w", err)
		}
		if val != "" {
			cfg.Method = val
		}
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	intFields := []struct {
		keys []string
		dst  *int
	}{
		{[]string{"concurrency"}, &cfg.Concurrency},
		{[]string{"rate"}, &cfg.Rate},
		{[]string{"queue_capacity", "queuecapacity"}, &cfg.QueueCapacity},
	}
	for _, f := range intFields {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = val
		}
	}

	durationFields := []struct {
		keys []string
		dst  *time.Duration
	}{
		{[]string{"duration"}, &cfg.Duration},
		{[]string{"timeout"}, &cfg.Timeout},
		{[]string{"pop_timeout", "poptimeout"}, &cfg.PopTimeout},
		{[]string{"join_timeout", "jointimeout"}, &cfg.JoinTimeout},
	}
	for _, f := range durationFields {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = val
		}
	}

	boolFields := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"log_errors", "logerrors"}, &cfg.LogErrors},
		{[]string{"request_id", "requestid"}, &cfg.RequestID},
		{[]string{"strict"}, &cfg.Strict},
	}
	for _, f := range boolFields {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "metrics_addr", "metricsaddr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metrics_addr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = vals
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		if err := parseArrival(raw, &cfg.Arrival); err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "auth"); ok {
		if err := parseAuth(raw, &cfg.Auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "session"); ok {
		if err := parseSession(raw, &cfg.Session); err != nil {
			return fmt.Errorf("session: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "output"); ok {
		if err := parseOutput(raw, &cfg.Output); err != nil {
			return fmt.Errorf("output: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := parseTracing(raw, &cfg.Tracing); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "history"); ok {
		if err := parseHistory(raw, &cfg.History); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "log"); ok {
		if err := parseLog(raw, &cfg.Log); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}

	return nil
}

func parseArrival(value interface{}, dst *ArrivalConfig) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "model"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("model: %w", err)
		}
		if val = strings.TrimSpace(val); val != "" {
			dst.Model = ArrivalModel(val)
		}
	}
	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		dst.Seed = int64(val)
	}
	return nil
}

func parseAuth(value interface{}, dst *AuthConfig) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	fields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"email"}, &dst.Email},
		{[]string{"password"}, &dst.Password},
		{[]string{"token", "static_token"}, &dst.Token},
		{[]string{"login_path", "loginpath"}, &dst.LoginPath},
	}
	for _, f := range fields {
		raw, ok := lookupSetting(settings, f.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.keys[0], err)
		}
		if f.dst == &dst.LoginPath && val == "" {
			continue
		}
		*f.dst = val
	}
	return nil
}

func parseSession(value interface{}, dst *SessionConfig) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "heartbeat"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
		dst.Heartbeat = val
	}
	if raw, ok := lookupSetting(settings, "logout"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		dst.Logout = val
	}
	if raw, ok := lookupSetting(settings, "heartbeat_interval", "heartbeatinterval"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("heartbeat_interval: %w", err)
		}
		dst.HeartbeatInterval = val
	}
	for _, f := range []struct {
		keys []string
		dst  *string
	}{
		{[]string{"heartbeat_path", "heartbeatpath"}, &dst.HeartbeatPath},
		{[]string{"logout_path", "logoutpath"}, &dst.LogoutPath},
	} {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			if val != "" {
				*f.dst = val
			}
		}
	}
	return nil
}

func parseOutput(value interface{}, dst *OutputConfig) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		if val = strings.TrimSpace(val); val != "" {
			dst.Format = OutputFormat(val)
		}
	}
	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		dst.Dashboard = val
	}
	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		dst.Progress = val
	}
	return nil
}

func parseTracing(value interface{}, dst *TracingConfig) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	for _, f := range []struct {
		keys []string
		dst  *string
	}{
		{[]string{"endpoint"}, &dst.Endpoint},
		{[]string{"protocol"}, &dst.Protocol},
		{[]string{"service_name", "servicename"}, &dst.ServiceName},
	} {
		if raw, ok := lookupSetting(settings, f.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", f.keys[0], err)
			}
			*f.dst = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		dst.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		dst.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		dst.Propagate = val
	}
	return nil
}

func parseHistory(value interface{}, dst *HistoryConfig) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("path: %w", err)
		}
		dst.Path = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "disabled"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("disabled: %w", err)
		}
		dst.Disabled = val
	}
	return nil
}

func parseLog(value interface{}, dst *LogConfig) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("level: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			dst.Level = val
		}
	}
	if raw, ok := lookupSetting(settings, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			dst.Format = val
		}
	}
	return nil
}
