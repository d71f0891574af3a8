package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type ArrivalModel string

const (
	ArrivalModelUniform     ArrivalModel = "uniform"
	ArrivalModelPoisson     ArrivalModel = "poisson"
	ArrivalModelTokenBucket ArrivalModel = "token-bucket"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// Config is the run configuration. It is fixed once Load returns.
type Config struct {
	BaseURL       string            `mapstructure:"base_url" validate:"required,url"`
	Endpoint      string            `mapstructure:"endpoint" validate:"required,startswith=/"`
	Method        string            `mapstructure:"method" validate:"required"`
	Headers       map[string]string `mapstructure:"headers"`
	Concurrency   int               `mapstructure:"concurrency" validate:"gte=1"`
	Rate          int               `mapstructure:"rate" validate:"gte=0"`
	Duration      time.Duration     `mapstructure:"duration" validate:"gte=0"`
	Timeout       time.Duration     `mapstructure:"timeout" validate:"gt=0"`
	QueueCapacity int               `mapstructure:"queue_capacity" validate:"gte=0"`
	PopTimeout    time.Duration     `mapstructure:"pop_timeout" validate:"gte=0"`
	JoinTimeout   time.Duration     `mapstructure:"join_timeout" validate:"gte=0"`
	Arrival       ArrivalConfig     `mapstructure:"arrival"`
	LogErrors     bool              `mapstructure:"log_errors"`
	RequestID     bool              `mapstructure:"request_id"`
	Auth          AuthConfig        `mapstructure:"auth"`
	Session       SessionConfig     `mapstructure:"session"`
	Output        OutputConfig      `mapstructure:"output"`
	Thresholds    []string          `mapstructure:"thresholds"`
	Strict        bool              `mapstructure:"strict"`
	Tracing       TracingConfig     `mapstructure:"tracing"`
	MetricsAddr   string            `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
	History       HistoryConfig     `mapstructure:"history"`
	Log           LogConfig         `mapstructure:"log"`
	ConfigFile    string            `mapstructure:"-"`
	EnvFile       string            `mapstructure:"-"`
}

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model" validate:"oneof=uniform poisson token-bucket"`
	Seed  int64        `mapstructure:"seed"`
}

// AuthConfig selects how the bearer token is obtained. A static token wins
// over login credentials.
type AuthConfig struct {
	Email     string `mapstructure:"email" validate:"omitempty,email"`
	Password  string `mapstructure:"password" validate:"required_with=Email"`
	Token     string `mapstructure:"token"`
	LoginPath string `mapstructure:"login_path" validate:"required,startswith=/"`
}

type SessionConfig struct {
	Heartbeat         bool          `mapstructure:"heartbeat"`
	HeartbeatPath     string        `mapstructure:"heartbeat_path" validate:"required,startswith=/"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gt=0"`
	Logout            bool          `mapstructure:"logout"`
	LogoutPath        string        `mapstructure:"logout_path" validate:"required,startswith=/"`
}

type OutputConfig struct {
	Format    OutputFormat `mapstructure:"format" validate:"oneof=text json yaml"`
	Dashboard bool         `mapstructure:"dashboard"`
	Progress  bool         `mapstructure:"progress"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol" validate:"omitempty,oneof=grpc http"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether W3C trace headers go out with requests.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Propagate
}

type HistoryConfig struct {
	Path     string `mapstructure:"path"`
	Disabled bool   `mapstructure:"disabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// TargetURL is the load request URL.
func (c Config) TargetURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.Endpoint
}

// URLFor joins the base URL with a collaborator path such as the login path.
func (c Config) URLFor(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// UsesLogin reports whether a login call is needed to obtain the token.
func (c Config) UsesLogin() bool {
	return strings.TrimSpace(c.Auth.Token) == "" && strings.TrimSpace(c.Auth.Email) != ""
}

// HasCredentials reports whether requests carry a bearer token.
func (c Config) HasCredentials() bool {
	return strings.TrimSpace(c.Auth.Token) != "" || c.UsesLogin()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report issues by config key rather than Go field name.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func (c Config) Validate() error {
	var issues []string

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			issues = append(issues, describeFieldError(fe))
		}
	}

	if c.Output.Dashboard && c.Output.Format != OutputText {
		issues = append(issues, "dashboard and json/yaml output are mutually exclusive")
	}
	if strings.ContainsAny(c.Endpoint, " \t\r\n") {
		issues = append(issues, "endpoint must not contain whitespace")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Warnings returns advisory notes about the configuration.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("High rate configured (%d RPS). Ensure you have authorization to test the target system.", c.Rate))
	}
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("High concurrency configured (%d workers). Ensure you have authorization to test the target system.", c.Concurrency))
	}
	if c.Rate > 0 && c.Duration > 0 && float64(c.Rate)*c.Duration.Seconds() < 1 {
		warnings = append(warnings, fmt.Sprintf("%d RPS over %s schedules no requests", c.Rate, c.Duration))
	}
	if c.Tracing.Enabled() && c.Tracing.Insecure {
		warnings = append(warnings, "Tracing exporter TLS is disabled (insecure: true).")
	}
	return warnings
}

func describeFieldError(fe validator.FieldError) string {
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", key)
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", key, strings.ToLower(fe.Param()))
	case "gte":
		return fmt.Sprintf("%s must be >= %s", key, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", key, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", key, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fmt.Sprint(fe.Value()))
	case "startswith":
		return fmt.Sprintf("%s must start with %q", key, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be an absolute URL", key)
	case "email":
		return fmt.Sprintf("%s must be an email address", key)
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port", key)
	default:
		return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
	}
}
