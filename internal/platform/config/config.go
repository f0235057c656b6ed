package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultEndpointURL     = "https://hotel-cancellation-predictor-37d78d6df101.herokuapp.com/predict"
	defaultRequestTimeout  = 30 * time.Second
	defaultEnvironment     = "local"
	defaultSessionTTL      = 2 * time.Hour
	defaultSweepInterval   = 5 * time.Minute
	defaultCSRFCookieName  = "predictor_csrf"
	defaultSessionCookie   = "predictor_session"
	defaultLogLevel        = "info"
	productionEnvironment  = "prod"
	minSessionSigningBytes = 16
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Predictor PredictorConfig
	Session   SessionConfig
	Telemetry TelemetryConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Environment  string
}

// PredictorConfig points the form at the remote prediction endpoint.
type PredictorConfig struct {
	EndpointURL    string
	RequestTimeout time.Duration
}

// SessionConfig controls the browser session that owns a form instance.
type SessionConfig struct {
	CookieName     string
	SigningKey     string
	TTL            time.Duration
	SweepInterval  time.Duration
	CSRFCookieName string
	SecureCookies  bool
}

// TelemetryConfig groups logging and tracing settings.
type TelemetryConfig struct {
	LogLevel       string
	TraceProjectID string
}

// Production reports whether the server runs in the production environment.
func (c Config) Production() bool {
	return strings.EqualFold(c.Server.Environment, productionEnvironment)
}

// Addr returns the listen address derived from the configured port.
func (c Config) Addr() string {
	return ":" + c.Server.Port
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from defaults, .env overrides and environment variables.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	port := stringWithDefault(lookup, "PORT", defaultPort)
	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "PREDICTOR_SERVER_PORT", port),
			ReadTimeout:  durationWithDefault(lookup, "PREDICTOR_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "PREDICTOR_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "PREDICTOR_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			Environment:  strings.ToLower(stringWithDefault(lookup, "PREDICTOR_ENV", defaultEnvironment)),
		},
		Predictor: PredictorConfig{
			EndpointURL:    strings.TrimSpace(stringWithDefault(lookup, "PREDICTOR_ENDPOINT_URL", defaultEndpointURL)),
			RequestTimeout: durationWithDefault(lookup, "PREDICTOR_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Session: SessionConfig{
			CookieName:     stringWithDefault(lookup, "PREDICTOR_SESSION_COOKIE_NAME", defaultSessionCookie),
			SigningKey:     stringWithDefault(lookup, "PREDICTOR_SESSION_SIGNING_KEY", ""),
			TTL:            durationWithDefault(lookup, "PREDICTOR_SESSION_TTL", defaultSessionTTL),
			SweepInterval:  durationWithDefault(lookup, "PREDICTOR_SWEEP_INTERVAL", defaultSweepInterval),
			CSRFCookieName: stringWithDefault(lookup, "PREDICTOR_CSRF_COOKIE_NAME", defaultCSRFCookieName),
		},
		Telemetry: TelemetryConfig{
			LogLevel:       strings.ToLower(stringWithDefault(lookup, "PREDICTOR_LOG_LEVEL", defaultLogLevel)),
			TraceProjectID: stringWithDefault(lookup, "PREDICTOR_TRACE_PROJECT_ID", ""),
		},
	}
	cfg.Session.SecureCookies = boolWithDefault(lookup, "PREDICTOR_SESSION_SECURE_COOKIES", cfg.Production())

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if _, err := strconv.Atoi(cfg.Server.Port); err != nil {
		missing = append(missing, "Server.Port")
	}
	if cfg.Server.ReadTimeout <= 0 {
		missing = append(missing, "Server.ReadTimeout")
	}
	if cfg.Server.WriteTimeout <= 0 {
		missing = append(missing, "Server.WriteTimeout")
	}
	if cfg.Server.IdleTimeout <= 0 {
		missing = append(missing, "Server.IdleTimeout")
	}
	if !validEndpoint(cfg.Predictor.EndpointURL) {
		missing = append(missing, "Predictor.EndpointURL")
	}
	// The prediction call must settle before the server write deadline.
	if cfg.Predictor.RequestTimeout <= 0 || cfg.Predictor.RequestTimeout >= cfg.Server.WriteTimeout {
		missing = append(missing, "Predictor.RequestTimeout")
	}
	if cfg.Session.TTL <= 0 {
		missing = append(missing, "Session.TTL")
	}
	if cfg.Session.SweepInterval <= 0 {
		missing = append(missing, "Session.SweepInterval")
	}
	if strings.TrimSpace(cfg.Session.CookieName) == "" {
		missing = append(missing, "Session.CookieName")
	}
	if strings.TrimSpace(cfg.Session.CSRFCookieName) == "" {
		missing = append(missing, "Session.CSRFCookieName")
	}
	if cfg.Production() && len(cfg.Session.SigningKey) < minSessionSigningBytes {
		missing = append(missing, "Session.SigningKey")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func validEndpoint(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

// durationWithDefault returns fallback for unset keys and zero for values that
// do not parse, so validateConfig reports them instead of hiding a typo.
func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return d
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
