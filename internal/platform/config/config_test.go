package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("unexpected write timeout: %s", cfg.Server.WriteTimeout)
	}
	if cfg.Predictor.EndpointURL != defaultEndpointURL {
		t.Errorf("expected default endpoint, got %s", cfg.Predictor.EndpointURL)
	}
	if cfg.Predictor.RequestTimeout != defaultRequestTimeout {
		t.Errorf("unexpected request timeout: %s", cfg.Predictor.RequestTimeout)
	}
	if cfg.Server.Environment != "local" || cfg.Production() {
		t.Errorf("expected local environment, got %s", cfg.Server.Environment)
	}
	if cfg.Session.SecureCookies {
		t.Errorf("expected insecure cookies outside production")
	}
	if cfg.Session.CSRFCookieName != defaultCSRFCookieName {
		t.Errorf("unexpected csrf cookie name %s", cfg.Session.CSRFCookieName)
	}
	if cfg.Session.TTL != defaultSessionTTL || cfg.Session.SweepInterval != defaultSweepInterval {
		t.Errorf("unexpected session timings: %s / %s", cfg.Session.TTL, cfg.Session.SweepInterval)
	}
	if cfg.Telemetry.LogLevel != "info" {
		t.Errorf("unexpected log level %s", cfg.Telemetry.LogLevel)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("unexpected addr %s", cfg.Addr())
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"PORT":                          "7000",
		"PREDICTOR_SERVER_PORT":         "9090",
		"PREDICTOR_SERVER_READ_TIMEOUT": "20s",
		"PREDICTOR_ENDPOINT_URL":        "http://localhost:5000/predict",
		"PREDICTOR_REQUEST_TIMEOUT":     "5s",
		"PREDICTOR_ENV":                 "PROD",
		"PREDICTOR_SESSION_SIGNING_KEY": "0123456789abcdef0123",
		"PREDICTOR_SESSION_TTL":         "30m",
		"PREDICTOR_LOG_LEVEL":           "DEBUG",
		"PREDICTOR_TRACE_PROJECT_ID":    "predictor-prod",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected explicit port to win over PORT, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Predictor.EndpointURL != "http://localhost:5000/predict" {
		t.Errorf("unexpected endpoint %s", cfg.Predictor.EndpointURL)
	}
	if cfg.Predictor.RequestTimeout != 5*time.Second {
		t.Errorf("unexpected request timeout %s", cfg.Predictor.RequestTimeout)
	}
	if !cfg.Production() || !cfg.Session.SecureCookies {
		t.Errorf("expected production with secure cookies")
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("unexpected session ttl %s", cfg.Session.TTL)
	}
	if cfg.Telemetry.LogLevel != "debug" {
		t.Errorf("expected lower-cased log level, got %s", cfg.Telemetry.LogLevel)
	}
	if cfg.Telemetry.TraceProjectID != "predictor-prod" {
		t.Errorf("unexpected trace project %s", cfg.Telemetry.TraceProjectID)
	}
}

func TestLoadFallsBackToPlatformPort(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{"PORT": "3000"}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "3000" {
		t.Errorf("expected PORT fallback, got %s", cfg.Server.Port)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"PREDICTOR_SERVER_PORT":  "http",
		"PREDICTOR_ENDPOINT_URL": "ftp://example.com/predict",
		"PREDICTOR_ENV":          "prod",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validationErr.Fields()
	expected := map[string]bool{
		"Server.Port":           false,
		"Predictor.EndpointURL": false,
		"Session.SigningKey":    false,
	}
	for _, field := range fields {
		if _, ok := expected[field]; ok {
			expected[field] = true
		}
	}
	for field, seen := range expected {
		if !seen {
			t.Errorf("expected %s in validation fields %v", field, fields)
		}
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# local overrides\nexport PREDICTOR_ENDPOINT_URL=\"http://127.0.0.1:5000/predict\"\nPREDICTOR_SWEEP_INTERVAL=1m\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(envPath),
		WithEnvMap(map[string]string{"PREDICTOR_SWEEP_INTERVAL": "2m"}),
		WithoutSystemEnv(),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Predictor.EndpointURL != "http://127.0.0.1:5000/predict" {
		t.Errorf("expected dotenv endpoint, got %s", cfg.Predictor.EndpointURL)
	}
	if cfg.Session.SweepInterval != 2*time.Minute {
		t.Errorf("expected env map to override dotenv, got %s", cfg.Session.SweepInterval)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(filepath.Join(t.TempDir(), "absent.env")),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
	)
	if err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadRejectsRequestTimeoutPastWriteTimeout(t *testing.T) {
	for _, requestTimeout := range []string{"90s", "10s"} {
		env := map[string]string{
			"PREDICTOR_REQUEST_TIMEOUT":      requestTimeout,
			"PREDICTOR_SERVER_WRITE_TIMEOUT": "10s",
		}
		_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))

		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("request timeout %s: expected ValidationError, got %v", requestTimeout, err)
		}
		if fields := validationErr.Fields(); len(fields) != 1 || fields[0] != "Predictor.RequestTimeout" {
			t.Errorf("request timeout %s: unexpected fields %v", requestTimeout, fields)
		}
	}

	cfg, err := Load(context.Background(),
		WithEnvMap(map[string]string{"PREDICTOR_REQUEST_TIMEOUT": "9s", "PREDICTOR_SERVER_WRITE_TIMEOUT": "10s"}),
		WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Predictor.RequestTimeout != 9*time.Second {
		t.Errorf("unexpected request timeout %s", cfg.Predictor.RequestTimeout)
	}
}

func TestLoadReportsMalformedDurations(t *testing.T) {
	env := map[string]string{
		"PREDICTOR_REQUEST_TIMEOUT":     "30",
		"PREDICTOR_SESSION_TTL":         "two hours",
		"PREDICTOR_SERVER_IDLE_TIMEOUT": "2m",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	got := map[string]bool{}
	for _, field := range validationErr.Fields() {
		got[field] = true
	}
	if !got["Predictor.RequestTimeout"] || !got["Session.TTL"] {
		t.Errorf("expected malformed durations to be reported, got %v", validationErr.Fields())
	}
	if got["Server.IdleTimeout"] {
		t.Errorf("valid idle timeout should not be reported")
	}
}
