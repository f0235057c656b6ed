package testutil

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"finitefield.org/booking-predictor/internal/httpserver"
	"finitefield.org/booking-predictor/internal/prediction"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithEndpoint points the server at a prediction endpoint URL.
func WithEndpoint(endpoint string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.EndpointURL = endpoint
	}
}

// WithPredictor replaces the prediction client.
func WithPredictor(p prediction.Predictor) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Predictor = p
	}
}

// WithRequestTimeout bounds each prediction call.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.RequestTimeout = d
	}
}

// WithWriteTimeout sets the server write deadline enforced by the router.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.WriteTimeout = d
	}
}

// NewServer constructs an httptest server running the full HTTP stack with sensible defaults.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	cfg := httpserver.Config{
		Address:           ":0",
		EndpointURL:       "http://127.0.0.1:1/predict",
		RequestTimeout:    5 * time.Second,
		SessionSigningKey: []byte("test-session-signing-key"),
		CSRFCookieName:    "predictor_csrf",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := httpserver.New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewClient returns an HTTP client with a cookie jar that does not follow redirects.
func NewClient(t testing.TB) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// CookieValue returns the named cookie stored in client's jar for rawURL.
func CookieValue(t testing.TB, client *http.Client, rawURL, name string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
