package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Endpoint is a fake prediction service that records what it receives.
type Endpoint struct {
	*httptest.Server

	mu       sync.Mutex
	requests []map[string]any
}

// NewEndpoint starts a fake prediction service answering with status and body.
func NewEndpoint(t testing.TB, status int, body string) *Endpoint {
	t.Helper()
	return NewEndpointFunc(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

// NewEndpointFunc starts a fake prediction service with a custom responder.
func NewEndpointFunc(t testing.TB, respond http.HandlerFunc) *Endpoint {
	t.Helper()
	e := &Endpoint{}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		e.mu.Lock()
		e.requests = append(e.requests, payload)
		e.mu.Unlock()
		respond(w, r)
	}))
	t.Cleanup(e.Server.Close)
	return e
}

// Requests returns the decoded payloads received so far.
func (e *Endpoint) Requests() []map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]map[string]any, len(e.requests))
	copy(out, e.requests)
	return out
}
