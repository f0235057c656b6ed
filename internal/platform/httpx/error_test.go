package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finitefield.org/booking-predictor/internal/platform/requestctx"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return payload
}

func TestWriteErrorIncludesTraceAndDetails(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, ErrorFor(CodeInvalidInput, "bad\nvalue").
		WithDetails(map[string]any{"fields": map[string]string{"adr": "required"}}))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	payload := decode(t, rr)
	if payload["error"] != CodeInvalidInput {
		t.Errorf("unexpected error code %v", payload["error"])
	}
	if msg, _ := payload["message"].(string); strings.Contains(msg, "\n") || msg != "bad value" {
		t.Errorf("message should be single line, got %q", msg)
	}
	if payload["trace_id"] != "abc123" {
		t.Errorf("expected trace id, got %v", payload["trace_id"])
	}
	if _, ok := payload["fields"]; !ok {
		t.Errorf("expected details to be merged into payload")
	}
	if _, ok := payload["form_id"]; ok {
		t.Errorf("form id should be omitted when unknown")
	}
}

func TestWriteErrorCarriesFormAndSubmission(t *testing.T) {
	ctx := requestctx.WithFormID(context.Background(), "form-9")
	ctx = requestctx.WithSubmissionID(ctx, "01HXSUB")
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, ErrorFor(CodeUpstreamError, "Request failed with status code 500").
		WithDetails(map[string]any{"error": "overridden", "upstream_status": 500}))

	payload := decode(t, rr)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if payload["form_id"] != "form-9" || payload["submission_id"] != "01HXSUB" {
		t.Errorf("expected scope ids, got %v", payload)
	}
	if payload["error"] != CodeUpstreamError {
		t.Errorf("details must not override the code, got %v", payload["error"])
	}
}

func TestStatusForCodes(t *testing.T) {
	cases := map[string]int{
		CodeInvalidJSON:           http.StatusBadRequest,
		CodeInvalidInput:          http.StatusUnprocessableEntity,
		CodeUpstreamError:         http.StatusBadGateway,
		CodeCanceled:              http.StatusServiceUnavailable,
		CodePredictionUnavailable: http.StatusServiceUnavailable,
		"unknown":                 http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := StatusFor(code); got != want {
			t.Errorf("StatusFor(%q) = %d, want %d", code, got, want)
		}
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	err := NewError("boom", "failure", 0)
	if err.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", err.Status)
	}
}
