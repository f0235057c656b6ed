package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"finitefield.org/booking-predictor/internal/platform/requestctx"
)

// Error codes returned by the JSON routes.
const (
	CodeInvalidJSON           = "invalid_json"
	CodeInvalidInput          = "invalid_input"
	CodeUpstreamError         = "upstream_error"
	CodeCanceled              = "canceled"
	CodePredictionUnavailable = "prediction_unavailable"
	CodeInternal              = "internal_server_error"
)

var codeStatus = map[string]int{
	CodeInvalidJSON:           http.StatusBadRequest,
	CodeInvalidInput:          http.StatusUnprocessableEntity,
	CodeUpstreamError:         http.StatusBadGateway,
	CodeCanceled:              http.StatusServiceUnavailable,
	CodePredictionUnavailable: http.StatusServiceUnavailable,
	CodeInternal:              http.StatusInternalServerError,
}

// Error is the JSON error envelope. Request, trace, form and submission IDs
// are read from the request context when it is written.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an envelope with an explicit status. Zero means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    singleLine(code, 80),
		Message: singleLine(message, 512),
		Status:  status,
	}
}

// ErrorFor builds an envelope for one of the Code constants using its status.
func ErrorFor(code, message string) Error {
	return NewError(code, message, StatusFor(code))
}

// StatusFor returns the HTTP status registered for code, or 500.
func StatusFor(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WithDetails merges extra top-level keys into the envelope.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WriteError writes err as JSON, tagged with the identifiers found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = StatusFor(err.Code)
	}

	payload := make(map[string]any, len(err.Details)+7)
	for k, v := range err.Details {
		payload[k] = v
	}
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = status

	ids := map[string]string{
		"request_id":    singleLine(middleware.GetReqID(ctx), 80),
		"trace_id":      singleLine(requestctx.TraceID(ctx), 64),
		"form_id":       singleLine(requestctx.FormID(ctx), 64),
		"submission_id": singleLine(requestctx.SubmissionID(ctx), 64),
	}
	for key, id := range ids {
		if id != "" {
			payload[key] = id
		}
	}

	WriteJSON(w, status, payload)
}

// WriteJSON encodes the payload with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// singleLine collapses whitespace runs (newlines included) and caps the rune count.
func singleLine(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if utf8.RuneCountInString(value) > limit {
		value = string([]rune(value)[:limit])
	}
	return value
}
