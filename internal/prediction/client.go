package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"finitefield.org/booking-predictor/internal/platform/requestctx"
)

// Result labels shown to the user.
const (
	LabelLikely    = "Likely to cancel"
	LabelNotLikely = "Not likely to cancel"
)

// Outcome labels used for metrics and logs.
const (
	OutcomeLikely        = "likely"
	OutcomeNotLikely     = "not_likely"
	OutcomeResponseError = "response_error"
	OutcomeInvalid       = "invalid"
	OutcomeFailure       = "failure"
	OutcomeCanceled      = "canceled"
)

const maxResponseBytes = 64 << 10

var tracer = otel.Tracer("finitefield.org/booking-predictor/internal/prediction")

// ErrCanceled is returned when the caller cancels an in-flight prediction.
var ErrCanceled = errors.New("prediction: canceled")

var errMalformedResponse = errors.New("prediction: response is not a JSON object")

// Result is the classified answer from the endpoint.
type Result struct {
	Cancel bool
	Label  string
}

// ResponseError reports that the endpoint answered with a non-success status.
type ResponseError struct {
	StatusCode int
	Body       []byte
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("Request failed with status code %d", e.StatusCode)
}

// Recorder receives one observation per settled prediction call.
type Recorder interface {
	ObservePrediction(outcome string, elapsed time.Duration)
}

// Predictor is the behaviour the form depends on.
type Predictor interface {
	Predict(ctx context.Context, req Request) (Result, error)
}

// Client posts prediction requests to a remote endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	recorder Recorder
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for outbound calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// NewClient constructs a client for endpoint. Timeouts come from the caller's context.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimSpace(endpoint),
		http:     &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Predict sends exactly one POST with req and classifies the response.
func (c *Client) Predict(ctx context.Context, req Request) (result Result, err error) {
	ctx, span := tracer.Start(ctx, "prediction.Predict", trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	defer func() {
		outcome := Outcome(result, err)
		span.SetAttributes(attribute.String("prediction.outcome", outcome))
		if err != nil && !errors.Is(err, ErrCanceled) {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		if c.recorder != nil {
			c.recorder.ObservePrediction(outcome, time.Since(start))
		}
	}()
	span.SetAttributes(
		attribute.String("prediction.deposit_type", req.DepositType),
		attribute.String("prediction.country", req.Country),
	)
	if id := requestctx.SubmissionID(ctx); id != "" {
		span.SetAttributes(attribute.String("prediction.submission_id", id))
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("prediction: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("prediction: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Result{}, ErrCanceled
		}
		return Result{}, fmt.Errorf("prediction: post: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Result{}, ErrCanceled
		}
		return Result{}, fmt.Errorf("prediction: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &ResponseError{StatusCode: resp.StatusCode, Body: body}
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Result{}, fmt.Errorf("prediction: decode response: %w", err)
	}
	if decoded == nil {
		return Result{}, errMalformedResponse
	}
	return NewResult(truthy(decoded["prediction"])), nil
}

// NewResult maps the endpoint verdict to its label.
func NewResult(cancel bool) Result {
	if cancel {
		return Result{Cancel: true, Label: LabelLikely}
	}
	return Result{Cancel: false, Label: LabelNotLikely}
}

// Outcome classifies a settled call for metrics and logs.
func Outcome(result Result, err error) string {
	var respErr *ResponseError
	var validationErr *ValidationError
	switch {
	case err == nil && result.Cancel:
		return OutcomeLikely
	case err == nil:
		return OutcomeNotLikely
	case errors.Is(err, ErrCanceled):
		return OutcomeCanceled
	case errors.As(err, &respErr):
		return OutcomeResponseError
	case errors.As(err, &validationErr):
		return OutcomeInvalid
	default:
		return OutcomeFailure
	}
}

// truthy follows JavaScript truthiness for decoded JSON values.
func truthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case float64:
		return value != 0
	case string:
		return value != ""
	default:
		return true
	}
}
