// Package requestctx carries per-request state between middleware, handlers
// and the prediction client: the scoped logger, trace metadata and the
// form and submission a request works on.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	traceKey
	scopeKey
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Scope records which form instance and submission a request touched. It is
// attached by the outermost middleware and filled in further down, so the
// completion log and error envelope can report identifiers that are only
// known once the session cookie is read or a submission starts.
type Scope struct {
	mu           sync.RWMutex
	formID       string
	submissionID string
}

// FormID returns the form instance bound to the request.
func (s *Scope) FormID() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.formID
}

// SubmissionID returns the submission started by the request, if any.
func (s *Scope) SubmissionID() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submissionID
}

// Fields renders the recorded identifiers as log fields.
func (s *Scope) Fields() []zap.Field {
	var fields []zap.Field
	if id := s.FormID(); id != "" {
		fields = append(fields, zap.String("form_id", id))
	}
	if id := s.SubmissionID(); id != "" {
		fields = append(fields, zap.String("submission_id", id))
	}
	return fields
}

// WithScope attaches an empty Scope unless the context already carries one.
func WithScope(ctx context.Context) (context.Context, *Scope) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s, ok := ctx.Value(scopeKey).(*Scope); ok && s != nil {
		return ctx, s
	}
	s := &Scope{}
	return context.WithValue(ctx, scopeKey, s), s
}

// ScopeFrom returns the Scope on ctx or nil.
func ScopeFrom(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey).(*Scope)
	return s
}

// WithFormID binds the request to a form instance and tags its logger.
func WithFormID(ctx context.Context, id string) context.Context {
	ctx, s := WithScope(ctx)
	s.mu.Lock()
	s.formID = id
	s.mu.Unlock()
	return WithLogger(ctx, Logger(ctx).With(zap.String("form_id", id)))
}

// WithSubmissionID records the submission started by the request and tags its logger.
func WithSubmissionID(ctx context.Context, id string) context.Context {
	ctx, s := WithScope(ctx)
	s.mu.Lock()
	s.submissionID = id
	s.mu.Unlock()
	return WithLogger(ctx, Logger(ctx).With(zap.String("submission_id", id)))
}

// FormID returns the form instance bound to ctx.
func FormID(ctx context.Context) string {
	return ScopeFrom(ctx).FormID()
}

// SubmissionID returns the submission recorded on ctx.
func SubmissionID(ctx context.Context) string {
	return ScopeFrom(ctx).SubmissionID()
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger is the logger returned when none was injected.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}
