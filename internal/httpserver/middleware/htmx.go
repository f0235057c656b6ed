package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/booking-predictor/internal/platform/requestctx"
)

type contextKey string

const htmxContextKey contextKey = "htmx.info"

// HTMXInfo captures the HX-* headers the form routes care about.
type HTMXInfo struct {
	IsHTMX  bool
	Target  string
	Trigger string
}

// HTMX annotates the context with htmx request metadata and tags the request
// logger with the triggering element and swap target.
func HTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := HTMXInfo{
				IsHTMX:  strings.EqualFold(r.Header.Get("HX-Request"), "true"),
				Target:  r.Header.Get("HX-Target"),
				Trigger: r.Header.Get("HX-Trigger"),
			}
			ctx := context.WithValue(r.Context(), htmxContextKey, info)
			if info.IsHTMX {
				w.Header().Add("Vary", "HX-Request")
				ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(
					zap.Bool("htmx", true),
					zap.String("hx_target", info.Target),
					zap.String("hx_trigger", info.Trigger),
				))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HTMXInfoFromContext retrieves HTMX metadata; returns zero value if absent.
func HTMXInfoFromContext(ctx context.Context) HTMXInfo {
	val, ok := ctx.Value(htmxContextKey).(HTMXInfo)
	if !ok {
		return HTMXInfo{}
	}
	return val
}

// IsHTMXRequest returns true when the current request was initiated by htmx.
func IsHTMXRequest(ctx context.Context) bool {
	return HTMXInfoFromContext(ctx).IsHTMX
}

// RequireHTMX answers 404 to anything but htmx so fragment routes stay hidden
// from direct navigation.
func RequireHTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsHTMXRequest(r.Context()) {
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoStore disables caching for responses that carry per-session state.
func NoStore() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store, max-age=0")
			w.Header().Set("Pragma", "no-cache")
			next.ServeHTTP(w, r)
		})
	}
}
