package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"finitefield.org/booking-predictor/internal/platform/requestctx"
)

const csrfTokenContextKey contextKey = "csrf.token"

const csrfNonceBytes = 18

// CSRFConfig controls the double-submit token bound to the form session.
type CSRFConfig struct {
	CookieName string
	HeaderName string
	FieldName  string
	SigningKey []byte
	TTL        time.Duration
	Secure     bool
}

// CSRF issues a token of the form nonce.mac, where mac signs the nonce
// together with the form ID published by Session, and keeps it in a cookie.
// Unsafe methods must echo the cookie value in the header (htmx) or the form
// field (plain posts), and the cookie must still verify for the current form.
// Run it after Session.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "predictor_csrf"
	}
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}
	fieldName := cfg.FieldName
	if fieldName == "" {
		fieldName = "csrf_token"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			formID := requestctx.FormID(ctx)

			token := ""
			if c, err := r.Cookie(cookieName); err == nil && verifyCSRFToken(cfg.SigningKey, formID, c.Value) {
				token = c.Value
			}
			stale := token == ""
			if stale {
				issued, err := newCSRFToken(cfg.SigningKey, formID)
				if err != nil {
					requestctx.Logger(ctx).Error("csrf token generation failed", zap.Error(err))
					http.Error(w, "csrf token error", http.StatusInternalServerError)
					return
				}
				token = issued
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					Secure:   cfg.Secure || r.TLS != nil,
					SameSite: http.SameSiteStrictMode,
					MaxAge:   int(ttl.Seconds()),
				})
			}

			if isUnsafeMethod(r.Method) {
				submitted := r.Header.Get(headerName)
				if submitted == "" {
					submitted = r.PostFormValue(fieldName)
				}
				reason := ""
				switch {
				case stale:
					reason = "cookie missing or bound to another form"
				case submitted == "":
					reason = "token not submitted"
				case subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1:
					reason = "token mismatch"
				}
				if reason != "" {
					requestctx.Logger(ctx).Warn("csrf check rejected request", zap.String("reason", reason))
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, csrfTokenContextKey, token)))
		})
	}
}

// CSRFTokenFromContext returns the token to embed in pages and htmx headers.
func CSRFTokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(csrfTokenContextKey).(string); ok {
		return token
	}
	return ""
}

func newCSRFToken(key []byte, formID string) (string, error) {
	nonce := make([]byte, csrfNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(nonce)
	return encoded + "." + base64.RawURLEncoding.EncodeToString(csrfMAC(key, formID, encoded)), nil
}

func verifyCSRFToken(key []byte, formID, token string) bool {
	nonce, mac, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(mac)
	if err != nil {
		return false
	}
	return hmac.Equal(sig, csrfMAC(key, formID, nonce))
}

func csrfMAC(key []byte, formID, nonce string) []byte {
	return sign(key, []byte("csrf|"+formID+"|"+nonce))
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}
