package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"finitefield.org/booking-predictor/internal/platform/requestctx"
)

const (
	defaultSessionCookie  = "predictor_session"
	defaultSessionTTL     = 2 * time.Hour
	ephemeralKeyByteCount = 32
)

// SessionConfig controls the signed session cookie that binds a browser to its form.
type SessionConfig struct {
	CookieName string
	SigningKey []byte
	TTL        time.Duration
	Secure     bool
	Now        func() time.Time
}

type sessionPayload struct {
	ID       string `json:"id"`
	IssuedAt int64  `json:"iat"`
}

// NewSigningKey returns a random key for processes started without one.
func NewSigningKey() ([]byte, error) {
	key := make([]byte, ephemeralKeyByteCount)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Session binds the request to a form instance. The form ID travels in a
// signed cookie that is issued when missing, tampered with or expired, and
// re-issued once half of its lifetime has passed. The ID is published through
// requestctx so loggers and error envelopes carry it.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = defaultSessionCookie
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	key := cfg.SigningKey

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := now()
			payload, ok := readSessionCookie(r, cookieName, key)
			expired := ok && current.Sub(time.Unix(payload.IssuedAt, 0)) > ttl
			if !ok || expired {
				payload = sessionPayload{ID: uuid.NewString(), IssuedAt: current.Unix()}
				writeSessionCookie(w, r, cookieName, key, payload, ttl, cfg.Secure)
			} else if current.Sub(time.Unix(payload.IssuedAt, 0)) > ttl/2 {
				payload.IssuedAt = current.Unix()
				writeSessionCookie(w, r, cookieName, key, payload, ttl, cfg.Secure)
			}

			next.ServeHTTP(w, r.WithContext(requestctx.WithFormID(r.Context(), payload.ID)))
		})
	}
}

func readSessionCookie(r *http.Request, name string, key []byte) (sessionPayload, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return sessionPayload{}, false
	}
	encoded, signature, ok := strings.Cut(c.Value, ".")
	if !ok {
		return sessionPayload{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return sessionPayload{}, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return sessionPayload{}, false
	}
	if !hmac.Equal(sig, sign(key, raw)) {
		return sessionPayload{}, false
	}
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return sessionPayload{}, false
	}
	if _, err := uuid.Parse(payload.ID); err != nil {
		return sessionPayload{}, false
	}
	return payload, true
}

func writeSessionCookie(w http.ResponseWriter, r *http.Request, name string, key []byte, payload sessionPayload, ttl time.Duration, secure bool) {
	raw, _ := json.Marshal(payload)
	value := base64.RawURLEncoding.EncodeToString(raw) + "." + base64.RawURLEncoding.EncodeToString(sign(key, raw))
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func sign(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}
