package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/booking-predictor/internal/content"
	"finitefield.org/booking-predictor/internal/form"
	custommw "finitefield.org/booking-predictor/internal/httpserver/middleware"
	"finitefield.org/booking-predictor/internal/platform/observability"
	"finitefield.org/booking-predictor/internal/prediction"
	"finitefield.org/booking-predictor/public"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultWriteTimeout   = 60 * time.Second
	csrfHeaderName        = "X-CSRF-Token"
	csrfFieldName         = "csrf_token"
)

// Config holds runtime options for the HTTP server.
type Config struct {
	Address        string
	Logger         *zap.Logger
	EndpointURL    string
	Predictor      prediction.Predictor
	Forms          *form.Store
	Catalog        *content.Catalog
	Metrics        *observability.Metrics
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration

	SessionCookieName string
	SessionSigningKey []byte
	SessionTTL        time.Duration
	SecureCookies     bool
	CSRFCookieName    string
	TraceProjectID    string
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) (*http.Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	if requestTimeout >= writeTimeout {
		clamped := writeTimeout / 2
		logger.Warn("prediction timeout clamped below the write timeout",
			zap.Duration("request_timeout", requestTimeout),
			zap.Duration("write_timeout", writeTimeout),
			zap.Duration("clamped", clamped),
		)
		requestTimeout = clamped
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	predictor := cfg.Predictor
	if predictor == nil {
		predictor = prediction.NewClient(cfg.EndpointURL, prediction.WithRecorder(metrics))
	}

	forms := cfg.Forms
	if forms != nil && forms.RequestTimeout() >= writeTimeout {
		return nil, fmt.Errorf("httpserver: form request timeout %s must be shorter than write timeout %s", forms.RequestTimeout(), writeTimeout)
	}
	if forms == nil {
		forms = form.NewStore(predictor,
			form.WithRequestTimeout(requestTimeout),
			form.WithTTL(cfg.SessionTTL),
		)
	}
	metrics.RegisterGauge("form_instances", "Form instances held in memory.", func() float64 {
		return float64(forms.Len())
	})

	var catalog content.Catalog
	if cfg.Catalog != nil {
		catalog = *cfg.Catalog
	} else {
		loaded, err := content.Load()
		if err != nil {
			return nil, err
		}
		catalog = loaded
	}

	signingKey := cfg.SessionSigningKey
	if len(signingKey) == 0 {
		key, err := custommw.NewSigningKey()
		if err != nil {
			return nil, fmt.Errorf("httpserver: generate session key: %w", err)
		}
		signingKey = key
		logger.Warn("using ephemeral session signing key; set PREDICTOR_SESSION_SIGNING_KEY to keep sessions across restarts")
	}

	staticContent, err := public.StaticFS()
	if err != nil {
		return nil, fmt.Errorf("httpserver: embed static: %w", err)
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.TraceMiddleware(cfg.TraceProjectID))
	router.Use(observability.InjectLoggerMiddleware(logger))
	router.Use(observability.RequestLoggerMiddleware())
	router.Use(observability.RecoveryMiddleware(logger))
	router.Use(chimw.Compress(5))
	router.Use(chimw.Timeout(writeTimeout))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", metrics.Handler())
	router.Handle("/public/static/*", http.StripPrefix("/public/static/", http.FileServer(http.FS(staticContent))))

	h := &handlers{
		forms:          forms,
		catalog:        catalog,
		predictor:      predictor,
		requestTimeout: requestTimeout,
	}

	router.Post("/api/predictions", h.APIPredict)

	mountFormRoutes(router, h, routeOptions{
		Session: custommw.SessionConfig{
			CookieName: cfg.SessionCookieName,
			SigningKey: signingKey,
			TTL:        cfg.SessionTTL,
			Secure:     cfg.SecureCookies,
		},
		CSRF: custommw.CSRFConfig{
			CookieName: cfg.CSRFCookieName,
			HeaderName: csrfHeaderName,
			FieldName:  csrfFieldName,
			SigningKey: signingKey,
			TTL:        cfg.SessionTTL,
			Secure:     cfg.SecureCookies,
		},
	})

	return &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}, nil
}

type routeOptions struct {
	Session custommw.SessionConfig
	CSRF    custommw.CSRFConfig
}

func mountFormRoutes(router chi.Router, h *handlers, opts routeOptions) {
	router.Group(func(r chi.Router) {
		r.Use(custommw.HTMX())
		r.Use(custommw.NoStore())
		r.Use(custommw.Session(opts.Session))
		r.Use(custommw.CSRF(opts.CSRF))

		r.Get("/", h.Page)
		r.Post("/form/fields/{name}", h.FieldChange)
		r.Post("/predict", h.Predict)
		r.Post("/predict/cancel", h.Cancel)
		RegisterFragment(r, "/panel", h.Panel)
	})
}

// RegisterFragment registers a GET handler intended for htmx fragment rendering.
func RegisterFragment(r chi.Router, pattern string, handler http.HandlerFunc) {
	r.With(custommw.RequireHTMX()).Get(pattern, handler)
}
