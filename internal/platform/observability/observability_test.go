package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/booking-predictor/internal/platform/requestctx"
)

func TestRequestLoggerMiddlewareLogsCompletion(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := InjectLoggerMiddleware(logger)(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotSame(t, requestctx.NoopLogger(), requestctx.Logger(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTeapot, rr.Code)
	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	require.Equal(t, zap.WarnLevel, entries[0].Level)
	require.EqualValues(t, http.StatusTeapot, entries[0].ContextMap()["status"])
}

func TestRequestLoggerReportsFormAndSubmission(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestctx.WithFormID(r.Context(), "form-7")
		ctx = requestctx.WithSubmissionID(ctx, "01HXSUB")
		requestctx.Logger(ctx).Info("prediction settled")
		w.WriteHeader(http.StatusOK)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/predict", nil))

	settled := logs.FilterMessage("prediction settled").All()
	require.Len(t, settled, 1)
	require.Equal(t, "form-7", settled[0].ContextMap()["form_id"])

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	fields := completed[0].ContextMap()
	require.Equal(t, "form-7", fields["form_id"])
	require.Equal(t, "01HXSUB", fields["submission_id"])
	require.Equal(t, "/predict", fields["route"])
}

func TestCleanStripsControlCharacters(t *testing.T) {
	require.Equal(t, "/predictforged", clean("/predict\r\nforged", 180))
	require.Equal(t, "ééé", clean("éééé", 3))

	req := httptest.NewRequest(http.MethodGet, "/panel", nil)
	require.Equal(t, "/panel", routeLabel(req))
	require.Equal(t, "GET /panel", spanNameFromRequest(req))
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	t.Run("page routes get plain text", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusInternalServerError, rr.Code)
		require.Contains(t, rr.Body.String(), "Internal Server Error")
	})

	t.Run("api routes get json", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/predictions", nil))
		require.Equal(t, http.StatusInternalServerError, rr.Code)
		require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		require.Contains(t, rr.Body.String(), "internal_server_error")
	})

	require.Equal(t, 2, logs.FilterMessage("panic recovered").Len())
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	var seen bool
	handler := TraceMiddleware("demo")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := requestctx.Trace(r.Context())
		seen = ok && info.ProjectID == "demo"
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, seen)
}

func TestMetricsObservePrediction(t *testing.T) {
	m := NewMetrics()
	m.ObservePrediction("likely", 120*time.Millisecond)
	m.ObservePrediction("likely", 80*time.Millisecond)
	m.ObservePrediction("failure", time.Second)

	require.Equal(t, 2.0, testutil.ToFloat64(m.predictions.WithLabelValues("likely")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.predictions.WithLabelValues("failure")))

	m.RegisterGauge("form_instances", "Live form instances.", func() float64 { return 3 })

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "booking_predictor_predictions_total"))
	require.True(t, strings.Contains(string(body), "booking_predictor_form_instances 3"))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("not-a-level")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zap.DebugLevel))
	require.True(t, logger.Core().Enabled(zap.InfoLevel))

	debug, err := NewLogger("debug")
	require.NoError(t, err)
	require.True(t, debug.Core().Enabled(zap.DebugLevel))
}
