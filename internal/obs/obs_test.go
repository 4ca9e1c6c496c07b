package obs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/madukaneranga/Kixora-sub000/internal/obs"
)

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := obs.NewStatusRecorder(rec)
	require.Equal(t, http.StatusOK, sr.Status())

	sr.WriteHeader(http.StatusTeapot)
	n, err := sr.Write([]byte("short and stout"))
	require.NoError(t, err)
	require.Equal(t, 15, n)
	require.Equal(t, http.StatusTeapot, sr.Status())
	require.Equal(t, int64(15), sr.BytesWritten())
}

func TestHTTPObsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("test", nil, reg)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	count := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/ping", "204"))
	require.Equal(t, float64(1), count)
}

func TestNewHTTPMetricsReregister(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("test", nil, reg)
	second := obs.NewHTTPMetrics("test", nil, reg)
	require.Same(t, first.ReqTotal, second.ReqTotal, "re-registration must reuse the existing collector")
}

func TestDomainMetrics(t *testing.T) {
	// safe before registration
	obs.CountScriptLoad("ok")
	obs.CountSession("completed", 50*time.Millisecond)

	obs.MustRegisterDomainMetrics("test", prometheus.NewRegistry())
	obs.MustRegisterDomainMetrics("test", prometheus.NewRegistry()) // idempotent

	obs.CountScriptLoad("ok")
	obs.CountSession("completed", 50*time.Millisecond)
	require.Equal(t, float64(1), testutil.ToFloat64(obs.ScriptLoadTotal.WithLabelValues("ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.PaymentSessionTotal.WithLabelValues("completed")))
}

func TestRoutePatternContext(t *testing.T) {
	require.Equal(t, "", obs.RoutePatternFromContext(context.Background()))
	ctx := obs.WithRoutePattern(context.Background(), "/v1/checkout/pay")
	require.Equal(t, "/v1/checkout/pay", obs.RoutePatternFromContext(ctx))
}

func TestNewLoggerLevel(t *testing.T) {
	obs.NewLogger("json", "debug")
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	obs.NewLogger("json", "not-a-level")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestRequestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := obs.RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("done"))
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout/pay", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, http.MethodPost, entry["method"])
	require.Equal(t, float64(http.StatusCreated), entry["status"])
	require.Equal(t, "/v1/checkout/pay", entry["path"])
}
