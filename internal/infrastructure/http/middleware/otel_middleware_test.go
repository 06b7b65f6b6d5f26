package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mrops-br/product-store/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestHTTPRouteContextUsesPattern(t *testing.T) {
	var route string
	r := chi.NewRouter()
	r.Use(HTTPRouteContext())
	r.Route("/products", func(r chi.Router) {
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			route = telemetry.HTTPRouteFromContext(r.Context())
		})
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/42", nil))
	assert.Equal(t, "/products/{id}", route)
}

func TestRoutePatternWithoutRouter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	assert.Equal(t, "/nowhere", RoutePattern(req))
}

func TestDurationMillisecondsMiddleware(t *testing.T) {
	mp, reader := newMeter(t)

	r := chi.NewRouter()
	r.Use(DurationMillisecondsMiddleware(mp.Meter("test")))
	r.Get("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/7", nil))

	m, ok := findMetric(t, reader, "http.server.request.duration.ms")
	require.True(t, ok)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)

	dp := hist.DataPoints[0]
	assert.Equal(t, uint64(1), dp.Count)
	route, _ := dp.Attributes.Value(attribute.Key("http.route"))
	assert.Equal(t, "/products/{id}", route.AsString())
	status, _ := dp.Attributes.Value(attribute.Key("http.response.status_code"))
	assert.Equal(t, int64(http.StatusTeapot), status.AsInt64())
}

func TestActiveRequestsReturnsToZero(t *testing.T) {
	mp, reader := newMeter(t)

	var inFlight int64
	r := chi.NewRouter()
	r.Use(ActiveRequestsMiddleware(mp.Meter("test")))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		m, ok := findMetric(t, reader, "http.server.active_requests")
		require.True(t, ok)
		inFlight = m.Data.(metricdata.Sum[int64]).DataPoints[0].Value
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, int64(1), inFlight)

	m, ok := findMetric(t, reader, "http.server.active_requests")
	require.True(t, ok)
	sum := m.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.Zero(t, sum.DataPoints[0].Value)
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(StructuredLogger(logger))
	r.Get("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/1?x=y", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "/products/{id}", entry["http.route"])
	assert.Equal(t, "x=y", entry["url.query"])
	assert.Equal(t, float64(http.StatusNotFound), entry["http.response.status_code"])
}
