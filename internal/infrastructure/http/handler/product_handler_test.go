package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mrops-br/product-store/internal/app/dto"
	"github.com/mrops-br/product-store/internal/app/service"
	"github.com/mrops-br/product-store/internal/domain"
	"github.com/mrops-br/product-store/internal/infrastructure/http/response"
	"github.com/mrops-br/product-store/internal/infrastructure/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type unavailableRepository struct {
	domain.ProductRepository
}

func (unavailableRepository) Count(context.Context) (int64, error) {
	return 0, domain.NewUnavailableError("redis", "count", errors.New("connection refused"))
}

func newRouter(repo domain.ProductRepository) http.Handler {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	svc := service.NewProductService(repo,
		tracenoop.NewTracerProvider().Tracer("test"),
		metricnoop.NewMeterProvider().Meter("test"),
		logger,
	)

	r := chi.NewRouter()
	r.Route("/products", NewProductHandler(svc, logger).Register)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestProductLifecycle(t *testing.T) {
	h := newRouter(memory.NewProductRepository())

	rec := do(t, h, http.MethodPost, "/products", `{"name":"Widget","description":"Blue","price":9.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/products/1", rec.Header().Get("Location"))
	created := decodeBody[dto.ProductResponse](t, rec)
	assert.Equal(t, int64(1), created.ID)

	rec = do(t, h, http.MethodGet, "/products/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Widget", decodeBody[dto.ProductResponse](t, rec).Name)

	rec = do(t, h, http.MethodPut, "/products/1", `{"name":"Gadget","price":12}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Gadget", decodeBody[dto.ProductResponse](t, rec).Name)

	rec = do(t, h, http.MethodGet, "/products/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decodeBody[dto.CountResponse](t, rec).Count)

	rec = do(t, h, http.MethodDelete, "/products/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/products/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody[response.ErrorResponse](t, rec).Error)
}

func TestListProductsPaging(t *testing.T) {
	h := newRouter(memory.NewProductRepository())
	for _, body := range []string{
		`{"name":"c","price":3}`,
		`{"name":"a","price":1}`,
		`{"name":"b","price":2}`,
	} {
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/products", body).Code)
	}

	rec := do(t, h, http.MethodGet, "/products?page=1&size=2&sort=price,desc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[dto.ProductPageResponse](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].Name)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 2, page.TotalPages)

	rec = do(t, h, http.MethodGet, "/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[dto.ProductPageResponse](t, rec).Items, 3)
}

func TestBadRequests(t *testing.T) {
	h := newRouter(memory.NewProductRepository())

	tests := []struct {
		name, method, target, body string
	}{
		{name: "malformed body", method: http.MethodPost, target: "/products", body: `{"name":`},
		{name: "missing name", method: http.MethodPost, target: "/products", body: `{"price":1}`},
		{name: "non-positive price", method: http.MethodPost, target: "/products", body: `{"name":"x","price":0}`},
		{name: "non-numeric id", method: http.MethodGet, target: "/products/abc"},
		{name: "zero id", method: http.MethodDelete, target: "/products/0"},
		{name: "negative page", method: http.MethodGet, target: "/products?page=-1&size=5"},
		{name: "page without size", method: http.MethodGet, target: "/products?page=2"},
		{name: "non-numeric size", method: http.MethodGet, target: "/products?size=ten"},
		{name: "unknown sort field", method: http.MethodGet, target: "/products?sort=colour"},
		{name: "size above maximum", method: http.MethodGet, target: "/products?size=1001"},
		{name: "max int size", method: http.MethodGet, target: "/products?page=1&size=9223372036854775807"},
		{name: "overflowing page", method: http.MethodGet, target: "/products?page=9223372036854775807&size=1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "bad_request", decodeBody[response.ErrorResponse](t, rec).Error)
		})
	}
}

func TestUpdateUnknownProduct(t *testing.T) {
	h := newRouter(memory.NewProductRepository())
	rec := do(t, h, http.MethodPut, "/products/77", `{"name":"x","price":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStorageUnavailable(t *testing.T) {
	h := newRouter(unavailableRepository{})
	rec := do(t, h, http.MethodGet, "/products/count", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service_unavailable", decodeBody[response.ErrorResponse](t, rec).Error)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(domain.NewConstraintError("postgres", "save", errors.New("duplicate key"))))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(domain.NewUnavailableError("mongodb", "count", errors.New("timeout"))))
	assert.Equal(t, http.StatusInternalServerError, statusFor(domain.NewStorageError("sqlite", "count", errors.New("disk I/O error"))))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrProductNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrInvalidID))
}
