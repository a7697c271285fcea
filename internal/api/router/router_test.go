package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking/internal/booking"
	httpmiddleware "github.com/wolfman30/medspa-booking/internal/http/middleware"
	"github.com/wolfman30/medspa-booking/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking/internal/sessions"
	"github.com/wolfman30/medspa-booking/internal/workflow"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

type emptyBackend struct{}

func (emptyBackend) GetProvider(_ context.Context, id string) (*booking.Provider, error) {
	return &booking.Provider{ID: id, Name: "Provider " + id}, nil
}

func (emptyBackend) GetAvailableSlots(context.Context, string, booking.Date) ([]string, error) {
	return []string{}, nil
}

func (emptyBackend) BookAppointment(context.Context, booking.BookingRequest) (*booking.BookingReceipt, error) {
	return nil, errors.New("not implemented")
}

func newTestRouter(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	wm := metrics.NewWorkflowMetrics(reg)
	manager := sessions.NewManager(emptyBackend{}, sessions.Config{IdleTimeout: time.Minute}, nil, wm)
	t.Cleanup(manager.Shutdown)

	cfg.Logger = logging.Default()
	cfg.Sessions = sessions.NewHandler(manager, workflow.NewPresenter(""), cfg.Logger)
	cfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return New(&cfg)
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, Config{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthDegraded(t *testing.T) {
	h := newTestRouter(t, Config{Ready: func() error { return errors.New("redis unreachable") }})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis unreachable")
}

func TestSessionsMountedAndMetricsExposed(t *testing.T) {
	h := newTestRouter(t, Config{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"provider_id":"amina"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "medspa_booking_active_sessions 1")
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	h := newTestRouter(t, Config{RateLimiter: httpmiddleware.NewRateLimiter(0.001, 1)})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/unknown", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t, Config{CORSAllowedOrigins: []string{"https://book.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/sessions", nil)
	req.Header.Set("Origin", "https://book.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://book.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
