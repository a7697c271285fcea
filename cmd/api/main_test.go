package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/medspa-booking/internal/app/bootstrap"
	"github.com/wolfman30/medspa-booking/internal/booking"
	appconfig "github.com/wolfman30/medspa-booking/internal/config"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

type emptyBackend struct{}

func (emptyBackend) GetProvider(context.Context, string) (*booking.Provider, error) {
	return nil, booking.ErrProviderNotFound
}

func (emptyBackend) GetAvailableSlots(context.Context, string, booking.Date) ([]string, error) {
	return []string{}, nil
}

func (emptyBackend) BookAppointment(context.Context, booking.BookingRequest) (*booking.BookingReceipt, error) {
	return nil, booking.ErrSlotTaken
}

func TestSetupMetricsExposesWorkflowMetrics(t *testing.T) {
	handler, wm := setupMetrics()
	if handler == nil || wm == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	wm.ObserveSubmission("success")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "medspa_booking_submissions_total") {
		t.Fatalf("expected submission counter to be exported")
	}
}

func TestBuildAppServesHealthAndSessions(t *testing.T) {
	cfg := &appconfig.Config{Timezone: "UTC", Currency: "USD", RateLimitRPS: 100, RateLimitBurst: 100}
	handler, wm := setupMetrics()
	app, err := buildApp(cfg, &bootstrap.Runtime{Backend: emptyBackend{}}, logging.New("error"), wm, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(app.manager.Shutdown)

	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"provider_id":"amina"}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if app.manager.Len() != 1 {
		t.Fatalf("expected one session, got %d", app.manager.Len())
	}
}

func TestBuildAppRejectsBadTimezone(t *testing.T) {
	cfg := &appconfig.Config{Timezone: "Nowhere/Land"}
	if _, err := buildApp(cfg, &bootstrap.Runtime{Backend: emptyBackend{}}, logging.New("error"), nil, nil); err == nil {
		t.Fatalf("expected error for invalid timezone")
	}
}
