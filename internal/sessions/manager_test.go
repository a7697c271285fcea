package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking/internal/workflow"
)

var testNow = time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

type stubBackend struct {
	mu      sync.Mutex
	bookErr error
	booked  []booking.BookingRequest
}

func (b *stubBackend) GetProvider(_ context.Context, id string) (*booking.Provider, error) {
	if id != "amina" {
		return nil, booking.ErrProviderNotFound
	}
	return &booking.Provider{
		ID:       "amina",
		Name:     "Dr. Amina Yusuf",
		Services: []booking.Service{{ID: "s1", Name: "Cleaning", DurationMin: 30, Price: 200}},
	}, nil
}

func (b *stubBackend) GetAvailableSlots(_ context.Context, _ string, date booking.Date) ([]string, error) {
	if date == booking.NewDate(2025, time.June, 10) {
		return []string{"09:30", "09:00"}, nil
	}
	return []string{}, nil
}

func (b *stubBackend) BookAppointment(_ context.Context, req booking.BookingRequest) (*booking.BookingReceipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bookErr != nil {
		return nil, b.bookErr
	}
	b.booked = append(b.booked, req)
	return &booking.BookingReceipt{Reference: "BK-1001", Status: "confirmed"}, nil
}

func (b *stubBackend) setBookErr(err error) {
	b.mu.Lock()
	b.bookErr = err
	b.mu.Unlock()
}

func newTestManager(t *testing.T, backend booking.Backend, clock func() time.Time) *Manager {
	t.Helper()
	if clock == nil {
		clock = func() time.Time { return testNow }
	}
	m := NewManager(backend, Config{IdleTimeout: time.Minute, Clock: clock}, nil, nil)
	t.Cleanup(m.Shutdown)
	return m
}

func TestManagerCreateGetDelete(t *testing.T) {
	m := newTestManager(t, &stubBackend{}, nil)

	s, err := m.Create(" amina ", "front-desk")
	require.NoError(t, err)
	assert.Equal(t, "front-desk", s.Actor)
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := got.Controller.Await(ctx, func(v workflow.View) bool { return v.State == workflow.Ready })
	require.NoError(t, err)
	assert.Equal(t, "amina", v.Draft.ProviderID)

	require.NoError(t, m.Delete(s.ID))
	assert.ErrorIs(t, m.Delete(s.ID), ErrSessionNotFound)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.Controller.SetPatientName("x"), workflow.ErrWorkflowClosed)
}

func TestManagerRequiresProvider(t *testing.T) {
	m := newTestManager(t, &stubBackend{}, nil)
	_, err := m.Create("  ", "")
	assert.ErrorIs(t, err, ErrMissingProvider)
	assert.Zero(t, m.Len())
}

func TestManagerSweepEvictsIdleSessions(t *testing.T) {
	var mu sync.Mutex
	now := testNow
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
	m := newTestManager(t, &stubBackend{}, clock)

	idle, err := m.Create("amina", "")
	require.NoError(t, err)
	active, err := m.Create("amina", "")
	require.NoError(t, err)

	advance(45 * time.Second)
	_, err = m.Get(active.ID)
	require.NoError(t, err)
	advance(30 * time.Second)

	assert.Equal(t, 1, m.Sweep(clock()))
	_, err = m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(active.ID)
	assert.NoError(t, err)
}

func TestManagerTracksActiveSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	wm := metrics.NewWorkflowMetrics(reg)
	m := NewManager(&stubBackend{}, Config{Clock: func() time.Time { return testNow }}, nil, wm)

	a, _ := m.Create("amina", "")
	_, _ = m.Create("amina", "")
	require.NoError(t, m.Delete(a.ID))

	assert.Equal(t, float64(1), gaugeValue(t, reg, "medspa_booking_active_sessions"))
	m.Shutdown()
	assert.Equal(t, float64(0), gaugeValue(t, reg, "medspa_booking_active_sessions"))
}

func TestManagerRunShutsDownOnCancel(t *testing.T) {
	m := NewManager(&stubBackend{}, Config{IdleTimeout: time.Hour}, nil, nil)
	s, err := m.Create("amina", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Zero(t, m.Len())
	assert.True(t, errors.Is(s.Controller.RefreshSlots(), workflow.ErrWorkflowClosed))
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			require.NotEmpty(t, f.GetMetric())
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
