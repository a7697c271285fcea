package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWorkflowMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkflowMetrics(reg)

	m.ObserveTransition("Ready", "SlotsLoading")
	m.ObserveTransition("Ready", "Ready")
	m.ObserveSlotFetch(SlotFetchApplied, 0.2)
	m.ObserveSlotFetch(SlotFetchStale, 0.4)
	m.ObserveSlotFetch(SlotFetchStale, 0)
	m.ObserveSubmission("confirmed")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("Ready", "SlotsLoading")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
	if got := testutil.CollectAndCount(m.transitions); got != 1 {
		t.Fatalf("self transitions must not be recorded, got %d series", got)
	}
	if got := testutil.ToFloat64(m.slotFetches.WithLabelValues(SlotFetchStale)); got != 2 {
		t.Fatalf("expected 2 stale fetches, got %v", got)
	}
	if got := testutil.ToFloat64(m.activeSessions); got != 1 {
		t.Fatalf("expected 1 active session, got %v", got)
	}
}

func TestWorkflowMetricsDefaultRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewWorkflowMetrics(nil)
	m.ObserveSubmission("failed")
	if got := testutil.CollectAndCount(m.submissions); got != 1 {
		t.Fatalf("expected submissions series, got %d", got)
	}
}

func TestWorkflowMetricsNilSafe(t *testing.T) {
	var m *WorkflowMetrics
	m.ObserveTransition("a", "b")
	m.ObserveSlotFetch(SlotFetchError, 0.1)
	m.ObserveSubmission("confirmed")
	m.SessionOpened()
	m.SessionClosed()
}
