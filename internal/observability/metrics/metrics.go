package metrics

import "github.com/prometheus/client_golang/prometheus"

// Slot fetch outcomes.
const (
	SlotFetchApplied   = "applied"
	SlotFetchStale     = "stale"
	SlotFetchError     = "error"
	SlotFetchAfterStop = "after_close"
)

// WorkflowMetrics exposes counters/histograms for booking workflows.
type WorkflowMetrics struct {
	transitions    *prometheus.CounterVec
	slotFetches    *prometheus.CounterVec
	slotLatency    prometheus.Histogram
	submissions    *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	m := &WorkflowMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "booking",
			Name:      "state_transitions_total",
			Help:      "Workflow state transitions",
		}, []string{"from", "to"}),
		slotFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "booking",
			Name:      "slot_fetch_total",
			Help:      "Slot availability responses by outcome",
		}, []string{"outcome"}),
		slotLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medspa",
			Subsystem: "booking",
			Name:      "slot_fetch_seconds",
			Help:      "Latency of slot availability queries",
			Buckets:   prometheus.DefBuckets,
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medspa",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Booking submissions by outcome",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medspa",
			Subsystem: "booking",
			Name:      "active_sessions",
			Help:      "Booking sessions currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.slotFetches, m.slotLatency, m.submissions, m.activeSessions)
	return m
}

func (m *WorkflowMetrics) ObserveTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *WorkflowMetrics) ObserveSlotFetch(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.slotFetches.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		m.slotLatency.Observe(seconds)
	}
}

func (m *WorkflowMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *WorkflowMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *WorkflowMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
