package workflow

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

var workflowTracer = otel.Tracer("medspa.internal.workflow")

// SlotQuery tags one availability request with the key it was issued for.
type SlotQuery struct {
	Key    booking.SlotKey
	Seq    uint64
	issued time.Time
}

// SlotQueryClient issues availability queries and decides whether a response
// is still relevant. Only the most recently issued query is current; older
// ones are abandoned, never cancelled on the wire.
type SlotQueryClient struct {
	backend booking.Backend
	logger  *logging.Logger
	metrics *metrics.WorkflowMetrics

	mu      sync.Mutex
	seq     uint64
	current SlotQuery
	closed  bool
}

func NewSlotQueryClient(backend booking.Backend, logger *logging.Logger, m *metrics.WorkflowMetrics) *SlotQueryClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotQueryClient{backend: backend, logger: logger, metrics: m}
}

// Issue supersedes any outstanding query and returns the new current one.
func (c *SlotQueryClient) Issue(key booking.SlotKey) SlotQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.current = SlotQuery{Key: key, Seq: c.seq, issued: time.Now()}
	return c.current
}

// Invalidate makes every outstanding query stale without issuing a new one.
func (c *SlotQueryClient) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.current = SlotQuery{Seq: c.seq}
}

// Close turns every later response into a no-op.
func (c *SlotQueryClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Fetch runs q against the backend and normalizes the result.
func (c *SlotQueryClient) Fetch(ctx context.Context, q SlotQuery) (booking.SlotSet, error) {
	ctx, span := workflowTracer.Start(ctx, "workflow.fetch_slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.provider_id", q.Key.ProviderID),
		attribute.String("booking.date", q.Key.Date.String()),
		attribute.Int64("booking.slot_query_seq", int64(q.Seq)),
	)

	raw, err := c.backend.GetAvailableSlots(ctx, q.Key.ProviderID, q.Key.Date)
	if err != nil {
		span.RecordError(err)
		return booking.SlotSet{}, &SlotFetchError{Key: q.Key, Err: err}
	}
	set, dropped := booking.NewSlotSet(q.Key, raw)
	if len(dropped) > 0 {
		c.logger.Warn("dropped malformed slot times",
			"provider_id", q.Key.ProviderID,
			"date", q.Key.Date.String(),
			"dropped", dropped,
		)
	}
	span.SetAttributes(attribute.Int("booking.slot_count", set.Len()))
	return set, nil
}

// Resolve reports whether the response to q may be applied: q must still be
// the current query and its key must equal the draft's key at resolution time.
// fetchErr only affects the recorded outcome.
func (c *SlotQueryClient) Resolve(q SlotQuery, draftKey booking.SlotKey, fetchErr error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(q.issued).Seconds()
	switch {
	case c.closed:
		c.metrics.ObserveSlotFetch(metrics.SlotFetchAfterStop, elapsed)
		return false
	case q.Seq != c.current.Seq || q.Key != draftKey:
		c.metrics.ObserveSlotFetch(metrics.SlotFetchStale, elapsed)
		c.logger.Debug("discarding stale slot response",
			"query", q.Key.String(),
			"current", draftKey.String(),
		)
		return false
	case fetchErr != nil:
		c.metrics.ObserveSlotFetch(metrics.SlotFetchError, elapsed)
		return true
	default:
		c.metrics.ObserveSlotFetch(metrics.SlotFetchApplied, elapsed)
		return true
	}
}
