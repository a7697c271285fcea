package workflow

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/internal/observability/metrics"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

// SubmitOptions carries request metadata that isn't part of the draft.
type SubmitOptions struct {
	BookedBy       string
	IdempotencyKey string
}

// Executor performs the booking request. At most one submission runs at a time;
// a concurrent attempt is refused with ErrSubmissionInFlight.
type Executor struct {
	backend  booking.Backend
	logger   *logging.Logger
	metrics  *metrics.WorkflowMetrics
	now      func() time.Time
	inFlight atomic.Bool
}

func NewExecutor(backend booking.Backend, logger *logging.Logger, m *metrics.WorkflowMetrics, now func() time.Time) *Executor {
	if logger == nil {
		logger = logging.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Executor{backend: backend, logger: logger, metrics: m, now: now}
}

// InFlight reports whether a submission is currently running.
func (e *Executor) InFlight() bool { return e.inFlight.Load() }

// Submit books draft against provider and returns the frozen confirmation.
func (e *Executor) Submit(ctx context.Context, provider *booking.Provider, draft booking.Draft, opts SubmitOptions) (booking.ConfirmedBooking, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.metrics.ObserveSubmission("ignored")
		return booking.ConfirmedBooking{}, ErrSubmissionInFlight
	}
	defer e.inFlight.Store(false)

	if !CanSubmit(draft) {
		e.metrics.ObserveSubmission("blocked")
		return booking.ConfirmedBooking{}, ErrSubmitBlocked
	}
	svc, ok := provider.Service(draft.ServiceID)
	if !ok {
		e.metrics.ObserveSubmission("blocked")
		return booking.ConfirmedBooking{}, ErrUnknownService
	}

	ctx, span := workflowTracer.Start(ctx, "workflow.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.provider_id", draft.ProviderID),
		attribute.String("booking.service_id", draft.ServiceID),
		attribute.String("booking.date", draft.Date.String()),
		attribute.String("booking.time", draft.Time),
	)

	req := booking.RequestFromDraft(draft)
	req.BookedBy = opts.BookedBy
	req.IdempotencyKey = opts.IdempotencyKey

	receipt, err := e.backend.BookAppointment(ctx, req)
	if err != nil {
		span.RecordError(err)
		e.metrics.ObserveSubmission("failed")
		e.logger.Warn("booking submission failed",
			"provider_id", draft.ProviderID,
			"date", draft.Date.String(),
			"time", draft.Time,
			"error", err,
		)
		return booking.ConfirmedBooking{}, &SubmissionError{Err: err}
	}

	confirmed := booking.ConfirmedBooking{
		ProviderID:   provider.ID,
		ProviderName: provider.Name,
		Service:      svc,
		Date:         draft.Date,
		Time:         draft.Time,
		PatientName:  draft.PatientName,
		PatientPhone: draft.PatientPhone,
		PatientEmail: draft.PatientEmail,
		Notes:        draft.Notes,
		BookedBy:     opts.BookedBy,
		ConfirmedAt:  e.now().UTC(),
	}
	if receipt != nil {
		confirmed.Reference = receipt.Reference
	}
	e.metrics.ObserveSubmission("confirmed")
	e.logger.Info("booking confirmed",
		"provider_id", confirmed.ProviderID,
		"service_id", svc.ID,
		"date", confirmed.Date.String(),
		"time", confirmed.Time,
		"reference", confirmed.Reference,
	)
	return confirmed, nil
}
