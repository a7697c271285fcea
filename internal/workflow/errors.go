package workflow

import (
	"errors"
	"fmt"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

var (
	// ErrSubmitBlocked means the validation gate is closed. Not a fault: the
	// submit action is simply unavailable.
	ErrSubmitBlocked      = errors.New("workflow: submission blocked until required fields are set")
	ErrSubmissionInFlight = errors.New("workflow: submission already in progress")
	ErrDateInPast         = errors.New("workflow: date is before today")
	ErrInvalidDate        = errors.New("workflow: date is required")
	ErrSlotUnavailable    = errors.New("workflow: time is not an available slot")
	ErrUnknownService     = errors.New("workflow: service not offered by provider")
	ErrNotReady           = errors.New("workflow: provider not loaded")
	ErrWorkflowFinished   = errors.New("workflow: booking already confirmed")
	ErrWorkflowClosed     = errors.New("workflow: closed")
)

// SlotFetchError is a transient availability query failure for Key.
type SlotFetchError struct {
	Key booking.SlotKey
	Err error
}

func (e *SlotFetchError) Error() string {
	return fmt.Sprintf("workflow: fetch slots for %s: %v", e.Key, e.Err)
}

func (e *SlotFetchError) Unwrap() error { return e.Err }

// SubmissionError is a transient booking failure; the draft is preserved.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("workflow: submit booking: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
