// Package booking holds the booking domain types and the Backend interface
// that every availability service adapter (HTTP, Postgres, cached) implements.
package booking

import (
	"context"
	"errors"
)

var (
	// ErrProviderNotFound is returned by GetProvider when the id is unknown.
	ErrProviderNotFound = errors.New("booking: provider not found")
	// ErrSlotTaken is returned by BookAppointment when the backend rejects the slot.
	ErrSlotTaken = errors.New("booking: slot no longer available")
)

// BookingRequest is the draft as sent to the backend.
type BookingRequest struct {
	ProviderID     string
	ServiceID      string
	Date           Date
	Time           string // "HH:MM"
	PatientName    string
	PatientPhone   string
	PatientEmail   string
	Notes          string
	BookedBy       string
	IdempotencyKey string
}

// RequestFromDraft copies the submit-relevant fields of d.
func RequestFromDraft(d Draft) BookingRequest {
	return BookingRequest{
		ProviderID:   d.ProviderID,
		ServiceID:    d.ServiceID,
		Date:         d.Date,
		Time:         d.Time,
		PatientName:  d.PatientName,
		PatientPhone: d.PatientPhone,
		PatientEmail: d.PatientEmail,
		Notes:        d.Notes,
	}
}

// BookingReceipt is returned on a successful booking.
type BookingReceipt struct {
	Reference string
	Status    string
}

// Backend is the Availability Service boundary: the three operations the
// workflow consumes. Availability computation and conflict resolution live
// behind it.
type Backend interface {
	// GetProvider returns ErrProviderNotFound when id is unknown.
	GetProvider(ctx context.Context, id string) (*Provider, error)

	// GetAvailableSlots returns "HH:MM" start times for the day, possibly empty.
	GetAvailableSlots(ctx context.Context, providerID string, date Date) ([]string, error)

	// BookAppointment creates the appointment or returns the backend's reason.
	BookAppointment(ctx context.Context, req BookingRequest) (*BookingReceipt, error)
}
