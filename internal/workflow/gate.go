package workflow

import (
	"strings"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

// CanSubmit is the validation gate. Email and notes never block.
func CanSubmit(d booking.Draft) bool {
	return len(Missing(d)) == 0
}

// Missing lists the required draft fields that are still empty, in form order.
func Missing(d booking.Draft) []string {
	var missing []string
	if strings.TrimSpace(d.ProviderID) == "" {
		missing = append(missing, "provider_id")
	}
	if strings.TrimSpace(d.ServiceID) == "" {
		missing = append(missing, "service_id")
	}
	if d.Date.IsZero() {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(d.Time) == "" {
		missing = append(missing, "time")
	}
	if strings.TrimSpace(d.PatientName) == "" {
		missing = append(missing, "patient_name")
	}
	if strings.TrimSpace(d.PatientPhone) == "" {
		missing = append(missing, "patient_phone")
	}
	return missing
}
