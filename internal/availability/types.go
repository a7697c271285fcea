package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

var validate = validator.New()

type servicePayload struct {
	ID          string  `json:"id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Duration    int     `json:"duration" validate:"gte=0"`
	Price       float64 `json:"price" validate:"gte=0"`
	Description string  `json:"description,omitempty"`
}

type providerPayload struct {
	ID        string           `json:"id" validate:"required"`
	Name      string           `json:"name" validate:"required"`
	Specialty string           `json:"specialty,omitempty"`
	Phone     string           `json:"phone,omitempty"`
	Email     string           `json:"email,omitempty" validate:"omitempty,email"`
	Address   string           `json:"address,omitempty"`
	Bio       string           `json:"bio,omitempty"`
	PhotoURL  string           `json:"photo_url,omitempty"`
	Services  []servicePayload `json:"services" validate:"dive"`
}

type slotsPayload struct {
	Slots []string `json:"slots"`
}

type appointmentPayload struct {
	ProviderID   string `json:"provider_id"`
	ServiceID    string `json:"service_id"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
	PatientEmail string `json:"patient_email,omitempty"`
	Notes        string `json:"notes,omitempty"`
	BookedBy     string `json:"booked_by,omitempty"`
}

type appointmentResponse struct {
	ID     string `json:"id" validate:"required"`
	Status string `json:"status"`
}

type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (p providerPayload) toProvider() (*booking.Provider, error) {
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("availability: invalid provider payload: %w", err)
	}
	out := &booking.Provider{
		ID:        p.ID,
		Name:      p.Name,
		Specialty: p.Specialty,
		Phone:     p.Phone,
		Email:     p.Email,
		Address:   p.Address,
		Bio:       p.Bio,
		PhotoURL:  p.PhotoURL,
		Services:  make([]booking.Service, 0, len(p.Services)),
	}
	seen := make(map[string]struct{}, len(p.Services))
	for _, s := range p.Services {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out.Services = append(out.Services, booking.Service{
			ID:          s.ID,
			Name:        strings.TrimSpace(s.Name),
			DurationMin: s.Duration,
			Price:       s.Price,
			Description: s.Description,
		})
	}
	return out, nil
}

func appointmentFromRequest(req booking.BookingRequest) appointmentPayload {
	return appointmentPayload{
		ProviderID:   req.ProviderID,
		ServiceID:    req.ServiceID,
		Date:         req.Date.Timestamp().Format(time.RFC3339),
		Time:         req.Time,
		PatientName:  strings.TrimSpace(req.PatientName),
		PatientPhone: strings.TrimSpace(req.PatientPhone),
		PatientEmail: strings.TrimSpace(req.PatientEmail),
		Notes:        req.Notes,
		BookedBy:     req.BookedBy,
	}
}
