package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

const uniqueViolation = "23505"

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend reads provider, service and availability tables directly.
// Slot conflicts are left to the appointments unique constraint.
type PostgresBackend struct {
	db rowQuerier
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return &PostgresBackend{db: pool}
}

func newPostgresBackendWithQuerier(db rowQuerier) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) GetProvider(ctx context.Context, id string) (*booking.Provider, error) {
	query := `
		SELECT id, name, COALESCE(specialty, ''), COALESCE(phone, ''), COALESCE(email, ''),
		       COALESCE(address, ''), COALESCE(bio, ''), COALESCE(photo_url, '')
		FROM providers
		WHERE id = $1
	`
	var p booking.Provider
	err := b.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Specialty, &p.Phone, &p.Email, &p.Address, &p.Bio, &p.PhotoURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrProviderNotFound
		}
		return nil, fmt.Errorf("availability: load provider: %w", err)
	}

	rows, err := b.db.Query(ctx, `
		SELECT id, name, duration_minutes, price::float8, COALESCE(description, '')
		FROM provider_services
		WHERE provider_id = $1
		ORDER BY position, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("availability: load services: %w", err)
	}
	defer rows.Close()

	p.Services = []booking.Service{}
	for rows.Next() {
		var s booking.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMin, &s.Price, &s.Description); err != nil {
			return nil, fmt.Errorf("availability: scan service: %w", err)
		}
		p.Services = append(p.Services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: iterate services: %w", err)
	}
	return &p, nil
}

// GetAvailableSlots lists open start times that have no appointment yet.
func (b *PostgresBackend) GetAvailableSlots(ctx context.Context, providerID string, date booking.Date) ([]string, error) {
	query := `
		SELECT to_char(s.start_time, 'HH24:MI')
		FROM availability_slots s
		WHERE s.provider_id = $1
		  AND s.slot_date = $2::date
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.provider_id = s.provider_id
			  AND a.appointment_date = s.slot_date
			  AND a.start_time = s.start_time
		  )
		ORDER BY s.start_time
	`
	rows, err := b.db.Query(ctx, query, providerID, date.String())
	if err != nil {
		return nil, fmt.Errorf("availability: query slots: %w", err)
	}
	defer rows.Close()

	slots := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("availability: scan slot: %w", err)
		}
		slots = append(slots, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: iterate slots: %w", err)
	}
	return slots, nil
}

// BookAppointment inserts the appointment. Replaying the same idempotency key
// returns the original row instead of a conflict.
func (b *PostgresBackend) BookAppointment(ctx context.Context, req booking.BookingRequest) (*booking.BookingReceipt, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	query := `
		INSERT INTO appointments (
			id, provider_id, service_id, appointment_date, start_time,
			patient_name, patient_phone, patient_email, notes, booked_by, idempotency_key
		)
		VALUES ($1, $2, $3, $4::date, $5::time, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11)
		ON CONFLICT (idempotency_key) DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
		RETURNING id, status
	`
	var receipt booking.BookingReceipt
	err := b.db.QueryRow(ctx, query,
		uuid.NewString(),
		req.ProviderID,
		req.ServiceID,
		req.Date.String(),
		req.Time,
		req.PatientName,
		req.PatientPhone,
		req.PatientEmail,
		req.Notes,
		req.BookedBy,
		key,
	).Scan(&receipt.Reference, &receipt.Status)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, booking.ErrSlotTaken
		}
		return nil, fmt.Errorf("availability: insert appointment: %w", err)
	}
	return &receipt, nil
}
