package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

func completeDraft() booking.Draft {
	return booking.Draft{
		ProviderID:   "amina",
		ServiceID:    "s1",
		Date:         june10,
		Time:         "09:00",
		PatientName:  "Amina",
		PatientPhone: "0600000000",
	}
}

func TestExecutorSubmit(t *testing.T) {
	fb := newFakeBackend()
	exec := NewExecutor(fb, nil, nil, func() time.Time { return testNow })

	confirmed, err := exec.Submit(context.Background(), aminaProvider(), completeDraft(), SubmitOptions{IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Amina Yusuf", confirmed.ProviderName)
	assert.Equal(t, 30, confirmed.Service.DurationMin)
	assert.Equal(t, testNow, confirmed.ConfirmedAt)
	assert.False(t, exec.InFlight())

	sent := fb.bookings()
	require.Len(t, sent, 1)
	assert.Equal(t, "k1", sent[0].IdempotencyKey)
	assert.Equal(t, "09:00", sent[0].Time)
}

func TestExecutorRejectsIncompleteDraft(t *testing.T) {
	fb := newFakeBackend()
	exec := NewExecutor(fb, nil, nil, nil)

	d := completeDraft()
	d.PatientPhone = ""
	_, err := exec.Submit(context.Background(), aminaProvider(), d, SubmitOptions{})
	assert.ErrorIs(t, err, ErrSubmitBlocked)

	d = completeDraft()
	d.ServiceID = "s9"
	_, err = exec.Submit(context.Background(), aminaProvider(), d, SubmitOptions{})
	assert.ErrorIs(t, err, ErrUnknownService)
	assert.Empty(t, fb.bookings())
}

func TestExecutorSingleFlight(t *testing.T) {
	fb := newFakeBackend()
	fb.bookGate = make(chan struct{})
	exec := NewExecutor(fb, nil, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := exec.Submit(context.Background(), aminaProvider(), completeDraft(), SubmitOptions{})
		done <- err
	}()
	require.Eventually(t, exec.InFlight, time.Second, 5*time.Millisecond)

	_, err := exec.Submit(context.Background(), aminaProvider(), completeDraft(), SubmitOptions{})
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(fb.bookGate)
	require.NoError(t, <-done)
	assert.Len(t, fb.bookings(), 1)
}

func TestExecutorWrapsBackendFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.bookErr = booking.ErrSlotTaken
	exec := NewExecutor(fb, nil, nil, nil)

	_, err := exec.Submit(context.Background(), aminaProvider(), completeDraft(), SubmitOptions{})
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.ErrorIs(t, err, booking.ErrSlotTaken)
}
