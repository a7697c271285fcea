package availability

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-booking/internal/booking"
)

type countingBackend struct {
	providerCalls atomic.Int32
	slotCalls     atomic.Int32
}

func (b *countingBackend) GetProvider(_ context.Context, id string) (*booking.Provider, error) {
	b.providerCalls.Add(1)
	if id != "amina" {
		return nil, booking.ErrProviderNotFound
	}
	return &booking.Provider{ID: "amina", Name: "Dr. Amina Yusuf", Services: []booking.Service{{ID: "s1", Name: "Cleaning", DurationMin: 30, Price: 200}}}, nil
}

func (b *countingBackend) GetAvailableSlots(context.Context, string, booking.Date) ([]string, error) {
	b.slotCalls.Add(1)
	return []string{"09:00"}, nil
}

func (b *countingBackend) BookAppointment(context.Context, booking.BookingRequest) (*booking.BookingReceipt, error) {
	return &booking.BookingReceipt{Reference: "r1"}, nil
}

func TestCachedBackendCachesProviders(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	next := &countingBackend{}
	cached := NewCachedBackend(next, client, time.Minute, nil)
	ctx := context.Background()

	p1, err := cached.GetProvider(ctx, "amina")
	require.NoError(t, err)
	p2, err := cached.GetProvider(ctx, "amina")
	require.NoError(t, err)

	assert.Equal(t, int32(1), next.providerCalls.Load())
	assert.Equal(t, p1, p2)
	assert.True(t, mr.Exists("booking:provider:amina"))
	assert.Equal(t, time.Minute, mr.TTL("booking:provider:amina"))

	mr.FastForward(2 * time.Minute)
	_, err = cached.GetProvider(ctx, "amina")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.providerCalls.Load())
}

func TestCachedBackendDoesNotCacheMissesOrSlots(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	next := &countingBackend{}
	cached := NewCachedBackend(next, client, time.Minute, nil)
	ctx := context.Background()

	_, err := cached.GetProvider(ctx, "nobody")
	assert.ErrorIs(t, err, booking.ErrProviderNotFound)
	assert.False(t, mr.Exists("booking:provider:nobody"))

	for i := 0; i < 2; i++ {
		_, err := cached.GetAvailableSlots(ctx, "amina", booking.NewDate(2025, time.June, 10))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), next.slotCalls.Load())
}

func TestCachedBackendSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	next := &countingBackend{}
	cached := NewCachedBackend(next, client, time.Minute, nil)

	mr.Close()
	p, err := cached.GetProvider(context.Background(), "amina")
	require.NoError(t, err)
	assert.Equal(t, "amina", p.ID)
}

func TestCachedBackendIgnoresCorruptEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("booking:provider:amina", "{not json"))
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	next := &countingBackend{}

	p, err := NewCachedBackend(next, client, 0, nil).GetProvider(context.Background(), "amina")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Amina Yusuf", p.Name)
	assert.Equal(t, int32(1), next.providerCalls.Load())
}
