package availability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-booking/internal/booking"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

const (
	defaultCacheTTL      = 10 * time.Minute
	providerCachePrefix  = "booking:provider:"
	cacheOperationBudget = 250 * time.Millisecond
)

// CachedBackend serves provider profiles from Redis and passes slot queries
// and bookings straight through. Availability is never cached.
type CachedBackend struct {
	next   booking.Backend
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedBackend(next booking.Backend, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedBackend {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedBackend{next: next, redis: client, ttl: ttl, logger: logger}
}

func (b *CachedBackend) GetProvider(ctx context.Context, id string) (*booking.Provider, error) {
	key := providerCachePrefix + id
	if p, ok := b.lookup(ctx, key); ok {
		return p, nil
	}

	p, err := b.next.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	b.store(ctx, key, p)
	return p, nil
}

func (b *CachedBackend) GetAvailableSlots(ctx context.Context, providerID string, date booking.Date) ([]string, error) {
	return b.next.GetAvailableSlots(ctx, providerID, date)
}

func (b *CachedBackend) BookAppointment(ctx context.Context, req booking.BookingRequest) (*booking.BookingReceipt, error) {
	return b.next.BookAppointment(ctx, req)
}

func (b *CachedBackend) lookup(ctx context.Context, key string) (*booking.Provider, bool) {
	if b.redis == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOperationBudget)
	defer cancel()

	raw, err := b.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.logger.Warn("provider cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var p booking.Provider
	if err := json.Unmarshal(raw, &p); err != nil {
		b.logger.Warn("provider cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return &p, true
}

func (b *CachedBackend) store(ctx context.Context, key string, p *booking.Provider) {
	if b.redis == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOperationBudget)
	defer cancel()
	if err := b.redis.Set(ctx, key, raw, b.ttl).Err(); err != nil {
		b.logger.Warn("provider cache write failed", "key", key, "error", err)
	}
}
