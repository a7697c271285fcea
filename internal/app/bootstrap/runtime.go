package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medspa-booking/internal/availability"
	"github.com/wolfman30/medspa-booking/internal/booking"
	appconfig "github.com/wolfman30/medspa-booking/internal/config"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

const pingTimeout = 2 * time.Second

// Runtime is the wired availability backend plus whatever it holds open.
type Runtime struct {
	Backend booking.Backend
	Redis   *redis.Client
	Pool    *pgxpool.Pool
}

// Ready pings the backing stores. A nil Runtime field is skipped.
func (r *Runtime) Ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	var errs []error
	if r.Pool != nil {
		if err := r.Pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if r.Redis != nil {
		if err := r.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the pool and the Redis client.
func (r *Runtime) Close() {
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if r.Pool != nil {
		r.Pool.Close()
	}
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available, provider cache disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildRuntime selects the availability backend named by cfg and wraps it with
// the Redis provider cache when Redis is reachable.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rt := &Runtime{}
	switch cfg.AvailabilityBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		rt.Pool = pool
		rt.Backend = availability.NewPostgresBackend(pool)
		logger.Info("availability backend selected", "backend", "postgres")
	case "http", "":
		if strings.TrimSpace(cfg.AvailabilityBaseURL) == "" {
			return nil, fmt.Errorf("bootstrap: AVAILABILITY_BASE_URL is required")
		}
		rt.Backend = availability.NewClient(cfg.AvailabilityBaseURL, logger,
			availability.WithTimeout(cfg.AvailabilityTimeout),
			availability.WithAPIKey(cfg.AvailabilityAPIKey),
		)
		logger.Info("availability backend selected", "backend", "http", "base_url", cfg.AvailabilityBaseURL)
	default:
		return nil, fmt.Errorf("bootstrap: unknown availability backend %q", cfg.AvailabilityBackend)
	}

	if client := BuildRedisClient(ctx, cfg, logger, true); client != nil {
		rt.Redis = client
		rt.Backend = availability.NewCachedBackend(rt.Backend, client, cfg.ProviderCacheTTL, logger)
		logger.Info("provider cache enabled", "ttl", cfg.ProviderCacheTTL)
	}
	return rt, nil
}
