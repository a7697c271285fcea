package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/wolfman30/medspa-booking/internal/availability"
	appconfig "github.com/wolfman30/medspa-booking/internal/config"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
	if client := BuildRedisClient(context.Background(), nil, nil, false); client != nil {
		t.Fatalf("expected nil client for nil config")
	}
}

func TestBuildRedisClientUnreachableReturnsNil(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &appconfig.Config{RedisAddr: addr}
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildRuntimeRequiresConfig(t *testing.T) {
	if _, err := BuildRuntime(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildRuntimeHTTPBackend(t *testing.T) {
	cfg := &appconfig.Config{
		AvailabilityBackend: "http",
		AvailabilityBaseURL: "http://availability.local",
		AvailabilityTimeout: time.Second,
	}
	rt, err := BuildRuntime(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.Backend.(*availability.Client); !ok {
		t.Fatalf("expected http client backend, got %T", rt.Backend)
	}
	if err := rt.Ready(); err != nil {
		t.Fatalf("expected ready without stores, got %v", err)
	}
}

func TestBuildRuntimeWrapsWithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{
		AvailabilityBackend: "http",
		AvailabilityBaseURL: "http://availability.local",
		RedisAddr:           mr.Addr(),
		ProviderCacheTTL:    time.Minute,
	}
	rt, err := BuildRuntime(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rt.Close()
	if _, ok := rt.Backend.(*availability.CachedBackend); !ok {
		t.Fatalf("expected cached backend, got %T", rt.Backend)
	}
	if err := rt.Ready(); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}

	mr.Close()
	if err := rt.Ready(); err == nil {
		t.Fatalf("expected ready check to fail once redis is gone")
	}
}

func TestBuildRuntimeRejectsUnknownBackend(t *testing.T) {
	cfg := &appconfig.Config{AvailabilityBackend: "grpc"}
	if _, err := BuildRuntime(context.Background(), cfg, logging.New("error")); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildRuntimeHTTPRequiresBaseURL(t *testing.T) {
	cfg := &appconfig.Config{AvailabilityBackend: "http"}
	if _, err := BuildRuntime(context.Background(), cfg, logging.New("error")); err == nil {
		t.Fatalf("expected error without base url")
	}
}
