package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
	LogFile   string

	// Calendar days ("today") are evaluated in this zone.
	Timezone string
	Currency string

	AvailabilityBackend string // "http" or "postgres"
	AvailabilityBaseURL string
	AvailabilityAPIKey  string
	AvailabilityTimeout time.Duration
	DatabaseURL         string

	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	ProviderCacheTTL time.Duration

	SessionIdleTimeout time.Duration
	SessionJWTSecret   string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		LogFile:             getEnv("LOG_FILE", ""),
		Timezone:            getEnv("BOOKING_TIMEZONE", "UTC"),
		Currency:            getEnv("BOOKING_CURRENCY", "USD"),
		AvailabilityBackend: strings.ToLower(strings.TrimSpace(getEnv("AVAILABILITY_BACKEND", "http"))),
		AvailabilityBaseURL: getEnv("AVAILABILITY_BASE_URL", ""),
		AvailabilityAPIKey:  getEnv("AVAILABILITY_API_KEY", ""),
		AvailabilityTimeout: getEnvAsDuration("AVAILABILITY_TIMEOUT", 10*time.Second),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisTLS:            getEnvAsBool("REDIS_TLS", false),
		ProviderCacheTTL:    getEnvAsDuration("PROVIDER_CACHE_TTL", 10*time.Minute),
		SessionIdleTimeout:  getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionJWTSecret:    getEnv("SESSION_JWT_SECRET", ""),
		CORSAllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:        getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:      getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// Validate reports settings that would keep the service from booking anything.
func (c *Config) Validate() error {
	switch c.AvailabilityBackend {
	case "http":
		if strings.TrimSpace(c.AvailabilityBaseURL) == "" {
			return fmt.Errorf("config: AVAILABILITY_BASE_URL is required for the http backend")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown AVAILABILITY_BACKEND %q", c.AvailabilityBackend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return nil, fmt.Errorf("config: invalid BOOKING_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
