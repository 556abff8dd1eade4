// Package config centralises configuration parsing for the sync engine.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration for the batched sync engine.
type Config struct {
	AppEnv      string
	HTTPAddress string

	// Upstream API
	UpstreamBaseURL   string
	UpstreamTokenURL  string
	OAuthClientID     string
	OAuthClientSecret string

	// Sync tunables
	DiscoveryPageSize     int
	EnrichmentChunkSize   int
	MaxBatchesPerTick     int
	SyncMaxAttempts       int
	RetryBackoffBase      time.Duration
	StaleClaimThreshold   time.Duration
	StalledSessionAfter   time.Duration
	EnrichmentCallsPerSec float64

	// Rate budget (rolling windows shared by all athletes)
	RateWindowLimit int
	RateWindowSize  time.Duration
	RateDailyLimit  int

	// Per-client throttle on the admin API. Trusted IPs bypass it so the
	// cron driving /sync/tick is never turned away.
	HTTPRateLimitPerSec float64
	HTTPRateLimitBurst  int
	HTTPTrustedIPs      []string

	// Scheduling intervals for the in-process tickers
	SchedulerInterval     time.Duration
	HealthMonitorInterval time.Duration

	// Activity types kept at discovery time; empty keeps everything
	ActivityTypes []string

	AdminJWTSecret string
}

// Load reads environment variables into Config, applying defaults for local dev.
func Load() Config {
	cfg := Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		HTTPAddress: getEnv("HTTP_ADDRESS", ":8080"),

		UpstreamBaseURL:   getEnv("UPSTREAM_BASE_URL", "https://www.strava.com/api/v3"),
		UpstreamTokenURL:  getEnv("UPSTREAM_TOKEN_URL", "https://www.strava.com/oauth/token"),
		OAuthClientID:     getEnv("UPSTREAM_CLIENT_ID", ""),
		OAuthClientSecret: getEnv("UPSTREAM_CLIENT_SECRET", ""),

		DiscoveryPageSize:     getIntEnv("SYNC_DISCOVERY_PAGE_SIZE", 200),
		EnrichmentChunkSize:   getIntEnv("SYNC_ENRICHMENT_CHUNK_SIZE", 20),
		MaxBatchesPerTick:     getIntEnv("SYNC_MAX_BATCHES_PER_TICK", 10),
		SyncMaxAttempts:       getIntEnv("SYNC_MAX_ATTEMPTS", 5),
		RetryBackoffBase:      getDurationEnv("SYNC_RETRY_BACKOFF_BASE", time.Minute),
		StaleClaimThreshold:   getDurationEnv("SYNC_STALE_CLAIM_AFTER", 15*time.Minute),
		StalledSessionAfter:   getDurationEnv("SYNC_STALLED_SESSION_AFTER", 24*time.Hour),
		EnrichmentCallsPerSec: getFloatEnv("SYNC_ENRICHMENT_CALLS_PER_SEC", 1.0),

		RateWindowLimit: getIntEnv("RATE_WINDOW_LIMIT", 180),
		RateWindowSize:  getDurationEnv("RATE_WINDOW_SIZE", 15*time.Minute),
		RateDailyLimit:  getIntEnv("RATE_DAILY_LIMIT", 1800),

		SchedulerInterval:     getDurationEnv("SCHEDULER_INTERVAL", time.Minute),
		HealthMonitorInterval: getDurationEnv("HEALTH_MONITOR_INTERVAL", 5*time.Minute),

		HTTPRateLimitPerSec: getFloatEnv("HTTP_RATE_LIMIT_PER_SEC", 5),
		HTTPRateLimitBurst:  getIntEnv("HTTP_RATE_LIMIT_BURST", 10),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", "dev-secret-change-me"),
	}

	cfg.ActivityTypes = splitAndTrim(getEnv("SYNC_ACTIVITY_TYPES", "Run,TrailRun,Race"))
	cfg.HTTPTrustedIPs = splitAndTrim(getEnv("HTTP_TRUSTED_IPS", "127.0.0.1"))
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
