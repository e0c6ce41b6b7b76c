package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean. Missing values fall back to development defaults.
type Config struct {
	Addr string

	// SourceURL points at the provisioning export endpoint. Empty runs the
	// engine against the in-memory source, which is only useful in development.
	SourceURL string

	// PostgresDSN is empty when running against in-memory stores.
	PostgresDSN string

	// RedisURL enables the latest-snapshot cache when set.
	RedisURL string

	// KafkaBrokers enables the audit change feed when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// Analysis engine knobs.
	Interval        time.Duration
	LookaheadWindow time.Duration
	WorkerLimit     int
	SoftTimeout     time.Duration
	SourcePageSize  int

	// ExtensionMatch selects how entitlement lines are grouped when deciding
	// whether a later grant supersedes an earlier one: "product" or
	// "product-modifier".
	ExtensionMatch string

	JWTSigningKey string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:            envString("DEPLOYASSIST_ADDR", ":8080"),
		SourceURL:       os.Getenv("SOURCE_URL"),
		PostgresDSN:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaBrokers:    envList("KAFKA_BROKERS"),
		KafkaTopic:      envString("KAFKA_AUDIT_TOPIC", "deployassist.provisioning-changes"),
		Interval:        envDuration("ANALYSIS_INTERVAL", 5*time.Minute),
		LookaheadWindow: envDuration("EXPIRATION_WINDOW", 30*24*time.Hour),
		WorkerLimit:     envInt("ANALYSIS_WORKERS", 8),
		SoftTimeout:     envDuration("ANALYSIS_SOFT_TIMEOUT", 4*time.Minute),
		SourcePageSize:  envInt("SOURCE_PAGE_SIZE", 200),
		ExtensionMatch:  envString("EXTENSION_MATCH", "product"),
		JWTSigningKey:   envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
