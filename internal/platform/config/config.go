// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development default; production overrides via
// environment variables.
package config

import (
	"os"
	"strings"
	"time"
)

// Config captures everything the process needs to start.
type Config struct {
	Addr          string
	PostgresDSN   string
	Redis         RedisConfig
	KafkaBrokers  []string
	JWTSigningKey string

	// DedupWindow is how long an identical notification suppresses repeats.
	DedupWindow time.Duration
	// HeartbeatInterval is the keep-alive period on push connections.
	HeartbeatInterval time.Duration
}

// RedisConfig captures Redis connection tuning. An empty URL disables Redis;
// the dedup guard and unread cache then degrade to store lookups.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:          envOr("CIVICDESK_ADDR", ":8080"),
		PostgresDSN:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		DedupWindow:       envDuration("NOTIFICATION_DEDUP_WINDOW", 10*time.Second),
		HeartbeatInterval: envDuration("SSE_HEARTBEAT_INTERVAL", 15*time.Second),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}
	return cfg
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
