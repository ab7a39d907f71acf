package middleware

import (
	"time"

	"github.com/eventflow-io/eventflow/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for three tiers:
//   - Global: applied to all requests
//   - Per-producer: applied to authenticated requests
//   - Unauthenticated: applied to requests without a producer
//
// Burst capacity allows temporary bursts above the sustained rate.
// Burst fields left at 0 are computed automatically as 2x the rate.
type Config struct {
	// Rate limits (requests per second)
	GlobalRPS   int // Default: 100
	ProducerRPS int // Default: 50
	UnAuthRPS   int // Default: 10

	// Optional burst capacity overrides (0 = 2x the rate)
	GlobalBurst   int
	ProducerBurst int
	UnAuthBurst   int

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxProducers    int           // Default: 100
}

// LoadConfig loads middleware config from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS:   config.GetEnvInt("EVENTFLOW_GLOBAL_RPS", defaultGlobalRPS),
		ProducerRPS: config.GetEnvInt("EVENTFLOW_PRODUCER_RPS", defaultProducerRPS),
		UnAuthRPS:   config.GetEnvInt("EVENTFLOW_UNAUTH_RPS", defaultUnAuthRPS),

		GlobalBurst:   config.GetEnvInt("EVENTFLOW_GLOBAL_BURST", 0),
		ProducerBurst: config.GetEnvInt("EVENTFLOW_PRODUCER_BURST", 0),
		UnAuthBurst:   config.GetEnvInt("EVENTFLOW_UNAUTH_BURST", 0),

		CleanupInterval: config.GetEnvDuration(
			"EVENTFLOW_RATE_LIMIT_CLEANUP_INTERVAL", defaultCleanupInterval,
		),
		IdleTimeout:  config.GetEnvDuration("EVENTFLOW_RATE_LIMIT_IDLE_TIMEOUT", defaultIdleTimeout),
		MaxProducers: config.GetEnvInt("EVENTFLOW_RATE_LIMIT_MAX_PRODUCERS", maxProducers),
	}
}
