package stream

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventflow-io/eventflow/internal/config"
)

// Supported broker backends.
const (
	BackendRedis = "redis"
	BackendKafka = "kafka"
)

const (
	defaultBackend      = BackendRedis
	defaultURL          = "redis://localhost:6379"
	defaultStreamName   = "events"
	defaultGroup        = "workers"
	defaultBlockTimeout = 5000 * time.Millisecond
	msPerSecond         = 1000
)

var (
	// ErrBrokerURLEmpty is returned when the broker URL is an empty string.
	ErrBrokerURLEmpty = errors.New("broker URL cannot be empty")

	// ErrStreamNameEmpty is returned when the stream name is an empty string.
	ErrStreamNameEmpty = errors.New("stream name cannot be empty")

	// ErrConsumerGroupEmpty is returned when the consumer group is an empty string.
	ErrConsumerGroupEmpty = errors.New("consumer group cannot be empty")

	// ErrBlockTimeoutInvalid is returned when the block timeout is zero or negative.
	ErrBlockTimeoutInvalid = errors.New("block timeout must be positive")
)

// Config holds stream broker configuration.
type Config struct {
	// Backend selects the broker implementation: "redis" or "kafka".
	Backend string

	// URL is the broker connection endpoint. Redis URL for the redis
	// backend; comma-separated host:port list for kafka.
	URL string

	// StreamName identifies the stream (redis key / kafka topic).
	StreamName string

	// ConsumerGroup identifies the cooperating consumer set.
	ConsumerGroup string

	// BlockTimeout is the maximum blocking wait per read.
	BlockTimeout time.Duration
}

// LoadConfig loads broker configuration from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	blockMS := config.GetEnvInt("EVENTFLOW_BLOCK_TIMEOUT_MS", int(defaultBlockTimeout.Milliseconds()))

	return &Config{
		Backend:       strings.ToLower(config.GetEnvStr("EVENTFLOW_BROKER_BACKEND", defaultBackend)),
		URL:           config.GetEnvStr("EVENTFLOW_BROKER_URL", defaultURL),
		StreamName:    config.GetEnvStr("EVENTFLOW_STREAM_NAME", defaultStreamName),
		ConsumerGroup: config.GetEnvStr("EVENTFLOW_CONSUMER_GROUP", defaultGroup),
		BlockTimeout:  time.Duration(blockMS) * time.Millisecond,
	}
}

// Validate checks that the broker configuration is usable.
func (c *Config) Validate() error {
	if c.Backend != BackendRedis && c.Backend != BackendKafka {
		return fmt.Errorf("%w: %q (valid: redis, kafka)", ErrUnknownBackend, c.Backend)
	}

	if strings.TrimSpace(c.URL) == "" {
		return ErrBrokerURLEmpty
	}

	if strings.TrimSpace(c.StreamName) == "" {
		return ErrStreamNameEmpty
	}

	if strings.TrimSpace(c.ConsumerGroup) == "" {
		return ErrConsumerGroupEmpty
	}

	if c.BlockTimeout <= 0 {
		return ErrBlockTimeoutInvalid
	}

	return nil
}

// Brokers returns the kafka broker address list parsed from URL.
func (c *Config) Brokers() []string {
	return config.ParseCommaSeparatedList(c.URL)
}
