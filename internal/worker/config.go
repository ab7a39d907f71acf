package worker

import (
	"errors"
	"strings"
	"time"

	"github.com/eventflow-io/eventflow/internal/config"
)

const (
	defaultWorkerID          = "worker-1"
	defaultBatchSize         = 10
	defaultProcessingTimeout = 30 * time.Second
	defaultMaxRetries        = 3
	defaultRetryDelay        = 2 * time.Second
	defaultMetricsPort       = 8001
	defaultBlockTimeoutMS    = 5000
)

var (
	// ErrWorkerIDEmpty is returned when the worker id is an empty string.
	ErrWorkerIDEmpty = errors.New("worker id cannot be empty")

	// ErrBatchSizeInvalid is returned when the batch size is zero or negative.
	ErrBatchSizeInvalid = errors.New("batch size must be positive")

	// ErrProcessingTimeoutInvalid is returned when the per-event timeout is zero or negative.
	ErrProcessingTimeoutInvalid = errors.New("processing timeout must be positive")

	// ErrMaxRetriesInvalid is returned when the retry attempt count is below one.
	ErrMaxRetriesInvalid = errors.New("max retries must be at least 1")

	// ErrRetryDelayInvalid is returned when the base retry delay is zero or negative.
	ErrRetryDelayInvalid = errors.New("retry delay must be positive")
)

// Config holds worker runtime configuration.
type Config struct {
	// WorkerID is the consumer name inside the group. Must be unique per
	// worker process or two workers will shadow each other's pending sets.
	WorkerID string

	// BatchSize caps both messages per read and concurrency within a batch.
	BatchSize int

	// BlockTimeout is the maximum blocking wait per broker read.
	BlockTimeout time.Duration

	// ProcessingTimeout is the per-event deadline.
	ProcessingTimeout time.Duration

	// MaxRetries is the attempt count for enrichment and persistence.
	MaxRetries int

	// RetryDelay is the base backoff delay between retry attempts.
	RetryDelay time.Duration

	// MetricsPort is the Prometheus exposition endpoint port.
	MetricsPort int
}

// LoadConfig loads worker configuration from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	blockMS := config.GetEnvInt("EVENTFLOW_BLOCK_TIMEOUT_MS", defaultBlockTimeoutMS)
	timeoutSec := config.GetEnvInt("EVENTFLOW_PROCESSING_TIMEOUT_SECONDS", int(defaultProcessingTimeout.Seconds()))
	retryDelaySec := config.GetEnvInt("EVENTFLOW_RETRY_DELAY_SECONDS", int(defaultRetryDelay.Seconds()))

	return &Config{
		WorkerID:          config.GetEnvStr("EVENTFLOW_WORKER_ID", defaultWorkerID),
		BatchSize:         config.GetEnvInt("EVENTFLOW_BATCH_SIZE", defaultBatchSize),
		BlockTimeout:      time.Duration(blockMS) * time.Millisecond,
		ProcessingTimeout: time.Duration(timeoutSec) * time.Second,
		MaxRetries:        config.GetEnvInt("EVENTFLOW_MAX_RETRIES", defaultMaxRetries),
		RetryDelay:        time.Duration(retryDelaySec) * time.Second,
		MetricsPort:       config.GetEnvInt("EVENTFLOW_METRICS_PORT", defaultMetricsPort),
	}
}

// Validate checks that the worker configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.WorkerID) == "" {
		return ErrWorkerIDEmpty
	}

	if c.BatchSize <= 0 {
		return ErrBatchSizeInvalid
	}

	if c.ProcessingTimeout <= 0 {
		return ErrProcessingTimeoutInvalid
	}

	if c.MaxRetries < 1 {
		return ErrMaxRetriesInvalid
	}

	if c.RetryDelay <= 0 {
		return ErrRetryDelayInvalid
	}

	return nil
}
