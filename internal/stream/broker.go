// Package stream provides the broker abstraction the pipeline runs on:
// a named stream consumed through a consumer group, with per-message
// acknowledgement. Two backends are provided, Redis Streams (default) and
// Kafka; any backend meeting the Broker contract is acceptable.
package stream

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for broker operations.
var (
	// ErrUnknownBackend is returned when the configured backend is not supported.
	ErrUnknownBackend = errors.New("unknown broker backend")

	// ErrAttachFailed is returned when consumer-group creation fails for a
	// reason other than the group already existing. This is fatal at startup.
	ErrAttachFailed = errors.New("failed to attach consumer group")
)

type (
	// Message is a single stream entry as delivered to a consumer.
	// ID is broker-assigned and opaque; Data carries the serialized event.
	Message struct {
		ID   string
		Data []byte
	}

	// Broker is the narrow contract between the pipeline and the stream
	// backend. The broker owns a message until it is acked; at most one
	// consumer in the group holds it at a time.
	Broker interface {
		// Attach creates the consumer group on the configured stream.
		// Idempotent: an already-existing group is not an error; any other
		// creation failure is fatal at startup.
		Attach(ctx context.Context) error

		// ReadBatch blocks up to block awaiting at least one new message
		// (never-delivered to this group) and returns up to count messages.
		// A timeout with no messages returns an empty slice, not an error.
		ReadBatch(ctx context.Context, consumer string, count int, block time.Duration) ([]Message, error)

		// Ack marks a message fully handled so the broker releases it from
		// the pending set. Repeated acks of the same id are no-ops.
		Ack(ctx context.Context, messageID string) error

		// Publish appends a serialized event to the stream and returns the
		// broker-assigned message id (may be empty for backends that do not
		// report one synchronously).
		Publish(ctx context.Context, data []byte) (string, error)

		// PendingCount reports messages delivered to the group but not yet acked.
		PendingCount(ctx context.Context) (int64, error)

		// StreamLength reports the total number of entries in the stream.
		StreamLength(ctx context.Context) (int64, error)

		// HealthCheck verifies broker connectivity.
		HealthCheck(ctx context.Context) error

		// Close releases the broker connection.
		Close() error
	}
)

// New creates the Broker selected by cfg.Backend.
func New(cfg *Config) (Broker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendRedis:
		return NewRedisBroker(cfg)
	case BackendKafka:
		return NewKafkaBroker(cfg)
	default:
		return nil, ErrUnknownBackend
	}
}
