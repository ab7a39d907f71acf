package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// dataField is the single stream-entry field carrying the serialized event.
const dataField = "data"

// RedisBroker implements Broker on Redis Streams using consumer groups
// (XGROUP CREATE MKSTREAM / XREADGROUP / XACK). This is the default backend
// and matches the operational contract exactly: blocking reads on ">",
// ack by entry id, XPENDING for in-flight counts, XLEN for depth.
type RedisBroker struct {
	client *redis.Client
	cfg    *Config
}

// Compile-time interface assertion.
var _ Broker = (*RedisBroker)(nil)

// NewRedisBroker creates a Redis Streams broker from the configured URL.
func NewRedisBroker(cfg *Config) (*RedisBroker, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse broker URL: %w", err)
	}

	return &RedisBroker{
		client: redis.NewClient(opts),
		cfg:    cfg,
	}, nil
}

// Attach creates the consumer group at stream origin, creating the stream
// if it does not exist yet. BUSYGROUP means the group already exists and is
// not an error; anything else is fatal at startup.
func (b *RedisBroker) Attach(ctx context.Context) error {
	err := b.client.XGroupCreateMkStream(ctx, b.cfg.StreamName, b.cfg.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("%w: %w", ErrAttachFailed, err)
	}

	return nil
}

// ReadBatch blocks up to block for new messages (">") and returns up to
// count of them. A redis.Nil reply is a read timeout, not an error.
func (b *RedisBroker) ReadBatch(
	ctx context.Context,
	consumer string,
	count int,
	block time.Duration,
) ([]Message, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.cfg.ConsumerGroup,
		Consumer: consumer,
		Streams:  []string{b.cfg.StreamName, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // timeout, no new messages
		}

		return nil, fmt.Errorf("read batch: %w", err)
	}

	if len(streams) == 0 {
		return nil, nil
	}

	messages := make([]Message, 0, len(streams[0].Messages))

	for _, msg := range streams[0].Messages {
		var data []byte

		if raw, ok := msg.Values[dataField].(string); ok {
			data = []byte(raw)
		}

		messages = append(messages, Message{ID: msg.ID, Data: data})
	}

	return messages, nil
}

// Ack releases a message from the group's pending set. XACK of an unknown
// or already-acked id acknowledges zero entries and is a no-op.
func (b *RedisBroker) Ack(ctx context.Context, messageID string) error {
	if err := b.client.XAck(ctx, b.cfg.StreamName, b.cfg.ConsumerGroup, messageID).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", messageID, err)
	}

	return nil
}

// Publish appends a serialized event under the "data" field and returns the
// broker-assigned entry id.
func (b *RedisBroker) Publish(ctx context.Context, data []byte) (string, error) {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.cfg.StreamName,
		Values: map[string]any{dataField: data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	return id, nil
}

// PendingCount reports messages delivered to the group but not yet acked.
// A missing stream or group counts as zero pending.
func (b *RedisBroker) PendingCount(ctx context.Context) (int64, error) {
	pending, err := b.client.XPending(ctx, b.cfg.StreamName, b.cfg.ConsumerGroup).Result()
	if err != nil {
		if strings.Contains(err.Error(), "NOGROUP") {
			return 0, nil
		}

		return 0, fmt.Errorf("pending count: %w", err)
	}

	return pending.Count, nil
}

// StreamLength reports the total number of entries in the stream.
func (b *RedisBroker) StreamLength(ctx context.Context) (int64, error) {
	length, err := b.client.XLen(ctx, b.cfg.StreamName).Result()
	if err != nil {
		return 0, fmt.Errorf("stream length: %w", err)
	}

	return length, nil
}

// HealthCheck verifies Redis connectivity.
func (b *RedisBroker) HealthCheck(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("broker unhealthy: %w", err)
	}

	return nil
}

// Close releases the Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
