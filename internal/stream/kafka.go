package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	// kafkaMinBytes/kafkaMaxBytes bound fetch sizes for the reader.
	kafkaMinBytes = 1
	kafkaMaxBytes = 10 * 1024 * 1024 // 10 MB

	kafkaDialTimeout = 10 * time.Second

	// kafkaDrainTimeout bounds the wait for additional messages once a batch
	// holds its first one. The batch read contract blocks only for the first
	// message; the rest is a drain of what the reader already buffered.
	kafkaDrainTimeout = 100 * time.Millisecond
)

// messageFetcher is the consumer-group surface of kafka.Reader the broker
// relies on, narrowed so tests can substitute a scripted reader.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Lag() int64
	Close() error
}

// KafkaBroker implements Broker on a Kafka topic consumed through a
// consumer group. Message ids are "partition-offset" pairs; acking commits
// the message's offset for the group.
//
// Deviations from the Redis backend, inherent to Kafka's model:
//   - Publish returns an empty message id (offsets are not reported
//     synchronously by the writer).
//   - StreamLength is the high-water mark of partition 0; PendingCount is
//     the reader's current lag. Both are approximations intended for the
//     queue-depth gauge, not for exact accounting.
type KafkaBroker struct {
	reader messageFetcher
	writer *kafka.Writer
	cfg    *Config

	mu       sync.Mutex
	inflight map[string]kafka.Message
}

// Compile-time interface assertion.
var _ Broker = (*KafkaBroker)(nil)

// NewKafkaBroker creates a Kafka broker for the configured topic and group.
func NewKafkaBroker(cfg *Config) (*KafkaBroker, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, ErrBrokerURLEmpty
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  cfg.ConsumerGroup,
		Topic:    cfg.StreamName,
		MinBytes: kafkaMinBytes,
		MaxBytes: kafkaMaxBytes,
		MaxWait:  cfg.BlockTimeout,
	})

	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    cfg.StreamName,
		Balancer: &kafka.LeastBytes{},
	}

	return &KafkaBroker{
		reader:   reader,
		writer:   writer,
		cfg:      cfg,
		inflight: make(map[string]kafka.Message),
	}, nil
}

// Attach ensures the topic exists. Kafka consumer groups are created
// implicitly on the first fetch, so an already-existing topic satisfies
// the idempotency contract.
func (b *KafkaBroker) Attach(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", b.cfg.Brokers()[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAttachFailed, err)
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             b.cfg.StreamName,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("%w: %w", ErrAttachFailed, err)
	}

	return nil
}

// ReadBatch fetches up to count messages, blocking up to block for the
// first one. Once a message is in hand only already-buffered messages are
// drained, so a partial batch returns without waiting out the full block
// window. Fetched messages stay in the in-flight table until acked.
func (b *KafkaBroker) ReadBatch(
	ctx context.Context,
	_ string, // consumer identity is carried by the reader's group membership
	count int,
	block time.Duration,
) ([]Message, error) {
	messages := make([]Message, 0, count)
	wait := block

	for len(messages) < count {
		readCtx, cancel := context.WithTimeout(ctx, wait)
		msg, err := b.reader.FetchMessage(readCtx)

		cancel()

		if err != nil {
			// Deadline exhausted: return whatever the batch holds so far.
			if errors.Is(err, context.DeadlineExceeded) {
				return messages, nil
			}

			// Parent cancellation (shutdown) propagates.
			if ctx.Err() != nil {
				return messages, ctx.Err()
			}

			return messages, fmt.Errorf("read batch: %w", err)
		}

		id := messageID(msg)

		b.mu.Lock()
		b.inflight[id] = msg
		b.mu.Unlock()

		messages = append(messages, Message{ID: id, Data: msg.Value})

		// The first message ends the blocking phase.
		wait = kafkaDrainTimeout
	}

	return messages, nil
}

// Ack commits the message's offset for the consumer group. Acking an
// unknown or already-committed id is a no-op.
func (b *KafkaBroker) Ack(ctx context.Context, messageID string) error {
	b.mu.Lock()
	msg, ok := b.inflight[messageID]

	if ok {
		delete(b.inflight, messageID)
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}

	if err := b.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("ack %s: %w", messageID, err)
	}

	return nil
}

// Publish appends a serialized event to the topic.
func (b *KafkaBroker) Publish(ctx context.Context, data []byte) (string, error) {
	if err := b.writer.WriteMessages(ctx, kafka.Message{Value: data}); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}

	return "", nil
}

// PendingCount reports the reader's current lag.
func (b *KafkaBroker) PendingCount(_ context.Context) (int64, error) {
	return b.reader.Lag(), nil
}

// StreamLength reports the high-water mark of partition 0.
func (b *KafkaBroker) StreamLength(ctx context.Context) (int64, error) {
	conn, err := kafka.DialLeader(ctx, "tcp", b.cfg.Brokers()[0], b.cfg.StreamName, 0)
	if err != nil {
		return 0, fmt.Errorf("stream length: %w", err)
	}
	defer conn.Close()

	last, err := conn.ReadLastOffset()
	if err != nil {
		return 0, fmt.Errorf("stream length: %w", err)
	}

	return last, nil
}

// HealthCheck verifies connectivity to the first configured broker.
func (b *KafkaBroker) HealthCheck(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, kafkaDialTimeout)
	defer cancel()

	conn, err := kafka.DialContext(dialCtx, "tcp", b.cfg.Brokers()[0])
	if err != nil {
		return fmt.Errorf("broker unhealthy: %w", err)
	}

	return conn.Close()
}

// Close releases the reader and writer connections.
func (b *KafkaBroker) Close() error {
	readerErr := b.reader.Close()
	writerErr := b.writer.Close()

	if readerErr != nil {
		return readerErr
	}

	return writerErr
}

// messageID renders a stable "partition-offset" id for a fetched message.
func messageID(msg kafka.Message) string {
	return fmt.Sprintf("%d-%d", msg.Partition, msg.Offset)
}
