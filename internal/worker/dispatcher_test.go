package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eventflow-io/eventflow/internal/event"
	"github.com/eventflow-io/eventflow/internal/stream"
)

// scriptedBroker replays a fixed sequence of ReadBatch results and records
// acks. After the script is exhausted it cancels the worker context so Run
// returns.
type scriptedBroker struct {
	mu      sync.Mutex
	script  []readResult
	reads   int
	acked   []string
	cancel  context.CancelFunc
	pending int64
	length  int64
}

type readResult struct {
	messages []stream.Message
	err      error
}

func (b *scriptedBroker) Attach(context.Context) error { return nil }

func (b *scriptedBroker) ReadBatch(_ context.Context, _ string, _ int, _ time.Duration) ([]stream.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.reads >= len(b.script) {
		b.cancel()

		return nil, nil
	}

	result := b.script[b.reads]
	b.reads++

	return result.messages, result.err
}

func (b *scriptedBroker) Ack(_ context.Context, messageID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.acked = append(b.acked, messageID)

	return nil
}

func (b *scriptedBroker) Publish(context.Context, []byte) (string, error) { return "", nil }

func (b *scriptedBroker) PendingCount(context.Context) (int64, error) { return b.pending, nil }

func (b *scriptedBroker) StreamLength(context.Context) (int64, error) { return b.length, nil }

func (b *scriptedBroker) HealthCheck(context.Context) error { return nil }

func (b *scriptedBroker) Close() error { return nil }

func (b *scriptedBroker) ackedIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.acked...)
}

func newTestWorker(t *testing.T, broker *scriptedBroker, store *fakeStore) (*Worker, context.Context) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	broker.cancel = cancel

	cfg := &Config{
		WorkerID:          "worker-test",
		BatchSize:         10,
		BlockTimeout:      10 * time.Millisecond,
		ProcessingTimeout: 5 * time.Second,
		MaxRetries:        3,
		RetryDelay:        time.Millisecond,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	processor := NewProcessor(store, &fakeEnricher{}, NewBackoffPolicy(3, time.Millisecond), logger,
		WithProcessorClock(func() time.Time { return testNow }),
		WithSleep(func(context.Context, time.Duration) error { return nil }),
	)

	w := NewWorker(cfg, broker, processor, logger)
	w.readBackoff = time.Millisecond

	return w, ctx
}

func validMessage(id, eventID string) stream.Message {
	return stream.Message{
		ID: id,
		Data: []byte(`{
			"event_id": "` + eventID + `",
			"event_type": "custom",
			"timestamp": "2024-01-01T00:00:00",
			"properties": {}
		}`),
	}
}

func TestWorker_ProcessesAndAcksBatch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := &fakeStore{}
	broker := &scriptedBroker{
		script: []readResult{
			{messages: []stream.Message{
				validMessage("1-0", "11111111-1111-1111-1111-111111111111"),
				validMessage("1-1", "22222222-2222-2222-2222-222222222222"),
			}},
		},
	}

	w, ctx := newTestWorker(t, broker, store)

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if len(store.inserted) != 2 {
		t.Errorf("inserted %d rows, want 2", len(store.inserted))
	}

	acked := broker.ackedIDs()
	if len(acked) != 2 {
		t.Fatalf("acked %d messages, want 2: %v", len(acked), acked)
	}
}

func TestWorker_EmptyBatchLoopsWithoutAcks(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := &fakeStore{}
	broker := &scriptedBroker{
		script: []readResult{
			{messages: nil},
			{messages: nil},
		},
	}

	w, ctx := newTestWorker(t, broker, store)

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if len(broker.ackedIDs()) != 0 {
		t.Errorf("acked %d messages on empty batches, want 0", len(broker.ackedIDs()))
	}
}

func TestWorker_ReadErrorBacksOffAndContinues(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := &fakeStore{}
	broker := &scriptedBroker{
		script: []readResult{
			{err: errors.New("broker connection reset")},
			{messages: []stream.Message{
				validMessage("2-0", "33333333-3333-3333-3333-333333333333"),
			}},
		},
	}

	w, ctx := newTestWorker(t, broker, store)

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	// The batch after the failed read still got processed.
	if len(store.inserted) != 1 {
		t.Errorf("inserted %d rows, want 1", len(store.inserted))
	}

	if len(broker.ackedIDs()) != 1 {
		t.Errorf("acked %d messages, want 1", len(broker.ackedIDs()))
	}
}

func TestWorker_EmptyDataMessageAckedWithoutProcessing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := &fakeStore{}
	broker := &scriptedBroker{
		script: []readResult{
			{messages: []stream.Message{{ID: "3-0", Data: nil}}},
		},
	}

	w, ctx := newTestWorker(t, broker, store)

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if len(store.inserted) != 0 || len(store.failed) != 0 {
		t.Error("empty-data message reached the store")
	}

	if got := broker.ackedIDs(); len(got) != 1 || got[0] != "3-0" {
		t.Errorf("acked = %v, want [3-0]", got)
	}
}

func TestWorker_ShutdownMidBatchDrainsAndAcks(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := &fakeStore{}
	broker := &scriptedBroker{
		script: []readResult{
			{messages: []stream.Message{
				validMessage("6-0", "55555555-6666-7777-8888-999999999999"),
			}},
		},
	}

	w, ctx := newTestWorker(t, broker, store)

	// The shutdown signal lands while the event is mid-persist. The insert
	// still runs to completion because per-event contexts are detached from
	// the loop context, and the finished message is acked on the way out.
	store.insertFn = func(*event.ProcessedEvent) error {
		broker.cancel()
		<-ctx.Done()

		return nil
	}

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d rows, want 1", len(store.inserted))
	}

	if len(store.failed) != 0 {
		t.Errorf("dead letter rows = %d, want 0", len(store.failed))
	}

	if got := broker.ackedIDs(); len(got) != 1 || got[0] != "6-0" {
		t.Errorf("acked = %v, want [6-0]", got)
	}

	// Draining means no new batch is read after the cancellation.
	broker.mu.Lock()
	reads := broker.reads
	broker.mu.Unlock()

	if reads != 1 {
		t.Errorf("broker reads = %d, want 1", reads)
	}
}

func TestWorker_FailedDeadLetterWriteLeavesMessageUnacked(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := &fakeStore{failedFn: func(*event.FailedEvent) error {
		return errors.New("database unavailable")
	}}

	broker := &scriptedBroker{
		script: []readResult{
			// Malformed payload forces the dead letter branch.
			{messages: []stream.Message{{ID: "4-0", Data: []byte("not json")}}},
		},
	}

	w, ctx := newTestWorker(t, broker, store)

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if len(broker.ackedIDs()) != 0 {
		t.Errorf("acked %d messages, want 0 when the dead letter write failed", len(broker.ackedIDs()))
	}
}

func TestWorker_DuplicateIsAcked(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := &fakeStore{existsFn: func(uuid.UUID) (bool, error) { return true, nil }}
	broker := &scriptedBroker{
		script: []readResult{
			{messages: []stream.Message{
				validMessage("5-0", "44444444-4444-4444-4444-444444444444"),
			}},
		},
	}

	w, ctx := newTestWorker(t, broker, store)

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if len(store.inserted) != 0 {
		t.Errorf("inserted %d rows for a duplicate, want 0", len(store.inserted))
	}

	if len(broker.ackedIDs()) != 1 {
		t.Errorf("acked %d messages, want 1", len(broker.ackedIDs()))
	}
}
