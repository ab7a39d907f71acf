package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eventflow-io/eventflow/internal/metrics"
	"github.com/eventflow-io/eventflow/internal/stream"
)

// readErrorBackoff is the pause after an unhandled read-path failure. The
// worker never crashes on a bad read; it waits and tries again.
const readErrorBackoff = 5 * time.Second

// Worker is the dispatcher: it pulls message batches from the broker, fans
// each message out to a concurrent pipeline task, waits for the whole batch,
// then acks the messages whose outcome allows it.
//
// Back-pressure is structural: no new batch is read until the current
// batch's tasks have completed, so in-flight work never exceeds BatchSize.
type Worker struct {
	cfg         *Config
	broker      stream.Broker
	processor   *Processor
	logger      *slog.Logger
	readBackoff time.Duration
}

// NewWorker creates a dispatcher over the given broker and processor.
func NewWorker(cfg *Config, broker stream.Broker, processor *Processor, logger *slog.Logger) *Worker {
	return &Worker{
		cfg:         cfg,
		broker:      broker,
		processor:   processor,
		logger:      logger.With(slog.String("worker_id", cfg.WorkerID)),
		readBackoff: readErrorBackoff,
	}
}

// Run executes the consume loop until ctx is cancelled. On shutdown the
// loop stops reading new batches; in-flight tasks run to natural completion
// under their own deadlines because per-event contexts are detached from
// the loop context.
func (w *Worker) Run(ctx context.Context) error {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	w.logger.Info("Worker running",
		slog.Int("batch_size", w.cfg.BatchSize),
		slog.Duration("processing_timeout", w.cfg.ProcessingTimeout))

	for {
		if ctx.Err() != nil {
			w.logger.Info("Worker draining, no new batches will be read")

			return nil
		}

		messages, err := w.broker.ReadBatch(ctx, w.cfg.WorkerID, w.cfg.BatchSize, w.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue // shutdown raced the read; loop exits above
			}

			w.logger.Error("Broker read failed", slog.Any("error", err))

			w.pause(ctx, w.readBackoff)

			continue
		}

		w.observeQueueDepth(ctx)

		if len(messages) == 0 {
			continue // read timeout, block again
		}

		results := w.runBatch(ctx, messages)
		w.ackBatch(messages, results)
	}
}

// runBatch fans the batch out to one goroutine per message and joins them
// all. Results land in an indexed slice so no shared mutable collection is
// needed.
func (w *Worker) runBatch(ctx context.Context, messages []stream.Message) []Result {
	results := make([]Result, len(messages))

	var wg sync.WaitGroup

	for i, msg := range messages {
		wg.Add(1)

		go func(i int, msg stream.Message) {
			defer wg.Done()

			results[i] = w.processMessage(ctx, msg)
		}(i, msg)
	}

	wg.Wait()

	return results
}

// processMessage runs one message under the per-event deadline. The context
// is detached from the loop context so shutdown does not cancel in-flight
// work; only the event's own deadline bounds it.
func (w *Worker) processMessage(loopCtx context.Context, msg stream.Message) Result {
	if len(msg.Data) == 0 {
		w.logger.Warn("Message carries no data field, dropping",
			slog.String("message_id", msg.ID))

		return Result{Outcome: OutcomeSkipped}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(loopCtx), w.cfg.ProcessingTimeout)
	defer cancel()

	return w.processor.Process(ctx, msg.Data, msg.ID)
}

// ackBatch acknowledges every message whose result permits it. Timeouts and
// failed dead letter writes stay un-acked for the broker to redeliver.
// Acks run on a background context so a shutdown signal cannot strand a
// fully processed message in the pending set.
func (w *Worker) ackBatch(messages []stream.Message, results []Result) {
	ctx := context.Background()

	for i, msg := range messages {
		result := results[i]

		if result.Outcome == OutcomeTimeout {
			metrics.EventsTimeout.Inc()

			w.logger.Warn("Event processing timed out, leaving message for redelivery",
				slog.String("message_id", msg.ID))

			continue
		}

		if !result.ShouldAck() {
			w.logger.Warn("Leaving message un-acked for redelivery",
				slog.String("message_id", msg.ID),
				slog.Any("error", result.Err))

			continue
		}

		if err := w.broker.Ack(ctx, msg.ID); err != nil {
			// The broker's pending set keeps the message; redelivery will
			// hit the idempotency gate.
			w.logger.Error("Ack failed",
				slog.String("message_id", msg.ID),
				slog.Any("error", err))
		}
	}
}

// observeQueueDepth publishes the stream length to the queue-depth gauge.
// Best effort: a failed length query never interrupts the loop.
func (w *Worker) observeQueueDepth(ctx context.Context) {
	length, err := w.broker.StreamLength(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Debug("Stream length query failed", slog.Any("error", err))
		}

		return
	}

	metrics.QueueDepth.Set(float64(length))
}

// pause sleeps for d unless ctx is cancelled first.
func (w *Worker) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
