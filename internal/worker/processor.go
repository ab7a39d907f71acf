package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eventflow-io/eventflow/internal/event"
	"github.com/eventflow-io/eventflow/internal/metrics"
)

// Outcome classifies the result of processing one message.
type Outcome int

// Processing outcomes.
const (
	// OutcomeProcessed means the event was validated, enriched and persisted.
	OutcomeProcessed Outcome = iota

	// OutcomeDuplicate means the event id was already persisted, either at
	// the dedupe gate or by losing the insert race. Counts as success.
	OutcomeDuplicate

	// OutcomeFailed means the event was routed to the dead letter store.
	OutcomeFailed

	// OutcomeTimeout means the per-event deadline elapsed. No ack, no dead
	// letter row; the broker redelivers the message.
	OutcomeTimeout

	// OutcomeSkipped means the message carried no payload and was dropped.
	OutcomeSkipped
)

// Failure kinds recorded on the failed-events counter.
const (
	errorKindDecode     = "decode"
	errorKindValidation = "validation"
	errorKindEnrichment = "enrichment"
	errorKindStorage    = "storage"
	errorKindUnknown    = "unknown"
)

type (
	// Result is the explicit success/failure union a processed message
	// resolves to. DLQWritten distinguishes a Failed outcome that is safe to
	// ack (the dead letter row exists) from one that must be redelivered.
	Result struct {
		Outcome    Outcome
		Err        error
		DLQWritten bool
	}

	// Processor drives a single event through the pipeline:
	// decode, dedupe, validate, enrich with retry, persist with retry,
	// dead-letter on failure. It holds no broker handle and no session
	// across returns.
	Processor struct {
		store    Store
		enricher Enricher
		backoff  BackoffPolicy
		logger   *slog.Logger
		now      func() time.Time
		sleep    SleepFunc
	}

	// ProcessorOption configures optional Processor behavior.
	ProcessorOption func(*Processor)
)

// Succeeded reports whether the outcome counts as successful processing.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeProcessed || r.Outcome == OutcomeDuplicate || r.Outcome == OutcomeSkipped
}

// ShouldAck reports whether the message may be released from the broker's
// pending set. Failed outcomes ack only once the dead letter row is durable;
// timeouts never ack.
func (r Result) ShouldAck() bool {
	if r.Succeeded() {
		return true
	}

	return r.Outcome == OutcomeFailed && r.DLQWritten
}

// WithProcessorClock overrides the processor's clock for deterministic tests.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
	}
}

// WithSleep overrides the retry sleep function so tests run without delays.
func WithSleep(sleep SleepFunc) ProcessorOption {
	return func(p *Processor) {
		p.sleep = sleep
	}
}

// NewProcessor creates a Processor with the given dependencies.
func NewProcessor(
	store Store,
	enricher Enricher,
	backoff BackoffPolicy,
	logger *slog.Logger,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		store:    store,
		enricher: enricher,
		backoff:  backoff,
		logger:   logger,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Process runs the pipeline for one message payload. The caller owns the
// context deadline; an expired deadline anywhere in the pipeline resolves to
// OutcomeTimeout so the dispatcher leaves the message un-acked.
func (p *Processor) Process(ctx context.Context, payload []byte, messageID string) Result {
	start := p.now()
	logger := p.logger.With(slog.String("message_id", messageID))

	// Decode.
	evt, err := event.Decode(payload)
	if err != nil {
		logger.Warn("Failed to decode event payload", slog.Any("error", err))

		return p.deadLetter(ctx, logger, deadLetterEntry{
			eventID:   uuid.Nil,
			eventType: errorKindUnknown,
			errorKind: errorKindDecode,
			payload:   payload,
			cause:     err,
		})
	}

	logger = logger.With(
		slog.String("event_id", evt.EventID.String()),
		slog.String("event_type", evt.EventType.String()),
	)

	// Dedupe. The idempotency gate: one read per event, no in-memory cache.
	exists, err := p.store.ExistsProcessed(ctx, evt.EventID)
	if err != nil {
		if timedOut(ctx, err) {
			return Result{Outcome: OutcomeTimeout, Err: err}
		}

		logger.Error("Dedupe check failed", slog.Any("error", err))

		return p.deadLetter(ctx, logger, deadLetterEntry{
			eventID:   evt.EventID,
			eventType: evt.EventType.String(),
			errorKind: errorKindStorage,
			payload:   payload,
			cause:     err,
		})
	}

	if exists {
		logger.Info("Skipping duplicate event")
		metrics.EventsDuplicate.WithLabelValues(evt.EventType.String()).Inc()

		return Result{Outcome: OutcomeDuplicate}
	}

	// Validate. Pure, no I/O, not retried.
	if err := event.Validate(evt, p.now()); err != nil {
		logger.Warn("Event failed validation", slog.Any("error", err))

		return p.deadLetter(ctx, logger, deadLetterEntry{
			eventID:   evt.EventID,
			eventType: evt.EventType.String(),
			errorKind: errorKindValidation,
			payload:   payload,
			cause:     err,
		})
	}

	// Enrich, under the retry policy: the enricher models an external
	// dependency and transient failures within the window stay silent.
	var enriched map[string]any

	err = Retry(ctx, p.backoff, p.sleep, func(ctx context.Context) error {
		var enrichErr error
		enriched, enrichErr = p.enricher.Enrich(ctx, evt)

		return enrichErr
	})
	if err != nil {
		if timedOut(ctx, err) {
			return Result{Outcome: OutcomeTimeout, Err: err}
		}

		logger.Error("Enrichment failed after retries", slog.Any("error", err))

		return p.deadLetter(ctx, logger, deadLetterEntry{
			eventID:    evt.EventID,
			eventType:  evt.EventType.String(),
			errorKind:  errorKindEnrichment,
			payload:    payload,
			cause:      err,
			retryCount: p.backoff.MaxAttempts,
		})
	}

	// Persist, same retry policy. A duplicate key here means another
	// consumer won the race between the dedupe gate and this insert.
	processed := &event.ProcessedEvent{
		EventID:      evt.EventID,
		EventType:    evt.EventType,
		UserID:       evt.UserID,
		Timestamp:    evt.Timestamp,
		Properties:   evt.Properties,
		ProcessedAt:  p.now().UTC(),
		Status:       event.StatusCompleted,
		EnrichedData: enriched,
		RetryCount:   0,
	}

	err = Retry(ctx, p.backoff, p.sleep, func(ctx context.Context) error {
		insertErr := p.store.InsertProcessed(ctx, processed)
		if errors.Is(insertErr, ErrDuplicateEvent) {
			// Not transient; stop the retry loop immediately.
			return Permanent(insertErr)
		}

		return insertErr
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			logger.Info("Lost persist race to another worker, treating as duplicate")
			metrics.EventsDuplicate.WithLabelValues(evt.EventType.String()).Inc()

			return Result{Outcome: OutcomeDuplicate}
		}

		if timedOut(ctx, err) {
			return Result{Outcome: OutcomeTimeout, Err: err}
		}

		logger.Error("Persist failed after retries", slog.Any("error", err))

		return p.deadLetter(ctx, logger, deadLetterEntry{
			eventID:    evt.EventID,
			eventType:  evt.EventType.String(),
			errorKind:  errorKindStorage,
			payload:    payload,
			cause:      err,
			retryCount: p.backoff.MaxAttempts,
		})
	}

	duration := p.now().Sub(start)

	metrics.EventsProcessed.WithLabelValues(evt.EventType.String()).Inc()
	metrics.ProcessingDuration.WithLabelValues(evt.EventType.String()).Observe(duration.Seconds())

	logger.Info("Event processed", slog.Duration("duration", duration))

	return Result{Outcome: OutcomeProcessed}
}

// deadLetterEntry carries everything the dead letter branch needs about the
// failing event.
type deadLetterEntry struct {
	eventID    uuid.UUID
	eventType  string
	errorKind  string
	payload    []byte
	cause      error
	retryCount int
}

// deadLetter records a FailedEvent with the original payload and the error
// string. If the insert itself fails the secondary failure is logged and the
// result stays Failed without DLQWritten, so the broker redelivers and a new
// dead letter attempt is made.
func (p *Processor) deadLetter(ctx context.Context, logger *slog.Logger, entry deadLetterEntry) Result {
	if timedOut(ctx, entry.cause) {
		return Result{Outcome: OutcomeTimeout, Err: entry.cause}
	}

	failed := &event.FailedEvent{
		EventID:      entry.eventID,
		Payload:      entry.payload,
		ErrorMessage: entry.cause.Error(),
		FailedAt:     p.now().UTC(),
		RetryCount:   entry.retryCount,
	}

	result := Result{Outcome: OutcomeFailed, Err: entry.cause}

	if err := p.store.InsertFailed(ctx, failed); err != nil {
		logger.Error("Dead letter insert failed",
			slog.Any("error", err),
			slog.Any("original_error", entry.cause))

		return result
	}

	result.DLQWritten = true

	metrics.EventsFailed.WithLabelValues(entry.eventType, entry.errorKind).Inc()

	logger.Warn("Event routed to dead letter store", slog.Any("error", entry.cause))

	return result
}

// timedOut reports whether err or the context indicates the per-event
// deadline elapsed or the worker is shutting down mid-pipeline.
func timedOut(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
