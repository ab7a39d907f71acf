package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/eventflow-io/eventflow/internal/config"
	"github.com/eventflow-io/eventflow/internal/event"
	"github.com/eventflow-io/eventflow/internal/worker"
)

// Sentinel errors for event storage operations.
var (
	// ErrEventStoreFailed is returned when an event storage operation fails.
	ErrEventStoreFailed = errors.New("event storage failed")

	// ErrDedupeCheckFailed is returned when the processed-event existence
	// check fails before processing starts.
	ErrDedupeCheckFailed = errors.New("dedupe check failed")

	// Compile-time interface assertion. EventStore implements worker.Store
	// (the persistence contract of the processing pipeline).
	_ worker.Store = (*EventStore)(nil)
)

const (
	// uniqueViolation is the PostgreSQL error code raised when the unique
	// index on processed_events.event_id rejects a concurrent duplicate.
	uniqueViolation = pq.ErrorCode("23505")

	queryTimeout = 10 * time.Second
)

// EventStore persists pipeline results with a PostgreSQL backend.
//
// Idempotency is enforced by the database, not the application: the unique
// index on processed_events.event_id turns a duplicate insert race into
// worker.ErrDuplicateEvent, which the pipeline counts as success.
type EventStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewEventStore creates a PostgreSQL-backed event store.
// Returns ErrNoDatabaseConnection if conn is nil.
func NewEventStore(conn *Connection) (*EventStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &EventStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// ExistsProcessed reports whether an event id has already been persisted.
// Used as the cheap pre-check before processing; the unique index remains
// the authoritative guard for races that slip past it.
func (s *EventStore) ExistsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool

	err := s.conn.QueryRowContext(queryCtx,
		`SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrDedupeCheckFailed, err)
	}

	return exists, nil
}

// InsertProcessed persists a fully processed event. A unique violation on
// event_id maps to worker.ErrDuplicateEvent: a concurrent worker won the
// race and the event is already durably processed.
func (s *EventStore) InsertProcessed(ctx context.Context, processed *event.ProcessedEvent) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	properties, err := json.Marshal(processed.Properties)
	if err != nil {
		return fmt.Errorf("%w: marshal properties: %w", ErrEventStoreFailed, err)
	}

	enriched, err := json.Marshal(processed.EnrichedData)
	if err != nil {
		return fmt.Errorf("%w: marshal enriched data: %w", ErrEventStoreFailed, err)
	}

	_, err = s.conn.ExecContext(queryCtx, `
		INSERT INTO processed_events
			(event_id, event_type, user_id, timestamp, properties,
			 processed_at, status, enriched_data, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		processed.EventID,
		processed.EventType.String(),
		nullableString(processed.UserID),
		processed.Timestamp,
		string(properties),
		processed.ProcessedAt,
		processed.Status.String(),
		string(enriched),
		processed.RetryCount,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			s.logger.Debug("Duplicate event id on insert",
				slog.String("event_id", processed.EventID.String()))

			return worker.ErrDuplicateEvent
		}

		return fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return nil
}

// InsertFailed records a permanently failed event in the dead letter table.
// No uniqueness constraint applies: repeated redelivery failures of the same
// event produce one row each.
func (s *EventStore) InsertFailed(ctx context.Context, failed *event.FailedEvent) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.conn.ExecContext(queryCtx, `
		INSERT INTO failed_events
			(event_id, payload, error_message, failed_at, retry_count)
		VALUES ($1, $2, $3, $4, $5)`,
		nullableUUID(failed.EventID),
		string(failed.Payload),
		failed.ErrorMessage,
		failed.FailedAt,
		failed.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return nil
}

// InsertRaw records an accepted submission before it enters the stream.
// Called by the ingress API, not the worker.
func (s *EventStore) InsertRaw(ctx context.Context, eventID uuid.UUID, payload []byte) error {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.conn.ExecContext(queryCtx, `
		INSERT INTO raw_events (event_id, payload, received_at)
		VALUES ($1, $2, $3)`,
		eventID,
		string(payload),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return nil
}

// CountProcessed returns the total number of processed events. Used by the
// operational summary endpoint.
func (s *EventStore) CountProcessed(ctx context.Context) (int64, error) {
	return s.count(ctx, "processed_events")
}

// CountFailed returns the total number of dead-lettered events.
func (s *EventStore) CountFailed(ctx context.Context) (int64, error) {
	return s.count(ctx, "failed_events")
}

func (s *EventStore) count(ctx context.Context, table string) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int64

	// table is always one of the two fixed names above, never user input.
	err := s.conn.QueryRowContext(queryCtx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEventStoreFailed, err)
	}

	return n, nil
}

// HealthCheck verifies the database connection is healthy and ready to serve
// requests. Used by the /health endpoint and readiness probes.
func (s *EventStore) HealthCheck(ctx context.Context) error {
	if s.conn == nil {
		return ErrNoDatabaseConnection
	}

	return s.conn.HealthCheck(ctx)
}

// IsConnectionError reports whether err indicates a lost or unreachable
// database rather than a statement-level failure.
//
// PostgreSQL class 08 covers connection exceptions:
//
//	08000 - connection_exception
//	08003 - connection_does_not_exist
//	08006 - connection_failure
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "08")
	}

	return errors.Is(err, ErrConnectionFailed)
}

// nullableString maps the empty string to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// nullableUUID maps the zero UUID to SQL NULL. Parse failures reach the
// dead letter table without a usable event id.
func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}

	return id
}
