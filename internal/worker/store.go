// Package worker consumes events from the stream broker and drives each one
// through the processing pipeline: parse, dedupe, validate, enrich, persist,
// ack. Delivery is at least once; side effects are at most once, guarded by
// the unique event id constraint in storage.
package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/eventflow-io/eventflow/internal/event"
)

// ErrDuplicateEvent is returned by Store.InsertProcessed when another worker
// persisted the same event id first. Callers treat it as success: the event
// is already durably processed.
var ErrDuplicateEvent = errors.New("event already processed")

type (
	// Store is the persistence contract the pipeline needs. Implemented by
	// storage.EventStore with a PostgreSQL backend.
	Store interface {
		// ExistsProcessed reports whether an event id has already been
		// persisted as processed.
		ExistsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error)

		// InsertProcessed persists a fully processed event. Returns
		// ErrDuplicateEvent when the event id already exists.
		InsertProcessed(ctx context.Context, processed *event.ProcessedEvent) error

		// InsertFailed records a permanently failed event for inspection
		// and manual replay.
		InsertFailed(ctx context.Context, failed *event.FailedEvent) error

		// HealthCheck verifies the store can serve queries.
		HealthCheck(ctx context.Context) error
	}

	// Enricher augments a validated event with derived data. Implemented by
	// enrichment.Enricher.
	Enricher interface {
		Enrich(ctx context.Context, e *event.Event) (map[string]any, error)
	}
)
