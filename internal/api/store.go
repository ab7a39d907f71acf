// Package api provides the HTTP ingress for the EventFlow pipeline.
package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/eventflow-io/eventflow/internal/storage"
)

// EventStore is the narrow persistence contract the ingress needs: raw
// event capture for audit, counters for the metrics summary, and a health
// probe. The full pipeline store in internal/storage satisfies it.
type EventStore interface {
	// InsertRaw records the event payload exactly as accepted, before it
	// enters the stream.
	InsertRaw(ctx context.Context, eventID uuid.UUID, payload []byte) error

	// CountProcessed reports the number of successfully processed events.
	CountProcessed(ctx context.Context) (int64, error)

	// CountFailed reports the number of dead-lettered events.
	CountFailed(ctx context.Context) (int64, error)

	// HealthCheck verifies database connectivity.
	HealthCheck(ctx context.Context) error
}

var _ EventStore = (*storage.EventStore)(nil)
