// Package event provides the EventFlow domain model for incoming events and
// their persisted forms, plus the wire codec and business-rule validation.
//
// Timestamps are stored timezone-naive and always mean UTC. The codec
// normalizes every incoming timestamp to UTC and drops the zone before the
// event reaches validation or storage, so downstream queries comparing
// against wall-clock time must assume UTC.
package event

import (
	"time"

	"github.com/google/uuid"
)

type (
	// Type is the closed set of event types accepted by the pipeline.
	Type string

	// Status tracks the processing state of a persisted event.
	Status string

	// Event is an immutable business occurrence submitted by a producer.
	//
	// This is a pure domain model without JSON tags. The codec owns the wire
	// representation and maps to this type; the processor owns an Event only
	// for the duration of a single call and must not retain it.
	Event struct {
		// EventID uniquely identifies the event across redeliveries.
		// It is the idempotency anchor for the whole pipeline.
		EventID uuid.UUID

		// EventType drives type-specific validation and enrichment.
		EventType Type

		// UserID optionally identifies the user the event belongs to.
		UserID string

		// Timestamp is the producer-supplied occurrence time, UTC-naive.
		Timestamp time.Time

		// Properties holds arbitrary JSON-representable event attributes.
		// Always an object, never a scalar or array.
		Properties map[string]any
	}

	// ProcessedEvent is the persisted record marking an Event as handled.
	// At most one row exists per EventID (unique index in the store).
	ProcessedEvent struct {
		ID           uuid.UUID
		EventID      uuid.UUID
		EventType    Type
		UserID       string
		Timestamp    time.Time
		Properties   map[string]any
		ProcessedAt  time.Time
		Status       Status
		EnrichedData map[string]any
		RetryCount   int
	}

	// FailedEvent is a dead-letter record. There is no uniqueness constraint
	// on EventID: the same event may fail through multiple redeliveries and
	// produce multiple rows.
	FailedEvent struct {
		ID           uuid.UUID
		EventID      uuid.UUID
		Payload      []byte // raw payload, verbatim
		ErrorMessage string
		FailedAt     time.Time
		RetryCount   int
	}
)

// Supported event types.
const (
	TypePurchase   Type = "purchase"
	TypeUserSignup Type = "user_signup"
	TypePageView   Type = "page_view"
	TypeCustom     Type = "custom"
)

// Event processing statuses.
const (
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeadLetter Status = "dead_letter"
)

// IsValid reports whether t is one of the supported event types.
func (t Type) IsValid() bool {
	switch t {
	case TypePurchase, TypeUserSignup, TypePageView, TypeCustom:
		return true
	}

	return false
}

// String returns the string form of the event type.
func (t Type) String() string {
	return string(t)
}

// String returns the string form of the status.
func (s Status) String() string {
	return string(s)
}

// Amount returns the numeric "amount" property and whether it is present as
// a JSON number. Used by purchase validation and enrichment.
func (e *Event) Amount() (float64, bool) {
	v, ok := e.Properties["amount"]
	if !ok {
		return 0, false
	}

	f, ok := v.(float64)

	return f, ok
}
