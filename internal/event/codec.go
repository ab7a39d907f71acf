package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for payload decoding failures. All of them are
// non-retriable: a payload that fails to decode goes to the dead-letter
// store, never back onto the stream.
var (
	// ErrInvalidPayload is returned when the payload is not a JSON object.
	ErrInvalidPayload = errors.New("payload must be a JSON object")

	// ErrMissingEventType is returned when the event_type field is absent.
	ErrMissingEventType = errors.New("event_type is required")

	// ErrInvalidEventType is returned when event_type is not in the closed enum.
	ErrInvalidEventType = errors.New("invalid event_type")

	// ErrInvalidEventID is returned when event_id is absent or not a UUID.
	ErrInvalidEventID = errors.New("event_id must be a valid UUID")

	// ErrInvalidTimestamp is returned when timestamp is absent or unparsable.
	ErrInvalidTimestamp = errors.New("timestamp must be a valid instant")

	// ErrInvalidProperties is returned when properties is not a JSON object.
	ErrInvalidProperties = errors.New("properties must be an object")
)

// wireEvent is the JSON wire representation of an Event as serialized into
// the stream message "data" field. Unknown top-level fields are ignored.
type wireEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	UserID     string          `json:"user_id,omitempty"`
	Timestamp  string          `json:"timestamp"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// timestampLayouts are the accepted timestamp formats, tried in order.
// RFC3339 covers zone-aware producers; the naive layouts cover producers
// that already emit UTC-naive instants (interpreted as UTC).
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// wireTimestampLayout is the canonical UTC-naive layout used when encoding.
const wireTimestampLayout = "2006-01-02T15:04:05.999999"

// Decode parses payload bytes into a structured Event and enforces the
// shape invariants: event_type in the closed enum, event_id a UUID,
// timestamp a parsable instant, properties an object. The timestamp is
// normalized to UTC with the zone dropped.
func Decode(payload []byte) (*Event, error) {
	var wire wireEvent

	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, err.Error())
	}

	if wire.EventType == "" {
		return nil, ErrMissingEventType
	}

	eventType := Type(wire.EventType)
	if !eventType.IsValid() {
		return nil, fmt.Errorf("%w: %q (valid: purchase, user_signup, page_view, custom)",
			ErrInvalidEventType, wire.EventType)
	}

	eventID, err := uuid.Parse(wire.EventID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventID, wire.EventID)
	}

	timestamp, err := ParseTimestamp(wire.Timestamp)
	if err != nil {
		return nil, err
	}

	properties := make(map[string]any)

	if len(wire.Properties) > 0 {
		if err := json.Unmarshal(wire.Properties, &properties); err != nil {
			return nil, fmt.Errorf("%w: got %s", ErrInvalidProperties, truncate(wire.Properties))
		}
	}

	return &Event{
		EventID:    eventID,
		EventType:  eventType,
		UserID:     wire.UserID,
		Timestamp:  timestamp,
		Properties: properties,
	}, nil
}

// Encode serializes an Event into its wire JSON form. The timestamp is
// written UTC-naive (no zone suffix) so that Encode(Decode(p)) preserves
// the normalized instant.
func Encode(e *Event) ([]byte, error) {
	properties, err := json.Marshal(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}

	wire := wireEvent{
		EventID:    e.EventID.String(),
		EventType:  string(e.EventType),
		UserID:     e.UserID,
		Timestamp:  e.Timestamp.UTC().Format(wireTimestampLayout),
		Properties: properties,
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}

	return data, nil
}

// ParseTimestamp parses a wire timestamp in any accepted layout and
// normalizes it to UTC-naive (the zone is converted to UTC and dropped).
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: timestamp is empty", ErrInvalidTimestamp)
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
}

// IsDecodeError reports whether err originates from payload decoding.
// Used by the processor to classify failures for the dead-letter path
// and the failure metrics.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrMissingEventType) ||
		errors.Is(err, ErrInvalidEventType) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrInvalidProperties)
}

// truncate shortens raw JSON for error messages.
func truncate(raw json.RawMessage) string {
	const limit = 64

	s := string(raw)
	if len(s) > limit {
		return s[:limit] + "..."
	}

	return s
}
