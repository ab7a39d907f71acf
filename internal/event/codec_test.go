package event

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDecode_ValidPayload(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	payload := []byte(`{
		"event_id": "11111111-1111-1111-1111-111111111111",
		"event_type": "purchase",
		"user_id": "u1",
		"timestamp": "2024-01-01T00:00:00",
		"properties": {"amount": 2500, "product_id": "p1"}
	}`)

	e, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}

	if e.EventID != uuid.MustParse("11111111-1111-1111-1111-111111111111") {
		t.Errorf("EventID = %s, want 11111111-1111-1111-1111-111111111111", e.EventID)
	}

	if e.EventType != TypePurchase {
		t.Errorf("EventType = %s, want purchase", e.EventType)
	}

	if e.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", e.UserID)
	}

	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !e.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %s, want %s", e.Timestamp, want)
	}

	if amount, ok := e.Amount(); !ok || amount != 2500 {
		t.Errorf("Amount() = %v, %v, want 2500, true", amount, ok)
	}
}

func TestDecode_UnknownTopLevelFieldsIgnored(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	payload := []byte(`{
		"event_id": "22222222-2222-2222-2222-222222222222",
		"event_type": "custom",
		"timestamp": "2024-06-01T12:00:00Z",
		"properties": {},
		"schema_version": 3,
		"source": "sdk-go"
	}`)

	e, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}

	if e.EventType != TypeCustom {
		t.Errorf("EventType = %s, want custom", e.EventType)
	}
}

func TestDecode_TimestampNormalizedToUTC(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{"naive treated as UTC", "2024-01-01T10:30:00", time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"zulu suffix", "2024-01-01T10:30:00Z", time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"positive offset converted", "2024-01-01T12:30:00+02:00", time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"negative offset converted", "2024-01-01T05:30:00-05:00", time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"fractional seconds", "2024-01-01T10:30:00.250000", time.Date(2024, 1, 1, 10, 30, 0, 250000000, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.value)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) unexpected error: %v", tt.value, err)
			}

			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %s, want %s", tt.value, got, tt.want)
			}

			if got.Location() != time.UTC {
				t.Errorf("ParseTimestamp(%q) location = %s, want UTC", tt.value, got.Location())
			}
		})
	}
}

func TestDecode_ShapeViolations(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"malformed JSON", `{"event_type": `, ErrInvalidPayload},
		{"payload is an array", `[1, 2, 3]`, ErrInvalidPayload},
		{
			"missing event_type",
			`{"event_id": "11111111-1111-1111-1111-111111111111", "timestamp": "2024-01-01T00:00:00"}`,
			ErrMissingEventType,
		},
		{
			"unknown event_type",
			`{"event_id": "11111111-1111-1111-1111-111111111111", "event_type": "refund", "timestamp": "2024-01-01T00:00:00"}`,
			ErrInvalidEventType,
		},
		{
			"missing event_id",
			`{"event_type": "custom", "timestamp": "2024-01-01T00:00:00"}`,
			ErrInvalidEventID,
		},
		{
			"malformed event_id",
			`{"event_id": "not-a-uuid", "event_type": "custom", "timestamp": "2024-01-01T00:00:00"}`,
			ErrInvalidEventID,
		},
		{
			"missing timestamp",
			`{"event_id": "11111111-1111-1111-1111-111111111111", "event_type": "custom"}`,
			ErrInvalidTimestamp,
		},
		{
			"unparsable timestamp",
			`{"event_id": "11111111-1111-1111-1111-111111111111", "event_type": "custom", "timestamp": "yesterday"}`,
			ErrInvalidTimestamp,
		},
		{
			"properties is a scalar",
			`{"event_id": "11111111-1111-1111-1111-111111111111", "event_type": "custom", "timestamp": "2024-01-01T00:00:00", "properties": 42}`,
			ErrInvalidProperties,
		},
		{
			"properties is an array",
			`{"event_id": "11111111-1111-1111-1111-111111111111", "event_type": "custom", "timestamp": "2024-01-01T00:00:00", "properties": ["a"]}`,
			ErrInvalidProperties,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}

			if !IsDecodeError(err) {
				t.Errorf("IsDecodeError(%v) = false, want true", err)
			}
		})
	}
}

func TestDecode_MissingPropertiesDefaultsToEmptyObject(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	payload := []byte(`{
		"event_id": "33333333-3333-3333-3333-333333333333",
		"event_type": "page_view",
		"timestamp": "2024-01-01T00:00:00"
	}`)

	e, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}

	if e.Properties == nil || len(e.Properties) != 0 {
		t.Errorf("Properties = %v, want empty map", e.Properties)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	original := &Event{
		EventID:   uuid.MustParse("44444444-4444-4444-4444-444444444444"),
		EventType: TypePurchase,
		UserID:    "u42",
		Timestamp: time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
		Properties: map[string]any{
			"amount":     float64(1250.5),
			"product_id": "p9",
			"tags":       []any{"a", "b"},
		},
	}

	encoded, err := Encode(original)
	if err != nil {
		t.Fatalf("Encode() unexpected error: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() unexpected error: %v", err)
	}

	if decoded.EventID != original.EventID {
		t.Errorf("EventID = %s, want %s", decoded.EventID, original.EventID)
	}

	if decoded.EventType != original.EventType {
		t.Errorf("EventType = %s, want %s", decoded.EventType, original.EventType)
	}

	if decoded.UserID != original.UserID {
		t.Errorf("UserID = %q, want %q", decoded.UserID, original.UserID)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp = %s, want %s", decoded.Timestamp, original.Timestamp)
	}

	if amount, ok := decoded.Amount(); !ok || amount != 1250.5 {
		t.Errorf("Amount() = %v, %v, want 1250.5, true", amount, ok)
	}

	if decoded.Properties["product_id"] != "p9" {
		t.Errorf("Properties[product_id] = %v, want p9", decoded.Properties["product_id"])
	}
}
