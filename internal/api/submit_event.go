// Package api provides the HTTP ingress for the EventFlow pipeline.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/eventflow-io/eventflow/internal/api/middleware"
	"github.com/eventflow-io/eventflow/internal/event"
	"github.com/eventflow-io/eventflow/internal/metrics"
)

type (
	// EventSubmission is the request body for event submission. It is
	// deliberately looser than the stream wire format: event_id and
	// timestamp are optional and are filled in server-side, matching the
	// contract producers rely on.
	EventSubmission struct {
		EventID    string          `json:"event_id"`   //nolint: tagliatelle
		EventType  string          `json:"event_type"` //nolint: tagliatelle
		UserID     string          `json:"user_id"`    //nolint: tagliatelle
		Timestamp  string          `json:"timestamp"`
		Properties json.RawMessage `json:"properties"`
	}

	// EventResponse is the 202 response for an accepted event.
	EventResponse struct {
		EventID    string `json:"event_id"` //nolint: tagliatelle
		Status     string `json:"status"`
		Message    string `json:"message"`
		ReceivedAt string `json:"received_at"` //nolint: tagliatelle
	}
)

// handleSubmitEvent accepts a single event, durably captures it, and
// enqueues it for asynchronous processing.
//
// The accept path is: normalize the submission into the canonical wire
// form, write the raw event row (audit trail), publish to the stream, then
// answer 202. A 202 therefore guarantees the event is both on disk and on
// the stream; processing itself is asynchronous and failures there are
// visible through the dead-letter store, not this response.
func (s *Server) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, BadRequest("Content-Type must be application/json"))

		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var submission EventSubmission

	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w, r, s.logger, NewProblemDetail(
				http.StatusRequestEntityTooLarge,
				"Request Entity Too Large",
				fmt.Sprintf("Request body exceeds %d bytes", s.config.MaxRequestSize),
			))

			return
		}

		WriteErrorResponse(w, r, s.logger, BadRequest("Request body must be valid JSON"))

		return
	}

	evt, problem := s.normalizeSubmission(&submission)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	s.logger.Info("Event received",
		slog.String("event_id", evt.EventID.String()),
		slog.String("event_type", evt.EventType.String()),
		slog.String("correlation_id", correlationID),
	)

	payload, err := event.Encode(evt)
	if err != nil {
		s.logger.Error("Failed to encode event",
			slog.String("event_id", evt.EventID.String()),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to process event"))

		return
	}

	// Raw capture first: the audit row must exist before the event can be
	// observed on the stream.
	if err := s.store.InsertRaw(r.Context(), evt.EventID, payload); err != nil {
		s.logger.Error("Failed to store raw event",
			slog.String("event_id", evt.EventID.String()),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to process event"))

		return
	}

	messageID, err := s.broker.Publish(r.Context(), payload)
	if err != nil {
		s.logger.Error("Failed to publish event to stream",
			slog.String("event_id", evt.EventID.String()),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to process event"))

		return
	}

	metrics.EventsReceived.WithLabelValues(evt.EventType.String()).Inc()

	s.logger.Info("Event published to queue",
		slog.String("event_id", evt.EventID.String()),
		slog.String("message_id", messageID),
		slog.String("correlation_id", correlationID),
	)

	s.writeJSON(w, r, http.StatusAccepted, EventResponse{
		EventID:    evt.EventID.String(),
		Status:     "accepted",
		Message:    "Event accepted for processing",
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// normalizeSubmission converts a submission into the canonical domain event,
// generating the server-side defaults: a fresh event_id when absent and the
// current UTC instant when the timestamp is absent. Shape violations return
// a 400 problem.
func (s *Server) normalizeSubmission(submission *EventSubmission) (*event.Event, *ProblemDetail) {
	if submission.EventType == "" {
		return nil, BadRequest("event_type is required")
	}

	eventType := event.Type(submission.EventType)
	if !eventType.IsValid() {
		return nil, BadRequest(fmt.Sprintf(
			"invalid event_type %q (valid: purchase, user_signup, page_view, custom)",
			submission.EventType,
		))
	}

	eventID := uuid.New()

	if submission.EventID != "" {
		parsed, err := uuid.Parse(submission.EventID)
		if err != nil {
			return nil, BadRequest(fmt.Sprintf("event_id must be a valid UUID, got %q", submission.EventID))
		}

		eventID = parsed
	}

	timestamp := time.Now().UTC()

	if submission.Timestamp != "" {
		parsed, err := event.ParseTimestamp(submission.Timestamp)
		if err != nil {
			return nil, BadRequest(fmt.Sprintf("timestamp must be a valid instant, got %q", submission.Timestamp))
		}

		timestamp = parsed
	}

	properties := make(map[string]any)

	if len(submission.Properties) > 0 {
		if err := json.Unmarshal(submission.Properties, &properties); err != nil {
			return nil, BadRequest("properties must be a JSON object")
		}
	}

	return &event.Event{
		EventID:    eventID,
		EventType:  eventType,
		UserID:     submission.UserID,
		Timestamp:  timestamp,
		Properties: properties,
	}, nil
}
