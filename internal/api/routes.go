// Package api provides the HTTP ingress for the EventFlow pipeline.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eventflow-io/eventflow/internal/api/middleware"
)

const (
	serviceName    = "EventFlow API"
	serviceVersion = "1.0.0"

	healthCheckTimeout = 2 * time.Second
	summaryTimeout     = 5 * time.Second
	expectedURLParts   = 2
)

type (
	// ServiceInfo is the root endpoint response structure.
	ServiceInfo struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
		Uptime  string `json:"uptime,omitempty"`
	}

	// HealthCheck is the health endpoint response structure. Services maps
	// dependency name to "healthy" or "unhealthy".
	HealthCheck struct {
		Status    string            `json:"status"`
		Timestamp string            `json:"timestamp"`
		Services  map[string]string `json:"services"`
		Version   string            `json:"version"`
	}

	// MetricsSummary is the operational snapshot returned by the metrics
	// summary endpoint, consumed by the monitor CLI.
	MetricsSummary struct {
		QueueLength     int64  `json:"queue_length"`     //nolint: tagliatelle
		PendingMessages int64  `json:"pending_messages"` //nolint: tagliatelle
		ProcessedCount  int64  `json:"processed_count"`  //nolint: tagliatelle
		FailedCount     int64  `json:"failed_count"`     //nolint: tagliatelle
		Timestamp       string `json:"timestamp"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Path    string           // The URL path for this route (e.g., "/health")
		Handler http.HandlerFunc // The HTTP handler function for this route
	}
)

// setupRoutes sets up all HTTP routes for the ingress server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public endpoints: health probes and the service banner
	s.registerPublicRoutes(
		mux,
		Route{"GET /health", s.handleHealth},
		Route{"/", s.handleRoot}, // service banner plus catch-all 404
	)

	// Protected endpoints
	mux.HandleFunc("POST /events", s.handleSubmitEvent)
	mux.HandleFunc("GET /metrics/summary", s.handleMetricsSummary)
}

// registerPublicRoutes registers HTTP routes that bypass authentication and
// rate limiting. It registers the handler with the mux and marks the path
// as public for the auth middleware.
//
// Public routes should only be used for health checks and the service
// banner. Never register business logic endpoints as public.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		// Go 1.22+ method-based routing uses "GET /path" format, but
		// r.URL.Path carries just "/path", so strip the method prefix
		// before registering the bypass.
		path := route.Path

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("path", route.Path))

			continue
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

// handleRoot serves the service banner on "/" and a 404 problem for any
// unmatched path.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))

		return
	}

	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	s.writeJSON(w, r, http.StatusOK, ServiceInfo{
		Service: serviceName,
		Version: serviceVersion,
		Status:  "running",
		Uptime:  uptime,
	})
}

// handleHealth aggregates dependency health. Reports 200 when both the
// database and the broker respond, 503 when either is down, with the
// per-service breakdown in the body either way.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	services := map[string]string{
		"database": "healthy",
		"broker":   "healthy",
	}

	if err := s.store.HealthCheck(ctx); err != nil {
		services["database"] = "unhealthy"

		s.logger.Error("Database health check failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}

	if err := s.broker.HealthCheck(ctx); err != nil {
		services["broker"] = "unhealthy"

		s.logger.Error("Broker health check failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}

	overall := "healthy"
	statusCode := http.StatusOK

	for _, state := range services {
		if state != "healthy" {
			overall = "unhealthy"
			statusCode = http.StatusServiceUnavailable

			break
		}
	}

	s.writeJSON(w, r, statusCode, HealthCheck{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
		Version:   serviceVersion,
	})
}

// handleMetricsSummary reports the operational snapshot: stream depth,
// pending (delivered but un-acked) messages, and store counters.
func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), summaryTimeout)
	defer cancel()

	correlationID := middleware.GetCorrelationID(r.Context())

	queueLength, err := s.broker.StreamLength(ctx)
	if err != nil {
		s.logger.Error("Failed to read stream length",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to retrieve metrics"))

		return
	}

	pending, err := s.broker.PendingCount(ctx)
	if err != nil {
		s.logger.Error("Failed to read pending count",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to retrieve metrics"))

		return
	}

	processed, err := s.store.CountProcessed(ctx)
	if err != nil {
		s.logger.Error("Failed to count processed events",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to retrieve metrics"))

		return
	}

	failed, err := s.store.CountFailed(ctx)
	if err != nil {
		s.logger.Error("Failed to count failed events",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to retrieve metrics"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, MetricsSummary{
		QueueLength:     queueLength,
		PendingMessages: pending,
		ProcessedCount:  processed,
		FailedCount:     failed,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON marshals v and writes it with the given status code. Marshal
// failures degrade to a 500 problem; write failures are logged only since
// headers are already sent.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// hasJSONContentType checks if the Content-Type header starts with
// "application/json". This allows charset parameters.
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
