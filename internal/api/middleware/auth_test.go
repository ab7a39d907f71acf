package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eventflow-io/eventflow/internal/storage"
)

func seedKeyStore(t *testing.T, mutate func(*storage.APIKey)) (*storage.InMemoryKeyStore, string) {
	t.Helper()

	store := storage.NewInMemoryKeyStore()

	key, err := storage.GenerateAPIKey("checkout-service")
	if err != nil {
		t.Fatalf("failed to generate API key: %v", err)
	}

	apiKey := &storage.APIKey{
		ID:          "key-1",
		Key:         key,
		Producer:    "checkout-service",
		Name:        "Checkout producer key",
		Permissions: []string{"events:write"},
		CreatedAt:   time.Now(),
		Active:      true,
	}

	if mutate != nil {
		mutate(apiKey)
	}

	if err := store.Add(context.Background(), apiKey); err != nil {
		t.Fatalf("failed to seed key store: %v", err)
	}

	return store, key
}

func authHandler(store storage.KeyStore) (http.Handler, *ProducerContext) {
	captured := &ProducerContext{}

	handler := AuthenticateProducer(store, testLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if producerCtx, ok := GetProducerContext(r.Context()); ok {
				*captured = producerCtx
			}

			w.WriteHeader(http.StatusOK)
		}))

	return handler, captured
}

func TestAuthenticateProducer_ValidKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, key := seedKeyStore(t, nil)
	handler, captured := authHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("X-Api-Key", key)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if captured.Producer != "checkout-service" {
		t.Errorf("Producer = %q, want checkout-service", captured.Producer)
	}

	if captured.KeyID != "key-1" {
		t.Errorf("KeyID = %q, want key-1", captured.KeyID)
	}
}

func TestAuthenticateProducer_BearerFallback(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, key := seedKeyStore(t, nil)
	handler, _ := authHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("Authorization", "Bearer "+key)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthenticateProducer_MissingKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, _ := seedKeyStore(t, nil)
	handler, _ := authHandler(store)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
}

func TestAuthenticateProducer_UnknownKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, _ := seedKeyStore(t, nil)
	handler, _ := authHandler(store)

	unknown, err := storage.GenerateAPIKey("intruder")
	if err != nil {
		t.Fatalf("failed to generate API key: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("X-Api-Key", unknown)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthenticateProducer_InactiveKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, key := seedKeyStore(t, func(k *storage.APIKey) { k.Active = false })
	handler, _ := authHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("X-Api-Key", key)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for inactive key", rec.Code)
	}
}

func TestAuthenticateProducer_ExpiredKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	expired := time.Now().Add(-time.Hour)
	store, key := seedKeyStore(t, func(k *storage.APIKey) { k.ExpiresAt = &expired })
	handler, _ := authHandler(store)

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("X-Api-Key", key)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for expired key", rec.Code)
	}
}

func TestAuthenticateProducer_PublicEndpointBypass(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	RegisterPublicEndpoint("/probe")

	store, _ := seedKeyStore(t, nil)
	handler, _ := authHandler(store)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for public endpoint", rec.Code)
	}
}

func TestExtractAPIKey_HeaderInjectionRejected(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("X-Api-Key", "abc")

	// Simulate a raw header carrying a newline; http.Header allows setting
	// values directly.
	req.Header["X-Api-Key"] = []string{"abc\r\ndef"}

	if _, ok := extractAPIKey(req); ok {
		t.Error("key containing newline should be rejected")
	}
}

func TestCorrelationID_GeneratedAndPropagated(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var seen string

	handler := CorrelationID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	if seen == "" || seen == "unknown" {
		t.Errorf("correlation ID not generated, got %q", seen)
	}

	if rec.Header().Get("X-Correlation-ID") != seen {
		t.Error("correlation ID not echoed on the response")
	}
}

func TestCorrelationID_RespectsClientHeader(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var seen string

	handler := CorrelationID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("X-Correlation-ID", "client-supplied-id")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "client-supplied-id" {
		t.Errorf("correlation ID = %q, want client-supplied-id", seen)
	}
}
