package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerateAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	key, err := GenerateAPIKey("checkout-service")
	if err != nil {
		t.Fatalf("GenerateAPIKey() unexpected error: %v", err)
	}

	if !strings.HasPrefix(key, "eventflow_ak_") {
		t.Errorf("key %q missing eventflow_ak_ prefix", key)
	}

	if len(key) != apiKeyLength {
		t.Errorf("key length = %d, want %d", len(key), apiKeyLength)
	}

	other, err := GenerateAPIKey("checkout-service")
	if err != nil {
		t.Fatalf("GenerateAPIKey() unexpected error: %v", err)
	}

	if key == other {
		t.Error("two generated keys are identical")
	}
}

func TestGenerateAPIKey_EmptyProducer(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, err := GenerateAPIKey("")
	if !errors.Is(err, ErrProducerEmpty) {
		t.Errorf("GenerateAPIKey(\"\") = %v, want ErrProducerEmpty", err)
	}
}

func TestParseAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := apiKeyPrefix + strings.Repeat("ab", randomBytesSize)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "plain key", input: valid, want: valid},
		{name: "bearer prefix stripped", input: "Bearer " + valid, want: valid},
		{name: "empty string", input: "", wantErr: ErrKeyStringEmpty},
		{name: "wrong prefix", input: "acme_ak_" + strings.Repeat("ab", 32), wantErr: ErrInvalidKeyFormat},
		{name: "wrong length", input: apiKeyPrefix + "abc", wantErr: ErrInvalidKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAPIKey(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseAPIKey() = %v, want %v", err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseAPIKey() unexpected error: %v", err)
			}

			if got != tt.want {
				t.Errorf("ParseAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	full := apiKeyPrefix + strings.Repeat("1234", 16)

	masked := MaskKey(full)
	if !strings.HasPrefix(masked, full[:maskPrefixLen]) {
		t.Errorf("masked key %q does not keep prefix", masked)
	}

	if !strings.HasSuffix(masked, full[len(full)-maskSuffixLen:]) {
		t.Errorf("masked key %q does not keep suffix", masked)
	}

	if strings.Contains(masked[maskPrefixLen:len(masked)-maskSuffixLen], "1") {
		t.Errorf("masked key %q leaks middle characters", masked)
	}

	if got := MaskKey("short"); got != "*****" {
		t.Errorf("MaskKey(short) = %q, want full mask", got)
	}

	if got := MaskKey(""); got != "" {
		t.Errorf("MaskKey(\"\") = %q, want empty", got)
	}
}

func TestSecureCompare(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if !SecureCompare("same", "same") {
		t.Error("SecureCompare(same, same) = false")
	}

	if SecureCompare("same", "diff") {
		t.Error("SecureCompare(same, diff) = true")
	}

	if SecureCompare("short", "longer-string") {
		t.Error("SecureCompare with different lengths = true")
	}
}

func TestAPIKeyUsable(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		key  APIKey
		want bool
	}{
		{name: "active without expiry", key: APIKey{Active: true}, want: true},
		{name: "inactive", key: APIKey{Active: false}, want: false},
		{name: "expired", key: APIKey{Active: true, ExpiresAt: &past}, want: false},
		{name: "not yet expired", key: APIKey{Active: true, ExpiresAt: &future}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.Usable(now); got != tt.want {
				t.Errorf("Usable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashAPIKeyRoundTrip(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	key, err := GenerateAPIKey("checkout-service")
	if err != nil {
		t.Fatalf("GenerateAPIKey() unexpected error: %v", err)
	}

	hash, err := HashAPIKey(key)
	if err != nil {
		t.Fatalf("HashAPIKey() unexpected error: %v", err)
	}

	if hash == key {
		t.Error("hash equals plaintext key")
	}

	if !CompareAPIKeyHash(hash, key) {
		t.Error("CompareAPIKeyHash() = false for matching key")
	}

	if CompareAPIKeyHash(hash, key+"x") {
		t.Error("CompareAPIKeyHash() = true for non-matching key")
	}

	if CompareAPIKeyHash("", key) || CompareAPIKeyHash(hash, "") {
		t.Error("CompareAPIKeyHash() = true for empty input")
	}
}

func TestInMemoryKeyStore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewInMemoryKeyStore()
	ctx := context.Background()

	key := &APIKey{
		ID:       "k1",
		Key:      "eventflow_ak_test",
		Producer: "checkout-service",
		Name:     "dev key",
		Active:   true,
	}

	if err := store.Add(ctx, key); err != nil {
		t.Fatalf("Add() unexpected error: %v", err)
	}

	if err := store.Add(ctx, key); !errors.Is(err, ErrKeyAlreadyExists) {
		t.Errorf("Add() duplicate = %v, want ErrKeyAlreadyExists", err)
	}

	found, ok := store.FindByKey(ctx, "eventflow_ak_test")
	if !ok {
		t.Fatal("FindByKey() did not find stored key")
	}

	if found.Producer != "checkout-service" {
		t.Errorf("Producer = %q, want checkout-service", found.Producer)
	}

	// Mutating the returned copy must not affect the store.
	found.Producer = "mutated"

	again, _ := store.FindByKey(ctx, "eventflow_ak_test")
	if again.Producer != "checkout-service" {
		t.Error("FindByKey() returned a shared reference, want a copy")
	}

	if _, ok := store.FindByKey(ctx, "missing"); ok {
		t.Error("FindByKey() found a key that was never added")
	}

	if err := store.Delete("k1"); err != nil {
		t.Fatalf("Delete() unexpected error: %v", err)
	}

	if err := store.Delete("k1"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Delete() missing = %v, want ErrKeyNotFound", err)
	}
}
