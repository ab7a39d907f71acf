package enrichment

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventflow-io/eventflow/internal/event"
)

var enrichNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEnricher() *Enricher {
	cfg := DefaultConfig()
	cfg.SimulatedLatencyMS = 0 // keep unit tests fast

	return New("worker-test", cfg, WithClock(func() time.Time { return enrichNow }))
}

func purchaseEvent(amount float64) *event.Event {
	return &event.Event{
		EventID:    uuid.New(),
		EventType:  event.TypePurchase,
		Timestamp:  enrichNow.Add(-time.Minute),
		Properties: map[string]any{"amount": amount},
	}
}

func TestEnrich_CommonFields(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	enricher := newTestEnricher()

	enriched, err := enricher.Enrich(context.Background(), &event.Event{
		EventID:    uuid.New(),
		EventType:  event.TypeCustom,
		Timestamp:  enrichNow.Add(-time.Minute),
		Properties: map[string]any{},
	})
	require.NoError(t, err)

	assert.Equal(t, "worker-test", enriched["processed_by"])
	assert.Equal(t, "2024-06-01T12:00:00", enriched["processing_timestamp"])
	assert.NotContains(t, enriched, "category")
	assert.NotContains(t, enriched, "session_start")
}

func TestEnrich_PurchaseCategoryBoundary(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name   string
		amount float64
		want   string
	}{
		{"well below threshold", 10, "standard"},
		{"exactly at threshold", 1000, "standard"},
		{"just above threshold", 1000.01, "high_value"},
		{"well above threshold", 2500, "high_value"},
	}

	enricher := newTestEnricher()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enriched, err := enricher.Enrich(context.Background(), purchaseEvent(tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.want, enriched["category"])
		})
	}
}

func TestEnrich_PurchaseWithoutAmountIsStandard(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	enricher := newTestEnricher()

	evt := purchaseEvent(0)
	delete(evt.Properties, "amount")

	enriched, err := enricher.Enrich(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, "standard", enriched["category"])
}

func TestEnrich_PageViewSessionStart(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	enricher := newTestEnricher()

	enriched, err := enricher.Enrich(context.Background(), &event.Event{
		EventID:    uuid.New(),
		EventType:  event.TypePageView,
		Timestamp:  time.Date(2024, 5, 31, 8, 15, 30, 0, time.UTC),
		Properties: map[string]any{},
	})
	require.NoError(t, err)

	assert.Equal(t, "2024-05-31T08:15:30", enriched["session_start"])
}

func TestEnrich_CancelledContextAbortsLatency(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := DefaultConfig()
	cfg.SimulatedLatencyMS = 60_000

	enricher := New("worker-test", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := enricher.Enrich(ctx, purchaseEvent(5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg, err := LoadConfig("testdata/does-not-exist.yaml")
	require.NoError(t, err)

	assert.InDelta(t, float64(defaultHighValueThreshold), cfg.HighValueThreshold, 0.001)
	assert.Equal(t, defaultLatencyMS, cfg.SimulatedLatencyMS)
}

func TestLoadConfig_OverridesFromFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := t.TempDir() + "/.eventflow.yaml"
	content := "high_value_threshold: 500\nsimulated_latency_ms: 10\n"
	require.NoError(t, writeFile(path, content))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.InDelta(t, 500.0, cfg.HighValueThreshold, 0.001)
	assert.Equal(t, 10*time.Millisecond, cfg.Latency())
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
