package enrichment

import (
	"context"
	"time"

	"github.com/eventflow-io/eventflow/internal/event"
)

// Enricher attaches derived fields to events before persistence.
//
// Every enriched map carries:
//   - processed_by: the worker identifier
//   - processing_timestamp: enrichment time, UTC-naive
//
// Type-specific additions:
//   - purchase: category = "high_value" when amount > HighValueThreshold,
//     "standard" otherwise (the threshold itself is standard)
//   - page_view: session_start = the event's own timestamp
type Enricher struct {
	workerID string
	cfg      *Config
	now      func() time.Time
}

// Option configures optional Enricher behavior.
type Option func(*Enricher)

// WithClock overrides the enricher's clock. Used by tests to make the
// processing_timestamp deterministic.
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) {
		e.now = now
	}
}

// New creates an Enricher for the given worker identity and rules.
// A nil cfg falls back to the built-in defaults.
func New(workerID string, cfg *Config, opts ...Option) *Enricher {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	enricher := &Enricher{
		workerID: workerID,
		cfg:      cfg,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(enricher)
	}

	return enricher
}

// Enrich derives the enrichment map for a single event. The simulated
// external call respects ctx, so a per-event deadline or worker shutdown
// aborts the wait.
func (e *Enricher) Enrich(ctx context.Context, evt *event.Event) (map[string]any, error) {
	enriched := map[string]any{
		"processed_by":         e.workerID,
		"processing_timestamp": e.now().UTC().Format("2006-01-02T15:04:05.999999"),
	}

	switch evt.EventType {
	case event.TypePurchase:
		amount, _ := evt.Amount()
		if amount > e.cfg.HighValueThreshold {
			enriched["category"] = "high_value"
		} else {
			enriched["category"] = "standard"
		}

	case event.TypePageView:
		enriched["session_start"] = evt.Timestamp.UTC().Format("2006-01-02T15:04:05.999999")

	case event.TypeUserSignup, event.TypeCustom:
		// No type-specific enrichment.
	}

	// Stand-in for the external enrichment dependency's round trip.
	if latency := e.cfg.Latency(); latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return enriched, nil
}
