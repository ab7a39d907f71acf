package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBurstMultiplier = 2
	maxProducers           = 100
	defaultGlobalRPS       = 100
	defaultProducerRPS     = 50
	defaultUnAuthRPS       = 10
	defaultCleanupInterval = 5 * time.Minute
	defaultIdleTimeout     = time.Hour
)

// RateLimiter decides whether a request may proceed. producer is the
// authenticated producer name, or "" for unauthenticated requests.
//
// The in-memory implementation below suits a single ingress node; a
// multi-node deployment would back this with a shared store instead.
type RateLimiter interface {
	Allow(producer string) bool
}

// InMemoryRateLimiter enforces three token-bucket tiers built on
// golang.org/x/time/rate: one global bucket, one bucket per authenticated
// producer, and one shared bucket for unauthenticated traffic. Producer
// buckets idle past the timeout are dropped by a background sweep.
type InMemoryRateLimiter struct {
	global          *rate.Limiter
	perProducer     map[string]*producerLimiter
	unauthenticated *rate.Limiter
	mu              sync.RWMutex
	cleanupTicker   *time.Ticker
	done            chan struct{}

	producerRPS     int
	producerBurst   int
	cleanupInterval time.Duration
	idleTimeout     time.Duration
	maxProducers    int
}

// producerLimiter is one producer's bucket plus the access time the sweep
// uses to expire it.
type producerLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// NewInMemoryRateLimiter builds the three tiers from config and starts the
// cleanup goroutine. Burst defaults to twice the rate when not overridden.
// Call Close to stop the sweep.
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	rl := &InMemoryRateLimiter{
		global: rate.NewLimiter(
			rate.Limit(config.GlobalRPS),
			burstCapacity(config.GlobalRPS, config.GlobalBurst)),
		perProducer: make(map[string]*producerLimiter),
		unauthenticated: rate.NewLimiter(
			rate.Limit(config.UnAuthRPS),
			burstCapacity(config.UnAuthRPS, config.UnAuthBurst)),
		done:            make(chan struct{}),
		producerRPS:     config.ProducerRPS,
		producerBurst:   burstCapacity(config.ProducerRPS, config.ProducerBurst),
		cleanupInterval: config.CleanupInterval,
		idleTimeout:     config.IdleTimeout,
		maxProducers:    config.MaxProducers,
	}

	rl.startCleanup()

	return rl
}

func burstCapacity(rps, override int) int {
	if override > 0 {
		return override
	}

	return rps * defaultBurstMultiplier
}

// Allow consumes one token from the global bucket, then from the producer's
// bucket (or the unauthenticated bucket when producer is ""). The global
// check runs first so an exhausted node rejects cheaply.
func (rl *InMemoryRateLimiter) Allow(producer string) bool {
	if !rl.global.Allow() {
		return false
	}

	if producer == "" {
		return rl.unauthenticated.Allow()
	}

	pl := rl.producerBucket(producer)

	pl.mu.Lock()
	pl.lastAccess = time.Now()
	pl.mu.Unlock()

	return pl.limiter.Allow()
}

// producerBucket returns the producer's bucket, creating it on first use.
func (rl *InMemoryRateLimiter) producerBucket(producer string) *producerLimiter {
	rl.mu.RLock()
	pl, ok := rl.perProducer[producer]
	rl.mu.RUnlock()

	if ok {
		return pl
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Re-check: another request may have created it between the locks.
	if pl, ok = rl.perProducer[producer]; ok {
		return pl
	}

	pl = &producerLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rl.producerRPS), rl.producerBurst),
		lastAccess: time.Now(),
	}
	rl.perProducer[producer] = pl

	if len(rl.perProducer) >= rl.maxProducers {
		slog.Warn("rate limiter reached max producers limit",
			"current_producers", len(rl.perProducer),
			"max_producers", rl.maxProducers)
	}

	return pl
}

// Close stops the cleanup goroutine.
//
// Close is deliberately not part of the RateLimiter interface; callers that
// own the limiter shut it down through an io.Closer assertion.
func (rl *InMemoryRateLimiter) Close() error {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}

	close(rl.done)

	return nil
}

func (rl *InMemoryRateLimiter) startCleanup() {
	interval := rl.cleanupInterval
	if interval == 0 {
		interval = defaultCleanupInterval
	}

	rl.cleanupTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()
}

// cleanup drops producer buckets idle past the timeout so the map cannot
// grow without bound.
func (rl *InMemoryRateLimiter) cleanup() {
	idleTimeout := rl.idleTimeout
	if idleTimeout == 0 {
		idleTimeout = defaultIdleTimeout
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for producer, pl := range rl.perProducer {
		pl.mu.Lock()
		lastAccess := pl.lastAccess
		pl.mu.Unlock()

		if now.Sub(lastAccess) > idleTimeout {
			delete(rl.perProducer, producer)
		}
	}
}

// RateLimit rejects over-limit requests with a 429 problem response. Must
// sit after AuthenticateProducer in the chain so the producer tier applies;
// a nil limiter disables rate limiting.
func RateLimit(limiter RateLimiter, logger *slog.Logger) Option {
	if limiter == nil {
		return passthrough
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			producer := ""
			if producerCtx, ok := GetProducerContext(r.Context()); ok {
				producer = producerCtx.Producer
			}

			if limiter.Allow(producer) {
				next.ServeHTTP(w, r)

				return
			}

			correlationID := GetCorrelationID(r.Context())

			detail := "Rate limit exceeded. Please retry after some time."
			if err := writeRFC7807Error(w, r, http.StatusTooManyRequests, detail, correlationID); err != nil {
				logger.Error("failed to write rate limit error response",
					slog.String("correlation_id", correlationID),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)

				http.Error(w, detail, http.StatusTooManyRequests)
			}
		})
	}
}
