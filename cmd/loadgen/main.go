// Package main provides the EventFlow load generator.
//
// It submits synthetic events to the ingress at a target rate and prints a
// latency and success summary. A configurable slice of the traffic is
// deliberately malformed so the dead-letter path gets exercised alongside
// the happy path.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	httpTimeout     = 30 * time.Second
	progressEvery   = 100
	percentStretch  = 100
	defaultCount    = 1000
	defaultRate     = 100
	defaultParallel = 10
)

var eventTypes = []string{"purchase", "user_signup", "page_view", "custom"}

type (
	// options holds the parsed command line flags.
	options struct {
		apiURL         string
		count          int
		rate           int
		concurrency    int
		eventType      string
		invalidPercent int
		apiKey         string
	}

	// result records the outcome of one submission.
	result struct {
		ok      bool
		latency time.Duration
	}
)

func main() {
	opts := parseFlags()

	fmt.Println("Load Test Configuration:")
	fmt.Printf("  API URL:         %s\n", opts.apiURL)
	fmt.Printf("  Total Events:    %d\n", opts.count)
	fmt.Printf("  Target Rate:     %d events/sec\n", opts.rate)
	fmt.Printf("  Concurrency:     %d\n", opts.concurrency)
	fmt.Printf("  Invalid Events:  %d%%\n", opts.invalidPercent)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := run(ctx, opts)

	printSummary(results)
}

func parseFlags() *options {
	opts := &options{}

	flag.StringVar(&opts.apiURL, "api-url", "http://localhost:8000", "ingress base URL")
	flag.IntVar(&opts.count, "count", defaultCount, "total events to send")
	flag.IntVar(&opts.rate, "rate", defaultRate, "events per second (0 = unlimited)")
	flag.IntVar(&opts.concurrency, "concurrency", defaultParallel, "concurrent senders")
	flag.StringVar(&opts.eventType, "type", "", "event type (random if not specified)")
	flag.IntVar(&opts.invalidPercent, "invalid-percent", 0, "percentage of deliberately malformed events")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key sent as X-Api-Key (optional)")
	flag.Parse()

	if opts.count <= 0 {
		log.Fatal("count must be positive")
	}

	if opts.concurrency <= 0 {
		log.Fatal("concurrency must be positive")
	}

	if opts.invalidPercent < 0 || opts.invalidPercent > percentStretch {
		log.Fatal("invalid-percent must be between 0 and 100")
	}

	if opts.eventType != "" && !validEventType(opts.eventType) {
		log.Fatalf("unknown event type %q (valid: purchase, user_signup, page_view, custom)", opts.eventType)
	}

	return opts
}

func validEventType(t string) bool {
	for _, known := range eventTypes {
		if t == known {
			return true
		}
	}

	return false
}

// run fans submissions out over a worker pool paced by a shared token
// bucket and collects per-request results.
func run(ctx context.Context, opts *options) []result {
	limit := rate.Inf
	if opts.rate > 0 {
		limit = rate.Limit(opts.rate)
	}

	limiter := rate.NewLimiter(limit, 1)
	client := &http.Client{Timeout: httpTimeout}

	jobs := make(chan int)
	results := make([]result, 0, opts.count)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		sent int
	)

	for i := 0; i < opts.concurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for n := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				r := sendEvent(ctx, client, opts, n)

				mu.Lock()
				results = append(results, r)
				sent++

				if sent%progressEvery == 0 {
					fmt.Printf("Progress: %d/%d\n", sent, opts.count)
				}
				mu.Unlock()
			}
		}()
	}

	for n := 0; n < opts.count; n++ {
		select {
		case jobs <- n:
		case <-ctx.Done():
			n = opts.count
		}
	}

	close(jobs)
	wg.Wait()

	return results
}

// sendEvent posts a single generated event and measures the round trip.
// Any response other than 202 counts as a failure, which makes the invalid
// slice visible in the summary: the ingress rejects shape violations with
// 400 before they reach the stream.
func sendEvent(ctx context.Context, client *http.Client, opts *options, n int) result {
	payload := generatePayload(opts, n)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.apiURL+"/events", bytes.NewReader(payload))
	if err != nil {
		return result{}
	}

	req.Header.Set("Content-Type", "application/json")

	if opts.apiKey != "" {
		req.Header.Set("X-Api-Key", opts.apiKey)
	}

	start := time.Now()

	resp, err := client.Do(req)

	latency := time.Since(start)
	if err != nil {
		return result{latency: latency}
	}

	defer resp.Body.Close()

	return result{ok: resp.StatusCode == http.StatusAccepted, latency: latency}
}

// generatePayload builds one event body. Every invalidPercent-th slice of
// the traffic gets an unknown event_type, which the ingress rejects.
func generatePayload(opts *options, n int) []byte {
	eventType := opts.eventType
	if eventType == "" {
		eventType = eventTypes[rand.Intn(len(eventTypes))]
	}

	if opts.invalidPercent > 0 && rand.Intn(percentStretch) < opts.invalidPercent {
		eventType = "mystery"
	}

	body := map[string]any{
		"event_id":   uuid.NewString(),
		"event_type": eventType,
		"user_id":    fmt.Sprintf("user_%d", n%1000),
		"timestamp":  time.Now().UTC().Format("2006-01-02T15:04:05.999999"),
		"properties": generateProperties(eventType),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		// Static shape above; marshal cannot realistically fail.
		return []byte("{}")
	}

	return payload
}

func generateProperties(eventType string) map[string]any {
	switch eventType {
	case "purchase":
		return map[string]any{
			"amount":     10 + rand.Float64()*4990,
			"product_id": fmt.Sprintf("prod_%d", 1000+rand.Intn(9000)),
			"currency":   pick("USD", "EUR", "GBP"),
		}
	case "user_signup":
		return map[string]any{
			"email":  fmt.Sprintf("user%d@example.com", 1000+rand.Intn(9000)),
			"source": pick("web", "mobile", "api"),
		}
	case "page_view":
		return map[string]any{
			"url":      fmt.Sprintf("/page/%d", 1+rand.Intn(100)),
			"referrer": pick("google", "direct", "social"),
		}
	default:
		return map[string]any{
			"action": pick("click", "scroll", "hover"),
			"value":  1 + rand.Intn(100),
		}
	}
}

func pick(choices ...string) string {
	return choices[rand.Intn(len(choices))]
}

func printSummary(results []result) {
	if len(results) == 0 {
		fmt.Println("No events sent")

		return
	}

	succeeded := 0
	latencies := make([]time.Duration, 0, len(results))

	var total time.Duration

	for _, r := range results {
		if r.ok {
			succeeded++
		}

		latencies = append(latencies, r.latency)
		total += r.latency
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	failed := len(results) - succeeded

	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println("Load Test Results")
	fmt.Println("============================================================")
	fmt.Printf("Total Events:      %d\n", len(results))
	fmt.Printf("Successful:        %d\n", succeeded)
	fmt.Printf("Failed:            %d\n", failed)
	fmt.Printf("Success Rate:      %.2f%%\n", float64(succeeded)/float64(len(results))*100)
	fmt.Println()
	fmt.Println("Latency Statistics:")
	fmt.Printf("  Min:             %s\n", latencies[0])
	fmt.Printf("  Max:             %s\n", latencies[len(latencies)-1])
	fmt.Printf("  Avg:             %s\n", total/time.Duration(len(latencies)))
	fmt.Printf("  P50:             %s\n", percentile(latencies, 50))
	fmt.Printf("  P95:             %s\n", percentile(latencies, 95))
	fmt.Printf("  P99:             %s\n", percentile(latencies, 99))
}

// percentile returns the p-th percentile of sorted latencies.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}
