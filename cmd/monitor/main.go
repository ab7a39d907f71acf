// Package main provides the EventFlow pipeline monitor.
//
// It polls the ingress metrics summary endpoint on an interval and renders
// the queue depth, pending messages and store counters to the terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const httpTimeout = 10 * time.Second

// summary mirrors the ingress metrics summary response.
type summary struct {
	QueueLength     int64  `json:"queue_length"`     //nolint: tagliatelle
	PendingMessages int64  `json:"pending_messages"` //nolint: tagliatelle
	ProcessedCount  int64  `json:"processed_count"`  //nolint: tagliatelle
	FailedCount     int64  `json:"failed_count"`     //nolint: tagliatelle
	Timestamp       string `json:"timestamp"`
}

func main() {
	apiURL := flag.String("api-url", "http://localhost:8000", "ingress base URL")
	interval := flag.Duration("interval", 5*time.Second, "refresh interval")
	apiKey := flag.String("api-key", "", "API key sent as X-Api-Key (optional)")
	flag.Parse()

	fmt.Printf("Monitoring %s (refresh every %s)\n", *apiURL, *interval)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: httpTimeout}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	render(ctx, client, *apiURL, *apiKey)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nMonitoring stopped")

			return
		case <-ticker.C:
			render(ctx, client, *apiURL, *apiKey)
		}
	}
}

// render fetches and prints one metrics snapshot. Fetch failures are shown
// inline; the loop keeps polling.
func render(ctx context.Context, client *http.Client, apiURL, apiKey string) {
	// Clear screen (ANSI)
	fmt.Print("\033[2J\033[H")

	fmt.Println("============================================================")
	fmt.Printf("EventFlow Metrics - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println("============================================================")
	fmt.Println()

	s, err := fetchSummary(ctx, client, apiURL, apiKey)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("Queue Length:      %d\n", s.QueueLength)
	fmt.Printf("Pending Messages:  %d\n", s.PendingMessages)
	fmt.Printf("Processed Events:  %d\n", s.ProcessedCount)
	fmt.Printf("Failed Events:     %d\n", s.FailedCount)
	fmt.Printf("Timestamp:         %s\n", s.Timestamp)
}

func fetchSummary(ctx context.Context, client *http.Client, apiURL, apiKey string) (*summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/metrics/summary", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metrics: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var s summary

	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}

	return &s, nil
}
