// Package main provides the EventFlow stream-consumer worker.
//
// The worker joins the consumer group on the event stream, processes
// messages through the decode/dedupe/validate/enrich/persist pipeline, and
// acknowledges them according to the delivery policy: processed, duplicate
// and dead-lettered events are acked; timeouts and failed dead-letter
// writes are left for redelivery.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/eventflow-io/eventflow/internal/config"
	"github.com/eventflow-io/eventflow/internal/enrichment"
	"github.com/eventflow-io/eventflow/internal/metrics"
	"github.com/eventflow-io/eventflow/internal/storage"
	"github.com/eventflow-io/eventflow/internal/stream"
	"github.com/eventflow-io/eventflow/internal/worker"
)

// Version information.
const (
	version = "1.0.0"
	name    = "eventflow-worker"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	workerConfig := worker.LoadConfig()
	if err := workerConfig.Validate(); err != nil {
		logger.Error("Invalid worker configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Starting EventFlow worker",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("worker_id", workerConfig.WorkerID),
		slog.Int("batch_size", workerConfig.BatchSize),
		slog.Duration("processing_timeout", workerConfig.ProcessingTimeout),
		slog.Int("max_retries", workerConfig.MaxRetries),
	)

	// Shutdown signal flips the context; the dispatcher drains in-flight
	// work before Run returns.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(ctx, storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	eventStore, err := storage.NewEventStore(dbConn)
	if err != nil {
		logger.Error("Failed to initialize event store", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	logger.Info("Event store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
	)

	enrichmentConfig, err := enrichment.LoadConfig(enrichment.ConfigPath())
	if err != nil {
		logger.Error("Failed to load enrichment config", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

	enricher := enrichment.New(workerConfig.WorkerID, enrichmentConfig)

	streamConfig := stream.LoadConfig()

	broker, err := stream.New(streamConfig)
	if err != nil {
		logger.Error("Failed to create stream broker", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

	defer func() {
		_ = broker.Close()
	}()

	if err := broker.Attach(ctx); err != nil {
		logger.Error("Failed to attach consumer group", slog.String("error", err.Error()))

		_ = broker.Close()
		_ = dbConn.Close()
		os.Exit(1)
	}

	logger.Info("Stream broker attached",
		slog.String("backend", streamConfig.Backend),
		slog.String("stream", streamConfig.StreamName),
		slog.String("consumer_group", streamConfig.ConsumerGroup),
	)

	metricsServer := metrics.NewServer(workerConfig.MetricsPort, logger)
	metricsErrors := metricsServer.Start()

	processor := worker.NewProcessor(
		eventStore,
		enricher,
		worker.NewBackoffPolicy(workerConfig.MaxRetries, workerConfig.RetryDelay),
		logger,
	)

	w := worker.NewWorker(workerConfig, broker, processor, logger)

	runErrors := make(chan error, 1)

	go func() {
		runErrors <- w.Run(ctx)
	}()

	select {
	case err := <-metricsErrors:
		logger.Error("Metrics server failed", slog.String("error", err.Error()))
		stop()
		<-runErrors
	case err := <-runErrors:
		if err != nil {
			logger.Error("Worker stopped with error", slog.String("error", err.Error()))
		}
	}

	if err := metricsServer.Shutdown(); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("EventFlow worker stopped")
}
