// Package main provides the EventFlow HTTP ingress service.
//
// The ingress accepts producer events over HTTP, durably captures them in
// the raw event store, and enqueues them on the stream broker for the
// worker fleet to process asynchronously.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/eventflow-io/eventflow/internal/api"
	"github.com/eventflow-io/eventflow/internal/api/middleware"
	"github.com/eventflow-io/eventflow/internal/storage"
	"github.com/eventflow-io/eventflow/internal/stream"
)

// Version information.
const (
	version = "1.0.0"
	name    = "eventflow-api"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting EventFlow API service",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	middlewareConfig := middleware.LoadConfig()

	// Graceful shutdown of the limiter is handled by server.shutdown()
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("producer_rps", middlewareConfig.ProducerRPS),
		slog.Int("unauth_rps", middlewareConfig.UnAuthRPS),
	)

	storageConfig := storage.LoadConfig()

	ctx := context.Background()

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
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
	)

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
		logger.Error("Failed to attach to stream", slog.String("error", err.Error()))

		_ = broker.Close()
		_ = dbConn.Close()
		os.Exit(1)
	}

	logger.Info("Stream broker attached",
		slog.String("backend", streamConfig.Backend),
		slog.String("stream", streamConfig.StreamName),
		slog.String("consumer_group", streamConfig.ConsumerGroup),
	)

	var keyStore storage.KeyStore

	if serverConfig.AuthEnabled {
		persistent, err := storage.NewPersistentKeyStore(dbConn)
		if err != nil {
			logger.Error("Failed to initialize key store", slog.String("error", err.Error()))

			_ = broker.Close()
			_ = dbConn.Close()
			os.Exit(1)
		}

		keyStore = persistent

		logger.Info("Producer authentication enabled",
			slog.String("database_url", storageConfig.MaskDatabaseURL()),
		)
	} else {
		logger.Warn("Producer authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set EVENTFLOW_AUTH_ENABLED=true to enable API key authentication"),
		)
	}

	server := api.NewServer(serverConfig, eventStore, broker, keyStore, rateLimiter)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("EventFlow API service stopped")
}
