package main

import (
	"errors"
	"fmt"

	"github.com/eventflow-io/eventflow/internal/config"
	"github.com/eventflow-io/eventflow/internal/storage"
)

// ErrMigrationTableEmpty is returned when the migration table name is empty.
var ErrMigrationTableEmpty = errors.New("MIGRATION_TABLE cannot be empty")

// Config holds all configuration for the migration tool.
type Config struct {
	// Database carries the PostgreSQL connection settings, shared with the
	// storage layer so both read the same environment variables.
	Database *storage.Config

	// MigrationTable is the name of the table used to track applied migrations.
	MigrationTable string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Database:       storage.LoadConfig(),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}

	if c.MigrationTable == "" {
		return ErrMigrationTableEmpty
	}

	return nil
}

// String returns a string representation of the configuration safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		c.Database.MaskDatabaseURL(), c.MigrationTable)
}
