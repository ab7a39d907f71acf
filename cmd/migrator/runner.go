package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type (
	// Runner drives golang-migrate over the embedded migration set.
	Runner struct {
		migrate  *migrate.Migrate
		db       *sql.DB
		embedded *EmbeddedMigration
	}

	// migrateLogger adapts the standard logger to migrate.Logger.
	migrateLogger struct{}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewMigrationRunner opens the database and wires golang-migrate to the
// embedded migration sources. The embedded set is validated first so a broken
// build fails before touching the database.
func NewMigrationRunner(cfg *Config) (*Runner, error) {
	log.Printf("Initializing migration runner: %s", cfg.String())

	embedded := NewEmbeddedMigration(nil)
	if err := embedded.Validate(); err != nil {
		return nil, fmt.Errorf("embedded migrations invalid: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: cfg.MigrationTable,
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("postgres driver: %w", err)
	}

	source, err := iofs.New(embedded.FS(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("embedded source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrate instance: %w", err)
	}

	m.Log = &migrateLogger{}

	return &Runner{
		migrate:  m,
		db:       db,
		embedded: embedded,
	}, nil
}

// Up applies every pending migration.
func (r *Runner) Up() error {
	err := r.migrate.Up()

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Println("No new migrations to apply")
	case err != nil:
		return fmt.Errorf("migration up: %w", err)
	default:
		log.Println("All migrations applied")
	}

	return nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down() error {
	err := r.migrate.Steps(-1)

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Println("No migrations to roll back")
	case err != nil:
		return fmt.Errorf("migration down: %w", err)
	default:
		log.Println("Rolled back one migration")
	}

	return nil
}

// Status prints the applied version against the highest version the binary
// carries.
func (r *Runner) Status() error {
	ver, dirty, err := r.migrate.Version()

	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Println("Applied: none")
	case err != nil:
		return fmt.Errorf("migration version: %w", err)
	case dirty:
		log.Printf("Applied: %d (dirty, needs manual intervention)", ver)
	default:
		log.Printf("Applied: %d", ver)
	}

	log.Printf("Available: %d", r.embedded.MaxVersion())

	return nil
}

// Drop removes every table in the database. Destructive; main gates this
// behind a confirmation prompt.
func (r *Runner) Drop() error {
	log.Println("Dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop: %w", err)
	}

	log.Println("All tables dropped")

	return nil
}

// Close releases the migrate instance and the database connection.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("close source: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("close migrate db: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (l *migrateLogger) Printf(format string, v ...any) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return true
}
