package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func MigrateUp(db *sql.DB, migrationsURL string) error {
	log.Info().Str("source", describe(migrationsURL)).Msg("migrating up")

	m, err := newMigrate(db, migrationsURL)
	if err != nil {
		return fmt.Errorf("repository.Migrate: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("repository.Migrate: %w", err)
	}

	return nil
}

func MigrateDown(db *sql.DB, migrationsURL string) error {
	log.Info().Str("source", describe(migrationsURL)).Msg("migrating down")

	m, err := newMigrate(db, migrationsURL)
	if err != nil {
		return fmt.Errorf("repository.Migrate: %w", err)
	}

	err = m.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("repository.Migrate: %w", err)
	}

	return nil
}

// newMigrate reads migrations from migrationsURL, or from the copy embedded
// in the binary when it is empty.
func newMigrate(db *sql.DB, migrationsURL string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, err
	}

	if migrationsURL != "" {
		return migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithInstance("iofs", src, "postgres", driver)
}

func describe(migrationsURL string) string {
	if migrationsURL == "" {
		return "embedded"
	}
	return migrationsURL
}
