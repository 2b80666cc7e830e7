// Package migrations embeds the SQL schema and applies it at service start.
// Both binaries run the migrations on boot; golang-migrate's version table
// makes concurrent application safe.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var files embed.FS

// Run applies all pending migrations on the given database.
func Run(db *sql.DB) error {
	src, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("migrations: source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrations: driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrations: init: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Printf("[migrations] schema up to date")
			return nil
		}
		return fmt.Errorf("migrations: up: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("migrations: version: %w", err)
	}
	log.Printf("[migrations] schema at version %d", version)
	return nil
}
