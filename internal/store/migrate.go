package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/maclap/cashtrack/internal/store/migrations"
)

// Schema reports the queue schema after migration.
type Schema struct {
	Version uint
	Applied bool // true if this open moved the schema forward
}

// Migrate brings the queue schema (offline_records, sync_state,
// dead_letters) up to date. A dirty schema is refused.
func (db *DB) Migrate() (Schema, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return Schema{}, fmt.Errorf("queue migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return Schema{}, fmt.Errorf("queue migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return Schema{}, fmt.Errorf("queue migrator: %w", err)
	}

	applied := true
	if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
		applied = false
	} else if err != nil {
		return Schema{}, fmt.Errorf("queue migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Schema{}, fmt.Errorf("queue schema version: %w", err)
	}
	if dirty {
		return Schema{}, fmt.Errorf("queue schema version %d is dirty", version)
	}
	return Schema{Version: version, Applied: applied}, nil
}
