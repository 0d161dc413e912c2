package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationResult reports the schema version before and after a run.
type MigrationResult struct {
	From  uint
	To    uint
	Dirty bool
}

func (r MigrationResult) Applied() bool {
	return r.To != r.From
}

func newMigrator(db *DB) (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations brings the schema up to the latest embedded version. A
// dirty schema is reported, not forced.
func RunMigrations(db *DB) (MigrationResult, error) {
	m, err := newMigrator(db)
	if err != nil {
		return MigrationResult{}, err
	}

	var result MigrationResult

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return result, fmt.Errorf("failed to read schema version: %w", err)
	case dirty:
		return MigrationResult{From: from, To: from, Dirty: true}, nil
	default:
		result.From = from
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return result, fmt.Errorf("failed to run migrations: %w", err)
	}

	result.To, result.Dirty, err = m.Version()
	if err != nil {
		return result, fmt.Errorf("failed to read schema version: %w", err)
	}
	return result, nil
}
