// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"trial-access-bot/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Run applies the dialect's migrations in the given direction.
// For Postgres dsn is the DATABASE_URL; for SQLite it is the database file path.
// direction must be "up" or "down". Returns nil on success and when already at the target version.
func Run(dialect db.Dialect, dsn string, direction string) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("database is not configured; set DATABASE_URL or DATABASE_PATH")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	sourceDriver, err := iofs.New(db.MigrationFS, dialect.MigrationDir())
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, databaseURL(dialect, dsn))
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	}
	return nil
}

// databaseURL maps a configured DSN onto the URL scheme golang-migrate expects.
func databaseURL(dialect db.Dialect, dsn string) string {
	if dialect == db.SQLite {
		if strings.HasPrefix(dsn, "sqlite://") {
			return dsn
		}
		return "sqlite://" + strings.TrimPrefix(dsn, "file:")
	}
	if strings.HasPrefix(dsn, "postgresql://") {
		return "postgres://" + strings.TrimPrefix(dsn, "postgresql://")
	}
	return dsn
}
