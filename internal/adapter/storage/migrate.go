package storage

import (
	"embed"
	"errors"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	mysqlmigrate "github.com/golang-migrate/migrate/v4/database/mysql"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

// Migrate brings the schema up to date. The migrate instance is not closed:
// closing it would close the store's *sql.DB.
func (s *SQLStore) Migrate() error {
	src, err := iofs.New(migrationFS, "migrations/"+s.dialect.Name)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	var target database.Driver
	switch s.dialect.Name {
	case DriverMySQL:
		target, err = mysqlmigrate.WithInstance(s.db.DB, &mysqlmigrate.Config{})
	case DriverPostgres:
		target, err = pgxmigrate.WithInstance(s.db.DB, &pgxmigrate.Config{})
	case DriverSQLite:
		target, err = sqlitemigrate.WithInstance(s.db.DB, &sqlitemigrate.Config{})
	default:
		err = fmt.Errorf("no migrations for %q", s.dialect.Name)
	}
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.dialect.Name, target)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
