package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrations embed.FS

// RunMigrations applies all up migrations on a dedicated connection and returns the schema
// version. The version table doubles as the store version.
func RunMigrations(driver, dsn string) (uint, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return 0, err
	}

	var (
		inst migratedb.Driver
		dir  string
	)
	switch driver {
	case DriverSQLite:
		inst, err = sqlite3.WithInstance(db, &sqlite3.Config{})
		dir = "migrations/sqlite"
	case DriverMySQL:
		inst, err = migratemysql.WithInstance(db, &migratemysql.Config{})
		dir = "migrations/mysql"
	}
	if err != nil {
		_ = db.Close()
		return 0, fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(migrations, dir)
	if err != nil {
		_ = db.Close()
		return 0, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, driver, inst)
	if err != nil {
		_ = db.Close()
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, err
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
