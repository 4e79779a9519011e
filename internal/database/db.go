package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// SQLiteDSN builds the sqlite DSN for a database file.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
}

// NormalizeDSN adds the connection options the store relies on: parseTime and multi-statement
// migrations for mysql. sqlite DSNs are returned unchanged.
func NormalizeDSN(driver, dsn string) (string, error) {
	switch driver {
	case DriverSQLite:
		return dsn, nil
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		cfg.MultiStatements = true
		cfg.Loc = time.UTC
		return cfg.FormatDSN(), nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// Open opens the store with sensible defaults.
func Open(driver, dsn string) (*sql.DB, error) {
	dsn, err := NormalizeDSN(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	switch driver {
	case DriverSQLite:
		db.SetMaxOpenConns(1) // sqlite
		db.SetConnMaxLifetime(0)
	case DriverMySQL:
		db.SetMaxOpenConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

// WithTx runs fn in a transaction; the transaction is rolled back when fn fails.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Now returns UTC time truncated to seconds (consistent with SQLite default).
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
