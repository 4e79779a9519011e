package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/vendrecon/internal/database"
)

// MaintenanceService houses destructive/ops actions surfaced through the CLI.
type MaintenanceService struct {
	DB     *sql.DB
	Driver string
}

// Reset wipes the ledger and run history so the next ingest rebuilds the ledger wholesale.
// It keeps the schema intact.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"ledger",
			"import_runs",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if s.Driver == database.DriverSQLite || s.Driver == "" {
		_, _ = s.DB.ExecContext(ctx, "VACUUM")
	}
	return nil
}
