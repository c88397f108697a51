package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: date range reports scan sales by day.
	`CREATE INDEX IF NOT EXISTS idx_ventas_fecha ON ventas(fecha_venta)`,
	// Migration 2: status filters and counts.
	`CREATE INDEX IF NOT EXISTS idx_ventas_estatus ON ventas(estatus)`,
	// Migration 3: role changes and account removal end a user's open sessions.
	`CREATE TABLE IF NOT EXISTS session_cutoffs (
		usuario_id INTEGER PRIMARY KEY REFERENCES usuarios(id),
		not_before DATETIME NOT NULL
	)`,
}

// Migrate ensures the server schema and runs the migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
