package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all required tables and indexes.
// This is idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Execute all DDL statements
	ddlStatements := []string{
		// identities table: one row per registered vehicle owner.
		// status: 0 = outside the lot, 1 = inside.
		// nonce: outstanding single-use token discriminator, '' when none.
		`CREATE TABLE IF NOT EXISTS identities (
			id TEXT PRIMARY KEY,
			pin_hash TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			plate TEXT NOT NULL DEFAULT '',
			vehicle_type TEXT NOT NULL DEFAULT '',
			status INTEGER NOT NULL DEFAULT 0,
			nonce TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// parking_history table: append-only ledger of confirmed events
		`CREATE TABLE IF NOT EXISTS parking_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identity_id TEXT NOT NULL,
			action TEXT NOT NULL,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (identity_id) REFERENCES identities(id)
		)`,

		// Index for latest-activity lookups per identity
		`CREATE INDEX IF NOT EXISTS idx_parking_history_identity ON parking_history(identity_id, recorded_at DESC)`,
	}

	// Execute each DDL statement
	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}
