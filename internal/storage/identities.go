package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// CreateIdentity inserts a new identity record.
// Returns ErrDuplicate if an identity with this ID already exists.
func (s *SQLiteStorage) CreateIdentity(ctx context.Context, identity *Identity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (id, pin_hash, full_name, address, plate, vehicle_type, status, nonce)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		identity.ID, identity.PINHash, identity.FullName, identity.Address,
		identity.Plate, identity.VehicleType, int(identity.Status), identity.Nonce)

	if err != nil {
		// Check if this is a UNIQUE/PRIMARY KEY constraint violation.
		// The base constraint error code is 19 (SQLITE_CONSTRAINT); the
		// extended codes for UNIQUE and PRIMARY KEY are 2067 and 1555.
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) {
			if (sqliteErr.Code() & 0xFF) == sqlite3.SQLITE_CONSTRAINT {
				return ErrDuplicate
			}
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}

	return nil
}

// GetIdentity retrieves an identity by ID.
// Returns ErrNotFound if the ID doesn't exist.
func (s *SQLiteStorage) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	var (
		ident  Identity
		status int
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, pin_hash, full_name, address, plate, vehicle_type, status, nonce, created_at, updated_at
		 FROM identities WHERE id = ?`,
		id).
		Scan(&ident.ID, &ident.PINHash, &ident.FullName, &ident.Address,
			&ident.Plate, &ident.VehicleType, &status, &ident.Nonce,
			&ident.CreatedAt, &ident.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	ident.Status = ParkingStatus(status)
	return &ident, nil
}

// SetNonce overwrites the identity's outstanding nonce.
// Issuing a new token silently invalidates any prior unconfirmed one,
// so this is a plain overwrite rather than an append.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLiteStorage) SetNonce(ctx context.Context, id string, nonce string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE identities SET nonce = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		nonce, id)
	if err != nil {
		return fmt.Errorf("failed to set nonce: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// CommitTransition atomically flips the identity's parking status, clears
// its outstanding nonce, and appends a history entry. All three happen in
// one transaction: a crash between them must not leave the status flipped
// without a ledger entry, or vice versa.
//
// The UPDATE is conditional on the status and nonce the caller validated
// against. Returns ErrConflict if no row matched, meaning a concurrent
// confirmation or issuance got there first; callers should re-read the
// identity to classify the conflict.
func (s *SQLiteStorage) CommitTransition(ctx context.Context, id string, from, to ParkingStatus, expectedNonce string, action string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		`UPDATE identities SET status = ?, nonce = '', updated_at = ?
		 WHERE id = ? AND status = ? AND nonce = ?`,
		int(to), at.UTC(), id, int(from), expectedNonce)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrConflict
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO parking_history (identity_id, action, recorded_at) VALUES (?, ?, ?)",
		id, action, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}

	return nil
}
