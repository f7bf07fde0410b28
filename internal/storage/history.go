package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ListHistory returns up to limit confirmed events for an identity,
// newest first. Returns an empty slice if there is no history.
func (s *SQLiteStorage) ListHistory(ctx context.Context, identityID string, limit int) ([]*HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identity_id, action, recorded_at FROM parking_history
		 WHERE identity_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.IdentityID, &e.Action, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	// Return empty slice instead of nil
	if entries == nil {
		entries = make([]*HistoryEntry, 0)
	}

	return entries, nil
}

// LatestHistory returns the most recent confirmed event for an identity.
// Returns ErrNotFound if the identity has no history yet.
func (s *SQLiteStorage) LatestHistory(ctx context.Context, identityID string) (*HistoryEntry, error) {
	var e HistoryEntry

	err := s.db.QueryRowContext(ctx,
		`SELECT id, identity_id, action, recorded_at FROM parking_history
		 WHERE identity_id = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`,
		identityID).
		Scan(&e.ID, &e.IdentityID, &e.Action, &e.RecordedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest history: %w", err)
	}

	return &e, nil
}
