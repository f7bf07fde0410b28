// Package storage handles all database operations for lotpass.
package storage

import (
	"context"
	"time"
)

// Storage defines the interface for SQLite persistence operations.
type Storage interface {
	// Identity operations
	CreateIdentity(ctx context.Context, identity *Identity) error
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	SetNonce(ctx context.Context, id string, nonce string) error
	CommitTransition(ctx context.Context, id string, from, to ParkingStatus, expectedNonce string, action string, at time.Time) error

	// History operations
	ListHistory(ctx context.Context, identityID string, limit int) ([]*HistoryEntry, error)
	LatestHistory(ctx context.Context, identityID string) (*HistoryEntry, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
