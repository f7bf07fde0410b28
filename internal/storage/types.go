package storage

import "time"

// ParkingStatus indicates which side of the gate an identity's vehicle is on.
type ParkingStatus int

const (
	// StatusOutside means the vehicle is not in the lot.
	StatusOutside ParkingStatus = 0
	// StatusInside means the vehicle is currently parked in the lot.
	StatusInside ParkingStatus = 1
)

// Identity represents a registered vehicle owner, keyed by national ID.
type Identity struct {
	ID          string
	PINHash     string
	FullName    string
	Address     string
	Plate       string
	VehicleType string
	Status      ParkingStatus
	// Nonce is the outstanding single-use token discriminator.
	// Empty when no unconfirmed token is outstanding.
	Nonce     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HistoryEntry represents one confirmed enter or exit event.
// Entries are append-only and never updated or deleted.
type HistoryEntry struct {
	ID         int64
	IdentityID string
	Action     string // "IN" or "OUT"
	RecordedAt time.Time
}
