// Package account handles registration and credential checks for
// vehicle owners.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lotpass/lotpass/internal/storage"
)

var (
	// ErrInvalidID is returned when the national ID is not exactly 12 digits.
	ErrInvalidID = errors.New("id must be exactly 12 digits")

	// ErrInvalidPIN is returned when the PIN is not exactly 6 digits.
	ErrInvalidPIN = errors.New("pin must be exactly 6 digits")

	// ErrDuplicateID is returned when the ID is already registered.
	ErrDuplicateID = errors.New("id is already registered")

	// ErrInvalidCredentials is returned on login with an unknown ID or a
	// wrong PIN. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid id or pin")
)

// RegisterParams carries the fields submitted on registration.
type RegisterParams struct {
	ID          string
	PIN         string
	FullName    string
	Address     string
	Plate       string
	VehicleType string
}

// Service registers identities and authenticates logins.
type Service struct {
	store  storage.Storage
	logger *slog.Logger
}

// NewService creates an account service.
func NewService(store storage.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Register validates the ID and PIN formats, hashes the PIN, and creates
// the identity. New identities always start outside the lot.
// Returns ErrDuplicateID if the ID is already registered.
func (s *Service) Register(ctx context.Context, p RegisterParams) error {
	if !allDigits(p.ID, 12) {
		return ErrInvalidID
	}
	if !allDigits(p.PIN, 6) {
		return ErrInvalidPIN
	}

	hash, err := storage.HashPIN(p.PIN)
	if err != nil {
		return fmt.Errorf("failed to hash pin: %w", err)
	}

	err = s.store.CreateIdentity(ctx, &storage.Identity{
		ID:          p.ID,
		PINHash:     hash,
		FullName:    p.FullName,
		Address:     p.Address,
		Plate:       p.Plate,
		VehicleType: p.VehicleType,
		Status:      storage.StatusOutside,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}

	s.logger.Info("identity registered", "identity_id", p.ID)
	return nil
}

// Authenticate checks the PIN against the stored hash.
// Returns ErrInvalidCredentials for both unknown IDs and wrong PINs.
func (s *Service) Authenticate(ctx context.Context, id, pin string) (*storage.Identity, error) {
	ident, err := s.store.GetIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	if err := storage.VerifyPIN(pin, ident.PINHash); err != nil {
		s.logger.Warn("failed login attempt", "identity_id", id)
		return nil, ErrInvalidCredentials
	}

	return ident, nil
}

// allDigits reports whether s consists of exactly n ASCII digits.
func allDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
