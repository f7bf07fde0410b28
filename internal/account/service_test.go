package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lotpass/lotpass/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	s, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return NewService(s, nil)
}

func validParams() RegisterParams {
	return RegisterParams{
		ID:          "123456789012",
		PIN:         "654321",
		FullName:    "Le Van C",
		Address:     "5 Ly Thuong Kiet",
		Plate:       "29A112345",
		VehicleType: "motorbike",
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, validParams()))

	ident, err := svc.Authenticate(ctx, "123456789012", "654321")
	require.NoError(t, err)
	require.Equal(t, "Le Van C", ident.FullName)
	require.Equal(t, storage.StatusOutside, ident.Status)

	_, err = svc.Authenticate(ctx, "123456789012", "000000")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "999999999999", "654321")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, validParams()))
	require.ErrorIs(t, svc.Register(ctx, validParams()), ErrDuplicateID)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		id   string
		pin  string
		want error
	}{
		{"short id", "12345", "654321", ErrInvalidID},
		{"long id", "1234567890123", "654321", ErrInvalidID},
		{"letters in id", "12345678901a", "654321", ErrInvalidID},
		{"empty id", "", "654321", ErrInvalidID},
		{"short pin", "123456789012", "12345", ErrInvalidPIN},
		{"long pin", "123456789012", "1234567", ErrInvalidPIN},
		{"letters in pin", "123456789012", "12345a", ErrInvalidPIN},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			p.ID = tc.id
			p.PIN = tc.pin
			require.ErrorIs(t, svc.Register(ctx, p), tc.want)
		})
	}
}
