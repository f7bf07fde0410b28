// Package parking implements the QR-token issuance and confirmation
// protocol: the state machine over a user's parking status, the
// single-use nonce anti-replay mechanism, and the notification handoff.
package parking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lotpass/lotpass/internal/metrics"
	"github.com/lotpass/lotpass/internal/storage"
	"github.com/lotpass/lotpass/internal/token"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 300 * time.Second

// IssuedToken is what the authenticated user receives to render as a
// scannable code.
type IssuedToken struct {
	Token       string
	Action      token.Action
	ActionLabel string
	TTLSeconds  int
}

// Issuer produces time-boxed, single-use action tokens. The action is
// derived solely from the identity's current parking status, never
// supplied by the client: a vehicle outside the lot can only request to
// enter, one inside can only request to exit.
type Issuer struct {
	store  storage.Storage
	locks  *LockTable
	ttl    time.Duration
	logger *slog.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewIssuer creates an Issuer. The lock table must be shared with the
// Engine operating on the same store so issuance cannot interleave with
// a commit for the same identity.
func NewIssuer(store storage.Storage, locks *LockTable, ttl time.Duration, logger *slog.Logger) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{
		store:  store,
		locks:  locks,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Issue creates a fresh token for the identity's next allowed action and
// persists its nonce, overwriting any previous outstanding nonce. The
// overwrite silently invalidates prior unconfirmed tokens.
func (i *Issuer) Issue(ctx context.Context, identityID string) (*IssuedToken, error) {
	mu := i.locks.Acquire(identityID)
	mu.Lock()
	defer mu.Unlock()

	ident, err := i.store.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	action := token.ActionEnter
	if ident.Status == storage.StatusInside {
		action = token.ActionExit
	}

	tok := token.ActionToken{
		IdentityID: ident.ID,
		Action:     action,
		ExpiresAt:  i.now().Add(i.ttl),
		Nonce:      uuid.NewString(),
	}

	if err := i.store.SetNonce(ctx, ident.ID, tok.Nonce); err != nil {
		return nil, fmt.Errorf("failed to persist nonce: %w", err)
	}

	i.logger.Info("token issued",
		"identity_id", ident.ID,
		"action", string(action),
		"expires_at", tok.ExpiresAt)
	metrics.RecordTokenIssued(string(action))

	return &IssuedToken{
		Token:       tok.Encode(),
		Action:      action,
		ActionLabel: action.Label(),
		TTLSeconds:  int(i.ttl.Seconds()),
	}, nil
}
