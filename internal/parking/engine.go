package parking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lotpass/lotpass/internal/metrics"
	"github.com/lotpass/lotpass/internal/plate"
	"github.com/lotpass/lotpass/internal/storage"
	"github.com/lotpass/lotpass/internal/token"
)

// Notifier delivers a payload to every live subscriber of one identity.
// Delivery is best-effort: implementations must not block.
type Notifier interface {
	Notify(identityID string, payload any)
}

// ConfirmedEvent is pushed to the confirmed identity's subscribers.
type ConfirmedEvent struct {
	Event  string `json:"event"`
	Status string `json:"status"`
}

// Summary is the identity's public view shown to the attendant during
// preview, before they confirm the transition.
type Summary struct {
	IdentityID   string        `json:"id"`
	FullName     string        `json:"full_name"`
	Plate        string        `json:"plate"`
	PlateDisplay plate.Display `json:"plate_display"`
	VehicleType  string        `json:"vehicle_type"`
	Action       token.Action  `json:"action"`
	ActionLabel  string        `json:"action_label"`
}

// Engine validates presented tokens and commits confirmed transitions.
// It holds no state across requests: every call re-reads the identity
// before deciding.
type Engine struct {
	store    storage.Storage
	locks    *LockTable
	notifier Notifier
	logger   *slog.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewEngine creates an Engine sharing the Issuer's lock table.
// The notifier may be nil, in which case confirmations are silent.
func NewEngine(store storage.Storage, locks *LockTable, notifier Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		locks:    locks,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Preview runs the validation pipeline and returns the identity's public
// summary without mutating anything. The returned error is a *Rejection
// for the user-facing refusal kinds, or a plain error for storage faults.
func (e *Engine) Preview(ctx context.Context, raw string) (*Summary, error) {
	tok, err := token.Decode(raw)
	if err != nil {
		return nil, reject(RejectMalformed, "scan code is not valid")
	}

	ident, err := e.validate(ctx, tok)
	if err != nil {
		return nil, err
	}

	return &Summary{
		IdentityID:   ident.ID,
		FullName:     ident.FullName,
		Plate:        ident.Plate,
		PlateDisplay: plate.Format(ident.Plate),
		VehicleType:  ident.VehicleType,
		Action:       tok.Action,
		ActionLabel:  tok.Action.Label(),
	}, nil
}

// Confirm runs the same pipeline as Preview and then atomically flips
// the identity's status, clears the nonce, and appends the ledger entry.
// On success the identity's subscribers are notified best-effort.
//
// The read-validate-commit sequence holds the identity's lock so that
// two concurrent confirmations serialize: exactly one succeeds, the
// other observes a consistent rejection.
func (e *Engine) Confirm(ctx context.Context, raw string) error {
	tok, err := token.Decode(raw)
	if err != nil {
		metrics.RecordConfirmation("unknown", string(RejectMalformed))
		return reject(RejectMalformed, "scan code is not valid")
	}

	mu := e.locks.Acquire(tok.IdentityID)
	mu.Lock()
	defer mu.Unlock()

	ident, err := e.validate(ctx, tok)
	if err != nil {
		e.recordOutcome(tok, err)
		return err
	}

	from, to := storage.StatusOutside, storage.StatusInside
	if tok.Action == token.ActionExit {
		from, to = storage.StatusInside, storage.StatusOutside
	}

	err = e.store.CommitTransition(ctx, ident.ID, from, to, tok.Nonce, string(tok.Action), e.now())
	if errors.Is(err, storage.ErrConflict) {
		// Lost a race despite the lock (e.g. an out-of-band write).
		// Re-read to report the same rejection a fresh attempt would get.
		err = e.classifyConflict(ctx, tok)
	}
	if err != nil {
		e.recordOutcome(tok, err)
		return err
	}

	e.logger.Info("transition confirmed",
		"identity_id", ident.ID,
		"action", string(tok.Action))
	metrics.RecordConfirmation(string(tok.Action), "confirmed")

	if e.notifier != nil {
		e.notifier.Notify(ident.ID, ConfirmedEvent{Event: "confirmed", Status: "ok"})
	}

	return nil
}

// validate applies the ordered pipeline shared by Preview and Confirm:
// expiry, existence, nonce freshness, state consistency. The nonce check
// runs before the state check on purpose: a stale token for the correct
// next action must report stale_or_reused, telling the attendant the
// code was already used, rather than a generic state conflict.
func (e *Engine) validate(ctx context.Context, tok token.ActionToken) (*storage.Identity, error) {
	if tok.Expired(e.now()) {
		return nil, reject(RejectExpired, "scan code has expired")
	}

	ident, err := e.store.GetIdentity(ctx, tok.IdentityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, reject(RejectNotFound, "no registered vehicle for this code")
		}
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	if ident.Nonce == "" || ident.Nonce != tok.Nonce {
		return nil, reject(RejectStaleOrReused, "this code was already used or replaced")
	}

	if tok.Action == token.ActionEnter && ident.Status == storage.StatusInside {
		return nil, reject(RejectAlreadyInside, "vehicle is already in the lot")
	}
	if tok.Action == token.ActionExit && ident.Status == storage.StatusOutside {
		return nil, reject(RejectAlreadyOutside, "vehicle is not in the lot")
	}

	return ident, nil
}

// classifyConflict re-reads the identity after a conditional-update miss
// and maps the current state to the rejection a fresh attempt would see.
func (e *Engine) classifyConflict(ctx context.Context, tok token.ActionToken) error {
	ident, err := e.store.GetIdentity(ctx, tok.IdentityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return reject(RejectNotFound, "no registered vehicle for this code")
		}
		return fmt.Errorf("failed to reload identity: %w", err)
	}

	if ident.Nonce != tok.Nonce {
		return reject(RejectStaleOrReused, "this code was already used or replaced")
	}
	if tok.Action == token.ActionEnter && ident.Status == storage.StatusInside {
		return reject(RejectAlreadyInside, "vehicle is already in the lot")
	}
	if tok.Action == token.ActionExit && ident.Status == storage.StatusOutside {
		return reject(RejectAlreadyOutside, "vehicle is not in the lot")
	}

	return reject(RejectStaleOrReused, "this code was already used or replaced")
}

func (e *Engine) recordOutcome(tok token.ActionToken, err error) {
	if r, ok := AsRejection(err); ok {
		metrics.RecordConfirmation(string(tok.Action), string(r.Kind))
		return
	}
	metrics.RecordConfirmation(string(tok.Action), "internal")
}
