// Package token defines the scannable action-token wire format.
//
// A token encodes one permitted gate transition for one identity as a
// pipe-delimited string:
//
//	identity_id|action|expires_at_epoch_seconds|nonce
//
// The action is literally "IN" or "OUT". The nonce binds the token to a
// single acceptable confirmation; the earlier nonce-less three-field
// format is replay-vulnerable and is not accepted.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is returned when a token string does not parse.
var ErrMalformed = errors.New("malformed token")

// Action is the gate transition a token authorizes.
type Action string

const (
	// ActionEnter checks a vehicle into the lot.
	ActionEnter Action = "IN"
	// ActionExit checks a vehicle out of the lot.
	ActionExit Action = "OUT"
)

// Label returns the human-readable name shown to users and attendants.
func (a Action) Label() string {
	if a == ActionEnter {
		return "ENTER"
	}
	return "EXIT"
}

// ActionToken is the decoded form of a scannable token. It is ephemeral:
// the encoded string handed to the client is the only place it lives.
type ActionToken struct {
	IdentityID string
	Action     Action
	ExpiresAt  time.Time
	Nonce      string
}

// Encode renders the token in the pipe-delimited wire format.
func (t ActionToken) Encode() string {
	return fmt.Sprintf("%s|%s|%d|%s", t.IdentityID, t.Action, t.ExpiresAt.Unix(), t.Nonce)
}

// Expired reports whether the token's validity window has passed.
func (t ActionToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Decode parses a wire-format token string.
// Returns ErrMalformed for anything other than exactly four non-empty
// fields with a known action and an integer expiry.
func Decode(raw string) (ActionToken, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != 4 {
		return ActionToken{}, ErrMalformed
	}
	for _, p := range parts {
		if p == "" {
			return ActionToken{}, ErrMalformed
		}
	}

	action := Action(parts[1])
	if action != ActionEnter && action != ActionExit {
		return ActionToken{}, ErrMalformed
	}

	epoch, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return ActionToken{}, ErrMalformed
	}

	return ActionToken{
		IdentityID: parts[0],
		Action:     action,
		ExpiresAt:  time.Unix(epoch, 0),
		Nonce:      parts[3],
	}, nil
}
