package parking

// RejectKind is the closed set of user-facing reasons a presented token
// can be refused. Every kind is a recoverable result shown to the
// attendant, not an internal fault.
type RejectKind string

const (
	// RejectMalformed means the token string did not decode.
	RejectMalformed RejectKind = "malformed"
	// RejectExpired means the token's validity window has passed.
	RejectExpired RejectKind = "expired"
	// RejectNotFound means the token references an unknown identity.
	RejectNotFound RejectKind = "not_found"
	// RejectStaleOrReused means the nonce does not match the identity's
	// outstanding nonce: the token was already confirmed, superseded by
	// a newer issuance, or forged.
	RejectStaleOrReused RejectKind = "stale_or_reused"
	// RejectAlreadyInside means an enter token was presented for a
	// vehicle already in the lot.
	RejectAlreadyInside RejectKind = "already_inside"
	// RejectAlreadyOutside means an exit token was presented for a
	// vehicle not in the lot.
	RejectAlreadyOutside RejectKind = "already_outside"
)

// Rejection is a refused validation outcome carrying its kind and a
// message suitable for the attendant terminal.
type Rejection struct {
	Kind    RejectKind
	Message string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return r.Message
}

func reject(kind RejectKind, message string) *Rejection {
	return &Rejection{Kind: kind, Message: message}
}

// AsRejection unwraps err into a *Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	r, ok := err.(*Rejection)
	return r, ok
}
