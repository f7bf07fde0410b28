package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/lotpass/lotpass/internal/parking"
)

// Error codes returned in the JSON error envelope.
const (
	ErrCodeInvalidRequest     = "invalid_request"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeUnauthenticated    = "unauthenticated"
	ErrCodeDuplicate          = "duplicate"
	ErrCodeInternalError      = "internal_error"
)

// APIError is the JSON error envelope for all non-2xx responses.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorHint(w, status, code, message, "")
}

// WriteErrorHint writes a JSON error response with a remediation hint.
func WriteErrorHint(w http.ResponseWriter, status int, code, message, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Error:   code,
		Message: message,
		Hint:    hint,
	})
}

// WriteRejection maps a scan rejection onto an HTTP status and writes
// the envelope. Structural and timing failures are client errors; state
// disagreements are conflicts.
func WriteRejection(w http.ResponseWriter, rej *parking.Rejection) {
	var status int
	switch rej.Kind {
	case parking.RejectMalformed, parking.RejectExpired:
		status = http.StatusBadRequest
	case parking.RejectNotFound:
		status = http.StatusNotFound
	case parking.RejectStaleOrReused, parking.RejectAlreadyInside, parking.RejectAlreadyOutside:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	WriteError(w, status, string(rej.Kind), rej.Message)
}
