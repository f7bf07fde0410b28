// Package httpapi exposes the service over HTTP: account endpoints for
// vehicle owners, scan endpoints for the attendant terminal, and the
// websocket subscription for live confirmation events.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lotpass/lotpass/internal/account"
	"github.com/lotpass/lotpass/internal/metrics"
	"github.com/lotpass/lotpass/internal/notify"
	"github.com/lotpass/lotpass/internal/parking"
	"github.com/lotpass/lotpass/internal/plate"
	"github.com/lotpass/lotpass/internal/storage"
	"github.com/lotpass/lotpass/internal/token"
)

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	accounts *account.Service
	issuer   *parking.Issuer
	engine   *parking.Engine
	hub      *notify.Hub
	store    storage.Storage
	sessions *SessionStore
	logger   *slog.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(accounts *account.Service, issuer *parking.Issuer, engine *parking.Engine, hub *notify.Hub, store storage.Storage, sessions *SessionStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		accounts: accounts,
		issuer:   issuer,
		engine:   engine,
		hub:      hub,
		store:    store,
		sessions: sessions,
		logger:   logger,
	}
}

type registerRequest struct {
	ID          string `json:"id"`
	PIN         string `json:"pin"`
	FullName    string `json:"full_name"`
	Address     string `json:"address"`
	Plate       string `json:"plate"`
	VehicleType string `json:"vehicle_type"`
}

// HandleRegister creates a new identity.
// POST /api/register
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	err := h.accounts.Register(r.Context(), account.RegisterParams{
		ID:          req.ID,
		PIN:         req.PIN,
		FullName:    req.FullName,
		Address:     req.Address,
		Plate:       req.Plate,
		VehicleType: req.VehicleType,
	})
	switch {
	case errors.Is(err, account.ErrInvalidID), errors.Is(err, account.ErrInvalidPIN):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	case errors.Is(err, account.ErrDuplicateID):
		WriteErrorHint(w, http.StatusConflict, ErrCodeDuplicate, "id is already registered",
			"log in with your existing pin instead")
		return
	case err != nil:
		h.logger.Error("registration failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

type loginRequest struct {
	ID  string `json:"id"`
	PIN string `json:"pin"`
}

// HandleLogin authenticates and starts a session.
// POST /api/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	ident, err := h.accounts.Authenticate(r.Context(), req.ID, req.PIN)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			metrics.RecordAuthFailure("invalid_credentials")
			WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid id or pin")
			return
		}
		h.logger.Error("login failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "login failed")
		return
	}

	session, err := h.sessions.Create(r.Context(), ident.ID)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "login failed")
		return
	}

	h.setSessionCookie(w, r, session)
	h.logger.Info("login", "identity_id", ident.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"expires_in_seconds": int(h.sessions.Timeout().Seconds()),
	})
}

// HandleLogout ends the current session, if any.
// POST /api/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		h.sessions.Delete(r.Context(), cookie.Value)
	}
	h.clearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

type lastActivity struct {
	Action      string    `json:"action"`
	ActionLabel string    `json:"action_label"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type meResponse struct {
	ID               string        `json:"id"`
	FullName         string        `json:"full_name"`
	Address          string        `json:"address"`
	Plate            string        `json:"plate"`
	PlateDisplay     plate.Display `json:"plate_display"`
	VehicleType      string        `json:"vehicle_type"`
	Status           string        `json:"status"`
	LastActivity     *lastActivity `json:"last_activity"`
	SessionRemaining int           `json:"session_remaining_seconds"`
}

// HandleMe returns the logged-in identity's profile and parking status.
// GET /api/me
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())

	ident, err := h.store.GetIdentity(r.Context(), session.IdentityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Identity vanished underneath the session
			h.sessions.Delete(r.Context(), session.ID)
			h.clearSessionCookie(w, r)
			WriteError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "session is no longer valid")
			return
		}
		h.logger.Error("failed to load identity", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to load profile")
		return
	}

	resp := meResponse{
		ID:               ident.ID,
		FullName:         ident.FullName,
		Address:          ident.Address,
		Plate:            ident.Plate,
		PlateDisplay:     plate.Format(ident.Plate),
		VehicleType:      ident.VehicleType,
		Status:           statusLabel(ident.Status),
		SessionRemaining: int(time.Until(session.ExpiresAt).Seconds()),
	}

	last, err := h.store.LatestHistory(r.Context(), ident.ID)
	switch {
	case err == nil:
		act := token.Action(last.Action)
		resp.LastActivity = &lastActivity{
			Action:      last.Action,
			ActionLabel: act.Label(),
			RecordedAt:  last.RecordedAt,
		}
	case errors.Is(err, storage.ErrNotFound):
		// No activity yet
	default:
		h.logger.Error("failed to load history", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type historyEntry struct {
	Action      string    `json:"action"`
	ActionLabel string    `json:"action_label"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// HandleHistory returns the logged-in identity's recent ledger entries,
// newest first.
// GET /api/history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())

	entries, err := h.store.ListHistory(r.Context(), session.IdentityID, 20)
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to load history")
		return
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			Action:      e.Action,
			ActionLabel: token.Action(e.Action).Label(),
			RecordedAt:  e.RecordedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

type issueResponse struct {
	Token             string `json:"token"`
	Action            string `json:"action"`
	ActionLabel       string `json:"action_label"`
	TTLSeconds        int    `json:"ttl_seconds"`
	SessionTTLSeconds int    `json:"session_ttl_seconds"`
}

// HandleIssueToken issues a fresh action token for the logged-in
// identity and slides the session so it outlives the token.
// POST /api/token
func (h *Handler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())

	issued, err := h.issuer.Issue(r.Context(), session.IdentityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.sessions.Delete(r.Context(), session.ID)
			h.clearSessionCookie(w, r)
			WriteError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "session is no longer valid")
			return
		}
		h.logger.Error("token issuance failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to issue token")
		return
	}

	h.sessions.Extend(r.Context(), session.ID)
	// Re-set the cookie so the browser's expiry slides with the
	// server-side session.
	h.setSessionCookie(w, r, session)

	writeJSON(w, http.StatusOK, issueResponse{
		Token:             issued.Token,
		Action:            string(issued.Action),
		ActionLabel:       issued.ActionLabel,
		TTLSeconds:        issued.TTLSeconds,
		SessionTTLSeconds: int(h.sessions.Timeout().Seconds()),
	})
}

type scanRequest struct {
	Token string `json:"token"`
}

// HandlePreview validates a scanned token and returns the identity
// summary for the attendant, without changing any state.
// POST /api/scan/preview
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	summary, err := h.engine.Preview(r.Context(), req.Token)
	if err != nil {
		if rej, ok := parking.AsRejection(err); ok {
			WriteRejection(w, rej)
			return
		}
		h.logger.Error("preview failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "preview failed")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// HandleConfirm re-validates a scanned token and commits the transition.
// POST /api/scan/confirm
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	if err := h.engine.Confirm(r.Context(), req.Token); err != nil {
		if rej, ok := parking.AsRejection(err); ok {
			WriteRejection(w, rej)
			return
		}
		h.logger.Error("confirm failed", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "confirm failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

// HandleSubscribe upgrades to a websocket delivering confirmation events
// for the logged-in identity.
// GET /ws
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())
	h.hub.HandleSubscribe(w, r, session.IdentityID)
}

// HandleHealth is a liveness check.
// GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady reports readiness, including database connectivity.
// GET /ready
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// RequireSession authenticates the request via the session cookie and
// stores the session in the context.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil {
			metrics.RecordAuthFailure("missing_session")
			WriteError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "login required")
			return
		}

		session, ok := h.sessions.Get(r.Context(), cookie.Value)
		if !ok {
			metrics.RecordAuthFailure("expired_session")
			h.clearSessionCookie(w, r)
			WriteErrorHint(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "session expired",
				"log in again")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, r *http.Request, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		MaxAge:   int(h.sessions.Timeout().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

func statusLabel(s storage.ParkingStatus) string {
	if s == storage.StatusInside {
		return "INSIDE"
	}
	return "OUTSIDE"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers already sent; nothing useful left to do.
		return
	}
}
