package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotpass/lotpass/internal/account"
	"github.com/lotpass/lotpass/internal/notify"
	"github.com/lotpass/lotpass/internal/parking"
	"github.com/lotpass/lotpass/internal/storage"
)

// testServer bundles the running server and a cookie-aware client.
type testServer struct {
	srv    *httptest.Server
	client *http.Client
}

func newTestServer(t *testing.T, sessionTimeout time.Duration) *testServer {
	t.Helper()

	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locks := parking.NewLockTable()
	hub := notify.NewHub(logger)
	issuer := parking.NewIssuer(store, locks, time.Minute, logger)
	engine := parking.NewEngine(store, locks, hub, logger)
	accounts := account.NewService(store, logger)
	sessions := NewSessionStore(sessionTimeout)

	h := NewHandler(accounts, issuer, engine, hub, store, sessions, logger)
	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testServer{
		srv:    srv,
		client: &http.Client{Jar: jar},
	}
}

// postJSON sends a JSON body and decodes the JSON response.
func (ts *testServer) postJSON(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := ts.client.Post(ts.srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode, decodeJSON(t, resp)
}

func (ts *testServer) getJSON(t *testing.T, path string) (int, map[string]any) {
	t.Helper()

	resp, err := ts.client.Get(ts.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode, decodeJSON(t, resp)
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func registerBody(id string) map[string]string {
	return map[string]string{
		"id":           id,
		"pin":          "123456",
		"full_name":    "Nguyen Van A",
		"address":      "1 Tran Hung Dao",
		"plate":        "29A112345",
		"vehicle_type": "motorbike",
	}
}

// TestRegister covers validation, success, and duplicates.
func TestRegister(t *testing.T) {
	ts := newTestServer(t, time.Minute)

	status, body := ts.postJSON(t, "/api/register", registerBody("111122223333"))
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "registered", body["status"])

	// Duplicate ID
	status, body = ts.postJSON(t, "/api/register", registerBody("111122223333"))
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate", body["error"])

	// Bad ID format
	status, body = ts.postJSON(t, "/api/register", registerBody("12345"))
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", body["error"])

	// Bad PIN format
	req := registerBody("444455556666")
	req["pin"] = "12ab56"
	status, _ = ts.postJSON(t, "/api/register", req)
	require.Equal(t, http.StatusBadRequest, status)
}

// TestLogin covers credential checks and the session cookie.
func TestLogin(t *testing.T) {
	ts := newTestServer(t, time.Minute)

	status, _ := ts.postJSON(t, "/api/register", registerBody("111122223333"))
	require.Equal(t, http.StatusCreated, status)

	// Wrong PIN
	status, body := ts.postJSON(t, "/api/login", map[string]string{"id": "111122223333", "pin": "000000"})
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", body["error"])

	// Unknown ID reports the same error
	status, body = ts.postJSON(t, "/api/login", map[string]string{"id": "999999999999", "pin": "123456"})
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", body["error"])

	// Correct credentials
	status, body = ts.postJSON(t, "/api/login", map[string]string{"id": "111122223333", "pin": "123456"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(60), body["expires_in_seconds"])

	// Cookie jar now holds the session; /api/me works
	status, body = ts.getJSON(t, "/api/me")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "111122223333", body["id"])
	assert.Equal(t, "OUTSIDE", body["status"])
	assert.Nil(t, body["last_activity"])

	display, ok := body["plate_display"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "29-A1", display["top"])
	assert.Equal(t, "123.45", display["bottom"])
}

// TestSessionRequired verifies the protected endpoints reject anonymous
// requests.
func TestSessionRequired(t *testing.T) {
	ts := newTestServer(t, time.Minute)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/history"},
		{http.MethodPost, "/api/token"},
	} {
		req, err := http.NewRequest(tc.method, ts.srv.URL+tc.path, strings.NewReader("{}"))
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		body := decodeJSON(t, resp)
		resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)
		assert.Equal(t, "unauthenticated", body["error"])
	}
}

// TestGateFlow exercises the full cycle: issue, preview, confirm, and
// the status flip observed on /api/me, then reuse rejection.
func TestGateFlow(t *testing.T) {
	ts := newTestServer(t, time.Minute)

	status, _ := ts.postJSON(t, "/api/register", registerBody("111122223333"))
	require.Equal(t, http.StatusCreated, status)
	status, _ = ts.postJSON(t, "/api/login", map[string]string{"id": "111122223333", "pin": "123456"})
	require.Equal(t, http.StatusOK, status)

	// Issue: vehicle is outside, so the action must be IN
	status, body := ts.postJSON(t, "/api/token", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "IN", body["action"])
	assert.Equal(t, "ENTER", body["action_label"])
	assert.Equal(t, float64(60), body["ttl_seconds"])

	tok, ok := body["token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, tok)

	// Preview shows the attendant the identity summary without mutating
	status, body = ts.postJSON(t, "/api/scan/preview", map[string]string{"token": tok})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Nguyen Van A", body["full_name"])
	assert.Equal(t, "motorbike", body["vehicle_type"])
	assert.Equal(t, "IN", body["action"])

	// Confirm flips the status
	status, body = ts.postJSON(t, "/api/scan/confirm", map[string]string{"token": tok})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", body["status"])

	status, body = ts.getJSON(t, "/api/me")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "INSIDE", body["status"])
	last, ok := body["last_activity"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "IN", last["action"])
	assert.Equal(t, "ENTER", last["action_label"])

	// The token is single-use
	status, body = ts.postJSON(t, "/api/scan/confirm", map[string]string{"token": tok})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "stale_or_reused", body["error"])

	// Next issuance derives OUT from the new state
	status, body = ts.postJSON(t, "/api/token", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OUT", body["action"])
	assert.Equal(t, "EXIT", body["action_label"])

	// History lists the confirmed entry
	status, body = ts.getJSON(t, "/api/history")
	require.Equal(t, http.StatusOK, status)
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
	first, ok := entries[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "IN", first["action"])
}

// TestScanRejectionStatus maps rejection kinds onto HTTP statuses.
func TestScanRejectionStatus(t *testing.T) {
	ts := newTestServer(t, time.Minute)

	future := time.Now().Add(time.Minute).Unix()
	past := time.Now().Add(-time.Minute).Unix()

	for _, tc := range []struct {
		name       string
		token      string
		wantStatus int
		wantError  string
	}{
		{"garbage", "not-a-token", http.StatusBadRequest, "malformed"},
		{"three fields", "111122223333|IN|12345", http.StatusBadRequest, "malformed"},
		{"expired", fmt.Sprintf("111122223333|IN|%d|nonce", past), http.StatusBadRequest, "expired"},
		{"unknown identity", fmt.Sprintf("999999999999|IN|%d|nonce", future), http.StatusNotFound, "not_found"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			status, body := ts.postJSON(t, "/api/scan/preview", map[string]string{"token": tc.token})
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantError, body["error"])

			status, body = ts.postJSON(t, "/api/scan/confirm", map[string]string{"token": tc.token})
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantError, body["error"])
		})
	}
}

// TestLogout verifies the session ends and the cookie is cleared.
func TestLogout(t *testing.T) {
	ts := newTestServer(t, time.Minute)

	status, _ := ts.postJSON(t, "/api/register", registerBody("111122223333"))
	require.Equal(t, http.StatusCreated, status)
	status, _ = ts.postJSON(t, "/api/login", map[string]string{"id": "111122223333", "pin": "123456"})
	require.Equal(t, http.StatusOK, status)

	resp, err := ts.client.Post(ts.srv.URL+"/api/logout", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	status, body := ts.getJSON(t, "/api/me")
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", body["error"])
}

// TestSessionExpiry verifies expired sessions stop authenticating.
func TestSessionExpiry(t *testing.T) {
	ts := newTestServer(t, 50*time.Millisecond)

	status, _ := ts.postJSON(t, "/api/register", registerBody("111122223333"))
	require.Equal(t, http.StatusCreated, status)
	status, _ = ts.postJSON(t, "/api/login", map[string]string{"id": "111122223333", "pin": "123456"})
	require.Equal(t, http.StatusOK, status)

	time.Sleep(80 * time.Millisecond)

	status, body := ts.getJSON(t, "/api/me")
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", body["error"])
}

// TestIssueExtendsSession verifies issuing a token slides the session
// expiry so the dashboard outlives the token it displays.
func TestIssueExtendsSession(t *testing.T) {
	ts := newTestServer(t, 200*time.Millisecond)

	status, _ := ts.postJSON(t, "/api/register", registerBody("111122223333"))
	require.Equal(t, http.StatusCreated, status)
	status, _ = ts.postJSON(t, "/api/login", map[string]string{"id": "111122223333", "pin": "123456"})
	require.Equal(t, http.StatusOK, status)

	// Keep issuing past the original expiry; each issue re-arms the clock
	for i := 0; i < 3; i++ {
		time.Sleep(120 * time.Millisecond)
		status, _ = ts.postJSON(t, "/api/token", nil)
		require.Equal(t, http.StatusOK, status, "issue %d should extend the session", i)
	}
}

// TestIssueTokenRefreshesCookie verifies issuing a token re-sets the
// session cookie so the browser's expiry slides along with the
// server-side session.
func TestIssueTokenRefreshesCookie(t *testing.T) {
	ts := newTestServer(t, time.Minute)

	status, _ := ts.postJSON(t, "/api/register", registerBody("111122223333"))
	require.Equal(t, http.StatusCreated, status)
	status, _ = ts.postJSON(t, "/api/login", map[string]string{"id": "111122223333", "pin": "123456"})
	require.Equal(t, http.StatusOK, status)

	resp, err := ts.client.Post(ts.srv.URL+"/api/token", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var refreshed *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			refreshed = c
		}
	}
	require.NotNil(t, refreshed, "issuing a token should re-set the session cookie")
	assert.NotEmpty(t, refreshed.Value)
	assert.Equal(t, 60, refreshed.MaxAge)
}

// TestWebsocketConfirmedEvent verifies a subscribed session receives the
// confirmation push.
func TestWebsocketConfirmedEvent(t *testing.T) {
	ts := newTestServer(t, time.Minute)

	status, _ := ts.postJSON(t, "/api/register", registerBody("111122223333"))
	require.Equal(t, http.StatusCreated, status)
	status, _ = ts.postJSON(t, "/api/login", map[string]string{"id": "111122223333", "pin": "123456"})
	require.Equal(t, http.StatusOK, status)

	// Dial /ws with the session cookie from the jar
	u := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	srvURL, err := url.Parse(ts.srv.URL)
	require.NoError(t, err)

	header := http.Header{}
	for _, c := range ts.client.Jar.Cookies(srvURL) {
		header.Add("Cookie", c.String())
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	status, body := ts.postJSON(t, "/api/token", nil)
	require.Equal(t, http.StatusOK, status)
	tok := body["token"].(string)

	status, _ = ts.postJSON(t, "/api/scan/confirm", map[string]string{"token": tok})
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event map[string]string
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "confirmed", event["event"])
	assert.Equal(t, "ok", event["status"])
}

// TestWebsocketRequiresSession verifies anonymous upgrade attempts are
// refused before the upgrade.
func TestWebsocketRequiresSession(t *testing.T) {
	ts := newTestServer(t, time.Minute)

	u := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestHealthAndReady covers the probe endpoints.
func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, time.Minute)

	status, body := ts.getJSON(t, "/health")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = ts.getJSON(t, "/ready")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}
