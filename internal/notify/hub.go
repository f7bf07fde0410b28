// Package notify delivers real-time confirmation events to user
// sessions over websockets.
//
// Subscriptions are keyed by identity ID. Delivery is best-effort: if an
// identity has no live connections, or a connection's buffer is full,
// the event is dropped. There is no queueing, retry, or durability.
package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lotpass/lotpass/internal/metrics"
)

const (
	// writeWait is the deadline for a single websocket write.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before dropping the
	// connection; pings go out at pingPeriod (< pongWait).
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// sendBuffer is the per-connection outbound queue. Events beyond it
	// are dropped rather than blocking the sender.
	sendBuffer = 8
)

// subscriber is one live connection for one identity.
type subscriber struct {
	identityID string
	conn       *websocket.Conn
	send       chan []byte
}

// Hub maps identity IDs to their live connections and fans events out.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	total  int
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleSubscribe upgrades the request to a websocket and subscribes it
// under identityID until the connection closes. The identity must come
// from the caller's authenticated session, never from the client
// payload, so a client can only subscribe to its own events.
func (h *Hub) HandleSubscribe(w http.ResponseWriter, r *http.Request, identityID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		identityID: identityID,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
	}

	h.add(sub)
	h.logger.Info("subscriber connected", "identity_id", identityID)

	go sub.writePump()
	sub.readPump(h)
}

// Notify delivers payload to every live connection for identityID.
// It never blocks: full buffers and absent subscribers drop the event.
func (h *Hub) Notify(identityID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal notification", "error", err)
		return
	}

	// Hold the read lock across the fan-out: remove takes the write
	// lock before its channel close, so no send can race a close. The
	// sends are non-blocking, keeping the hold bounded.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[identityID] {
		select {
		case sub.send <- data:
		default:
			h.logger.Warn("dropping notification, send buffer full", "identity_id", identityID)
		}
	}
}

// CountSubscribers returns the number of live connections across all
// identities.
func (h *Hub) CountSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	set, ok := h.subs[sub.identityID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[sub.identityID] = set
	}
	set[sub] = struct{}{}
	h.total++
	total := h.total
	h.mu.Unlock()

	metrics.SetSubscribers(total)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	set, ok := h.subs[sub.identityID]
	if ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			h.total--
			if len(set) == 0 {
				delete(h.subs, sub.identityID)
			}
		}
	}
	total := h.total
	h.mu.Unlock()

	close(sub.send)
	metrics.SetSubscribers(total)
}

// readPump discards inbound frames and unsubscribes when the connection
// drops. Clients send nothing meaningful; the channel exists for pushes.
func (s *subscriber) readPump(h *Hub) {
	defer func() {
		h.remove(s)
		_ = s.conn.Close() //nolint:errcheck
		h.logger.Info("subscriber disconnected", "identity_id", s.identityID)
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump serializes all writes to the connection: queued events plus
// keepalive pings. Gorilla connections allow only one concurrent writer.
func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close() //nolint:errcheck
	}()

	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				// Hub removed the subscriber
				_ = s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait)) //nolint:errcheck
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
