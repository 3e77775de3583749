// Package realtime pushes server events to connected map clients over WebSocket.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const defaultWriteTimeout = 5 * time.Second

// Envelope is the wire format of every pushed event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type listener struct {
	id   string
	conn *websocket.Conn
}

// Hub tracks connected listeners and fans events out to them. Delivery is
// at most once; listeners that connect later do not see earlier events.
type Hub struct {
	mu           sync.RWMutex
	listeners    map[string]*listener
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		listeners:    make(map[string]*listener),
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
}

// Register adds a connection and returns its listener ID.
func (h *Hub) Register(conn *websocket.Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.listeners[id] = &listener{id: id, conn: conn}
	count := len(h.listeners)
	h.mu.Unlock()

	h.logger.Info("Map listener connected", "listener_id", id, "listeners", count)
	return id
}

// Unregister removes a listener. Unknown IDs are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	_, ok := h.listeners[id]
	delete(h.listeners, id)
	count := len(h.listeners)
	h.mu.Unlock()

	if ok {
		h.logger.Info("Map listener disconnected", "listener_id", id, "listeners", count)
	}
}

// Count returns the number of connected listeners.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Broadcast sends {"event": event, "data": payload} to every listener
// connected at the time of the call. Listeners whose write fails are closed
// and removed; that is not reported as an error.
func (h *Hub) Broadcast(ctx context.Context, event string, payload any) error {
	msg, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}

	// Snapshot so slow writes do not hold the lock.
	h.mu.RLock()
	targets := make([]*listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		targets = append(targets, l)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		h.logger.Debug("No map listeners for event", "event", event)
		return nil
	}

	var wg sync.WaitGroup
	for _, l := range targets {
		wg.Add(1)
		go func(l *listener) {
			defer wg.Done()
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			defer cancel()
			if err := l.conn.Write(writeCtx, websocket.MessageText, msg); err != nil {
				h.logger.Debug("Dropping map listener after write failure", "listener_id", l.id, "error", err)
				h.Unregister(l.id)
				_ = l.conn.Close(websocket.StatusPolicyViolation, "write failed")
			}
		}(l)
	}
	wg.Wait()

	h.logger.Debug("Event broadcast", "event", event, "listeners", len(targets))
	return nil
}

// Close disconnects every listener.
func (h *Hub) Close() {
	h.mu.Lock()
	targets := h.listeners
	h.listeners = make(map[string]*listener)
	h.mu.Unlock()

	for _, l := range targets {
		_ = l.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
