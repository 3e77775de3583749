package realtime

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
)

// Handler upgrades GET /ws requests and keeps the connection registered with
// the hub until the client goes away. Clients only receive; anything they
// send is discarded.
type Handler struct {
	hub            *Hub
	originPatterns []string
}

// NewHandler creates a WebSocket handler. originPatterns follows
// websocket.AcceptOptions; "*" allows any origin.
func NewHandler(hub *Hub, originPatterns []string) *Handler {
	return &Handler{hub: hub, originPatterns: originPatterns}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, ""); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	id := h.hub.Register(ws)
	defer h.hub.Unregister(id)

	// CloseRead discards client frames and cancels ctx once the peer closes.
	ctx := ws.CloseRead(r.Context())
	<-ctx.Done()
}

// OriginPatterns converts allowed origins such as "http://localhost:5173" into
// the host patterns websocket.Accept expects.
func OriginPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
