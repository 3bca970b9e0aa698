package websocket

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades HTTP requests to WebSocket connections served by a Hub.
type Handler struct {
	hub      *Hub
	token    string
	upgrader websocket.Upgrader
}

// NewHandler creates a handler. When token is non-empty, clients must pass
// it in the "token" query parameter.
func NewHandler(hub *Hub, token string, allowedOrigins []string) *Handler {
	h := &Handler{hub: hub, token: token}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeHTTP handles the HTTP request and upgrades to WebSocket
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.token != "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "Token required", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn)
	h.hub.Register(client)
	client.Run()

	h.hub.logger.Debug("websocket client connected",
		zap.String("client", client.id),
		zap.String("remote", r.RemoteAddr))
}
