package ws

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	errors "github.com/frahmantamala/payments-service/internal"
)

// Options tunes connection behavior; zero values fall back to defaults.
type Options struct {
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	SendBufferSize  int
	MaxMessageBytes int64
}

func (o Options) writeTimeout() time.Duration {
	if o.WriteTimeout <= 0 {
		return defaultWriteTimeout
	}
	return o.WriteTimeout
}

func (o Options) pongTimeout() time.Duration {
	if o.PongTimeout <= 0 {
		return defaultPongTimeout
	}
	return o.PongTimeout
}

func (o Options) sendBuffer() int {
	if o.SendBufferSize <= 0 {
		return defaultSendBuffer
	}
	return o.SendBufferSize
}

func (o Options) maxMessageBytes() int64 {
	if o.MaxMessageBytes <= 0 {
		return defaultMaxMessageBytes
	}
	return o.MaxMessageBytes
}

// Handler upgrades GET /ws connections. The shared API key is checked before
// the upgrade, so an unauthenticated client never reaches subscribe.
type Handler struct {
	hub      *Hub
	apiKey   string
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, apiKey string, allowedOrigins string, opts Options, logger *slog.Logger) *Handler {
	origins := parseOrigins(allowedOrigins)

	return &Handler{
		hub:    hub,
		apiKey: apiKey,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, o := range origins {
					if o == "*" || strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
		logger: logger,
	}
}

func parseOrigins(allowedOrigins string) []string {
	if allowedOrigins == "" {
		return nil
	}
	parts := strings.Split(allowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
		h.logger.Warn("unauthorized websocket connection attempt", "remote_addr", r.RemoteAddr)
		status, body := errors.ErrInvalidAPIKey.ToHTTPResponse()
		writeJSON(w, status, body)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error
		h.logger.Error("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := newConnection(h.hub, conn, h.opts, h.logger)
	h.hub.Register(c)

	go c.writePump()
	go c.readPump()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
