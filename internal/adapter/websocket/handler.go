package websocket

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/contestpulse/internal/domain"
)

const maxMessageSize = 4096

// Handler upgrades /ws requests and runs the read loop of each connection.
type Handler struct {
	registry  *Registry
	admission *Admission
	upgrader  websocket.Upgrader
	now       func() time.Time
}

// NewHandler builds the /ws handler. admission may be nil to skip per-IP limits.
func NewHandler(registry *Registry, admission *Admission, checkOrigin func(*http.Request) bool) *Handler {
	return &Handler{
		registry:  registry,
		admission: admission,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		now: time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.admission != nil {
		ip := clientIP(r)
		if ok, reason := h.admission.Acquire(ip); !ok {
			h.registry.metrics.JoinsRejected.WithLabelValues(string(reason)).Inc()
			http.Error(w, "too many connections", http.StatusTooManyRequests)
			return
		}
		defer h.admission.Release(ip)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	client, err := h.registry.Register(conn)
	if err != nil {
		slog.Warn("Failed to register connection", "error", err)
		return
	}

	h.readLoop(client)
}

// readLoop blocks until the connection closes.
func (h *Handler) readLoop(client *Client) {
	defer h.registry.OnDisconnect(client)

	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		client.MarkAlive()
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read failed", "client_id", client.id, "error", err)
			}
			return
		}
		client.MarkAlive()

		msg, err := domain.ParseClientMessage(data)
		if err != nil {
			client.Send(domain.ErrorMessage{Message: err.Error()})
			continue
		}
		h.dispatch(client, msg)
	}
}

func (h *Handler) dispatch(client *Client, msg domain.ClientMessage) {
	switch msg.Type {
	case domain.ClientJoin:
		if err := h.registry.Join(client, msg.ContestID, msg.Token); err != nil {
			client.Send(domain.ErrorMessage{Message: joinErrorText(err)})
		}
	case domain.ClientLeave:
		h.registry.Leave(client)
	case domain.ClientPing:
		client.Send(domain.Pong{Timestamp: h.now().UTC()})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func joinErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "invalid or expired token"
	case errors.Is(err, domain.ErrForbidden):
		return "not allowed to join this contest"
	default:
		return "join failed"
	}
}
