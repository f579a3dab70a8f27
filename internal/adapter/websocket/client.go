package websocket

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pscheid92/contestpulse/internal/domain"
)

type connState int

const (
	stateUnjoined connState = iota
	stateJoined
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUnjoined:
		return "unjoined"
	case stateJoined:
		return "joined"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Client is one WebSocket connection. Fields below the marker belong to the registry loop.
type Client struct {
	id     string
	conn   *websocket.Conn
	writer *clientWriter
	alive  atomic.Bool

	// owned by the registry goroutine
	state     connState
	contestID string
	identity  domain.Identity
}

func newClient(conn *websocket.Conn) *Client {
	c := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		writer: newClientWriter(conn),
		state:  stateUnjoined,
	}
	c.alive.Store(true)
	return c
}

func (c *Client) ID() string { return c.id }

// MarkAlive records inbound traffic for the liveness sweep.
func (c *Client) MarkAlive() { c.alive.Store(true) }

// Send encodes msg onto the client's queue. It is safe from any goroutine.
func (c *Client) Send(msg domain.ServerMessage) bool {
	data, err := domain.EncodeMessage(msg)
	if err != nil {
		return false
	}
	return c.writer.send(data)
}
