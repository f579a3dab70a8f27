// Package websocket holds the per-process connection registry and the /ws handler.
package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/contestpulse/internal/adapter/metrics"
	"github.com/pscheid92/contestpulse/internal/domain"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	commandBuffer  = 256
)

var (
	ErrTooManyConnections = errors.New("too many connections")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrRegistryTimeout    = errors.New("registry command timed out")
)

type RegistryConfig struct {
	BatchSize        int
	LivenessInterval time.Duration
	MaxConnections   int
}

type room map[*Client]struct{}

// registryCmd is the command interface for the Registry actor.
type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type registerCmd struct {
	baseRegistryCmd
	connection *websocket.Conn
	reply      chan registerReply
}

type registerReply struct {
	client *Client
	err    error
}

type joinCmd struct {
	baseRegistryCmd
	client    *Client
	contestID string
	identity  domain.Identity
	reply     chan error
}

type leaveCmd struct {
	baseRegistryCmd
	client *Client
}

type disconnectCmd struct {
	baseRegistryCmd
	client *Client
}

type deliverCmd struct {
	baseRegistryCmd
	contestID string
	msg       domain.ServerMessage
}

type statsCmd struct {
	baseRegistryCmd
	contestID string
	reply     chan Stats
}

type stopCmd struct {
	baseRegistryCmd
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Connections int
	Rooms       int
	RoomSize    int
}

// Registry owns every connection and room of this process. All state lives on one
// goroutine; public methods send it commands.
type Registry struct {
	cmdCh    chan registryCmd
	done     chan struct{}
	verifier domain.TokenVerifier
	cfg      RegistryConfig
	clock    clockwork.Clock
	metrics  *metrics.WebSocketMetrics

	clients map[*Client]struct{}
	rooms   map[string]room
}

func NewRegistry(verifier domain.TokenVerifier, cfg RegistryConfig, clock clockwork.Clock, m *metrics.WebSocketMetrics) *Registry {
	r := &Registry{
		cmdCh:    make(chan registryCmd, commandBuffer),
		done:     make(chan struct{}),
		verifier: verifier,
		cfg:      cfg,
		clock:    clock,
		metrics:  m,
		clients:  make(map[*Client]struct{}),
		rooms:    make(map[string]room),
	}
	go r.run()
	return r
}

// Register adopts an upgraded connection. The connection is closed on error.
func (r *Registry) Register(conn *websocket.Conn) (*Client, error) {
	reply := make(chan registerReply, 1)
	if err := r.submit(registerCmd{connection: conn, reply: reply}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	select {
	case rr := <-reply:
		return rr.client, rr.err
	case <-r.after(commandTimeout):
		return nil, fmt.Errorf("register: %w", ErrRegistryTimeout)
	}
}

// Join verifies token on the caller's goroutine and then moves c into the contest room,
// leaving any previous room. The joined reply is queued before any room broadcast.
func (r *Registry) Join(c *Client, contestID, token string) error {
	identity, err := r.verifier.Verify(token)
	if err != nil {
		r.metrics.JoinsRejected.WithLabelValues("unauthorized").Inc()
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !identity.CanAccess(contestID) {
		r.metrics.JoinsRejected.WithLabelValues("forbidden").Inc()
		return fmt.Errorf("%w: contest %s", domain.ErrForbidden, contestID)
	}

	reply := make(chan error, 1)
	if err := r.submit(joinCmd{client: c, contestID: contestID, identity: identity, reply: reply}); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-r.after(commandTimeout):
		return fmt.Errorf("join: %w", ErrRegistryTimeout)
	}
}

func (r *Registry) Leave(c *Client) {
	_ = r.submit(leaveCmd{client: c})
}

// OnDisconnect is called once the read loop ends.
func (r *Registry) OnDisconnect(c *Client) {
	_ = r.submit(disconnectCmd{client: c})
}

// Deliver implements app.LocalDeliverer.
func (r *Registry) Deliver(contestID string, msg domain.ServerMessage) {
	if err := r.submit(deliverCmd{contestID: contestID, msg: msg}); err != nil {
		slog.Warn("Dropping delivery, registry stopped", "contest_id", contestID, "type", msg.Type())
	}
}

// Stats reports totals and the member count of contestID.
func (r *Registry) Stats(contestID string) Stats {
	reply := make(chan Stats, 1)
	if err := r.submit(statsCmd{contestID: contestID, reply: reply}); err != nil {
		return Stats{}
	}

	select {
	case s := <-reply:
		return s
	case <-r.after(commandTimeout):
		slog.Warn("Stats timed out", "timeout", commandTimeout)
		return Stats{}
	}
}

// Stop closes every connection with a close frame and ends the loop.
func (r *Registry) Stop() {
	if err := r.submit(stopCmd{}); err != nil {
		return
	}

	select {
	case <-r.done:
		slog.Info("Connection registry stopped gracefully")
	case <-time.After(stopTimeout):
		slog.Warn("Connection registry stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (r *Registry) submit(cmd registryCmd) error {
	select {
	case <-r.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case r.cmdCh <- cmd:
		return nil
	case <-r.done:
		return ErrConnectionClosed
	}
}

// after uses wall-clock time so command timeouts still fire under a fake clock.
func (r *Registry) after(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (r *Registry) run() {
	defer close(r.done)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Connection registry panic recovered", "panic", p)
			r.closeAll("internal error")
		}
	}()

	ticker := r.clock.NewTicker(r.cfg.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				r.handleRegister(c)
			case joinCmd:
				c.reply <- r.handleJoin(c)
			case leaveCmd:
				r.handleLeave(c.client)
			case disconnectCmd:
				r.handleDisconnect(c.client)
			case deliverCmd:
				r.handleDeliver(c.contestID, c.msg)
			case statsCmd:
				c.reply <- Stats{Connections: len(r.clients), Rooms: len(r.rooms), RoomSize: len(r.rooms[c.contestID])}
			case stopCmd:
				r.closeAll("Server shutting down")
				return
			default:
				slog.Warn("Registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			r.handleLiveness()
		}
	}
}

func (r *Registry) handleRegister(c registerCmd) {
	if len(r.clients) >= r.cfg.MaxConnections {
		slog.Warn("Rejecting connection: max connections reached", "max_connections", r.cfg.MaxConnections)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, ErrTooManyConnections.Error())
		_ = c.connection.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeDeadline))
		_ = c.connection.Close()
		c.reply <- registerReply{err: ErrTooManyConnections}
		return
	}

	client := newClient(c.connection)
	r.clients[client] = struct{}{}
	r.metrics.ActiveConnections.Inc()

	slog.Debug("Client registered", "client_id", client.id, "total_clients", len(r.clients))
	c.reply <- registerReply{client: client}
}

func (r *Registry) handleJoin(c joinCmd) error {
	client := c.client
	if client.state == stateClosed {
		r.metrics.JoinsRejected.WithLabelValues("closed").Inc()
		return ErrConnectionClosed
	}

	if client.state == stateJoined {
		r.removeFromRoom(client)
	}

	members, ok := r.rooms[c.contestID]
	if !ok {
		members = make(room)
		r.rooms[c.contestID] = members
		r.metrics.ActiveRooms.Set(float64(len(r.rooms)))
	}
	members[client] = struct{}{}

	client.state = stateJoined
	client.contestID = c.contestID
	client.identity = c.identity

	client.Send(domain.Joined{ContestID: c.contestID, ParticipantID: c.identity.ParticipantID})
	slog.Debug("Client joined", "client_id", client.id, "contest_id", c.contestID, "participant_id", c.identity.ParticipantID, "room_size", len(members))
	return nil
}

func (r *Registry) handleLeave(client *Client) {
	if client.state != stateJoined {
		return
	}
	r.removeFromRoom(client)
	client.state = stateUnjoined
}

func (r *Registry) handleDisconnect(client *Client) {
	if client.state == stateClosed {
		return
	}
	if client.state == stateJoined {
		r.removeFromRoom(client)
	}
	client.state = stateClosed

	client.writer.stop()
	if _, ok := r.clients[client]; ok {
		delete(r.clients, client)
		r.metrics.ActiveConnections.Dec()
	}
	slog.Debug("Client disconnected", "client_id", client.id, "remaining_clients", len(r.clients))
}

func (r *Registry) removeFromRoom(client *Client) {
	members, ok := r.rooms[client.contestID]
	if ok {
		delete(members, client)
		if len(members) == 0 {
			delete(r.rooms, client.contestID)
			r.metrics.ActiveRooms.Set(float64(len(r.rooms)))
			slog.Debug("Room closed", "contest_id", client.contestID)
		}
	}
	client.contestID = ""
}

func (r *Registry) handleDeliver(contestID string, msg domain.ServerMessage) {
	members, ok := r.rooms[contestID]
	if !ok {
		return
	}

	data, err := domain.EncodeMessage(msg)
	if err != nil {
		slog.Error("Failed to encode broadcast message", "contest_id", contestID, "type", msg.Type(), "error", err)
		return
	}

	target := msg.Target()
	delivered := 0
	visited := 0
	var slow []*Client
	for client := range members {
		if visited > 0 && visited%r.cfg.BatchSize == 0 {
			runtime.Gosched()
		}
		visited++

		if !client.writer.isOpen() {
			continue
		}
		if target != "" && client.identity.ParticipantID != target {
			continue
		}
		if !client.writer.send(data) {
			slow = append(slow, client)
			continue
		}
		delivered++
	}

	for _, client := range slow {
		slog.Warn("Disconnecting slow client", "client_id", client.id, "contest_id", contestID)
		r.metrics.SlowClientEvicted.Inc()
		r.handleDisconnect(client)
	}

	r.metrics.MessagesDelivered.WithLabelValues(string(msg.Type())).Add(float64(delivered))
}

// handleLiveness terminates room members that stayed silent since the previous sweep
// and pings the rest. Unjoined connections are not swept.
func (r *Registry) handleLiveness() {
	var dead []*Client
	for _, members := range r.rooms {
		for client := range members {
			if !client.alive.Swap(false) {
				dead = append(dead, client)
				continue
			}
			client.writer.ping()
		}
	}

	for _, client := range dead {
		slog.Info("Terminating unresponsive connection", "client_id", client.id, "contest_id", client.contestID)
		r.metrics.DeadConnections.Inc()
		r.handleDisconnect(client)
	}
}

// closeAll closes all client connections with the given reason.
// Used during panic recovery and graceful shutdown.
func (r *Registry) closeAll(reason string) {
	total := len(r.clients)
	for client := range r.clients {
		client.state = stateClosed
		client.writer.stopGraceful(reason)
		delete(r.clients, client)
	}
	r.rooms = make(map[string]room)
	r.metrics.ActiveConnections.Set(0)
	r.metrics.ActiveRooms.Set(0)
	slog.Info("Connection registry closed all clients", "disconnected_clients", total)
}
