// Package session implements the Connection component (§4.2): the
// per-connection state machine, its bounded outbound queue, and the
// read/write pump goroutines that give each socket a single reader and a
// single writer.
package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"collabboard/server/internal/wsframe"
)

// State is the Connection's position in the INIT -> OPEN -> NAMED -> IN_ROOM
// lifecycle (§4.2). CLOSED is terminal and reachable from any state.
type State int

const (
	StateInit State = iota
	StateOpen
	StateNamed
	StateInRoom
	StateClosed
)

// outboundQueueSize matches the teacher's websocket/client.go send channel
// capacity.
const outboundQueueSize = 256

// Connection is one client's session. Room membership is tracked by stable
// id (RoomID), never by pointer, per §9's "avoid cyclic references" note —
// the Room Registry is the only place a room id resolves to a *room.Room.
type Connection struct {
	id   string
	conn *wsframe.Conn

	mu       sync.Mutex
	state    State
	username string
	roomID   string
	closed   bool

	send chan []byte
}

// New wraps an upgraded socket as a fresh Connection in StateOpen (the
// handshake itself already happened in the Network Surface layer).
func New(ws *wsframe.Conn) *Connection {
	return &Connection{
		id:    uuid.NewString(),
		conn:  ws,
		state: StateOpen,
		send:  make(chan []byte, outboundQueueSize),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Connection) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// SetUsername performs the OPEN -> NAMED transition (§4.2).
func (c *Connection) SetUsername(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	if c.state == StateOpen {
		c.state = StateNamed
	}
}

// SetRoom performs the NAMED -> IN_ROOM transition on join/create.
func (c *Connection) SetRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.state = StateInRoom
}

// ClearRoom reverts IN_ROOM -> NAMED on leave/disconnect-from-room.
func (c *Connection) ClearRoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = ""
	if c.state == StateInRoom {
		c.state = StateNamed
	}
}

// Send enqueues payload on the outbound queue. It reports false if the
// queue is full (overflow backpressure, §4.2/§5) or the connection is
// already closed; the caller is responsible for then closing the
// connection, per the fail-fast policy. The closed-check and the channel
// send happen under the same lock Close uses to close(c.send), so a send
// can never race a close of the channel it's sending on.
func (c *Connection) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close marks the connection closed and unblocks both pumps. Safe to call
// more than once. close(c.send) happens under the same lock Send takes, so
// Send never observes a closed channel mid-send.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.state = StateClosed
	close(c.send)
	c.conn.Close()
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ReadPump blocks reading text frames and invokes onMessage for each one,
// until the socket errors or closes. onCleanup runs exactly once, whether
// the loop exits because of a read error or because onMessage panics are
// not recovered here (by design — handler panics are a programming error,
// not a network condition).
func (c *Connection) ReadPump(onMessage func(payload []byte), onCleanup func()) {
	defer onCleanup()
	defer c.Close()
	for {
		payload, err := c.conn.ReadText()
		if err != nil {
			return
		}
		onMessage(payload)
	}
}

// WritePump drains the outbound queue and serializes frames, guaranteeing
// per-connection ordering (§4.2). A ticker sends WebSocket pings on the
// same cadence the teacher's client.go uses.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(wsframe.PingPeriod())
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteText(payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(); err != nil {
				return
			}
		}
	}
}

// Evict forcibly closes a connection whose outbound queue overflowed,
// logging the eviction (§7: outbound queue overflow is treated as a peer
// disconnect).
func Evict(c *Connection, reason string) {
	log.Printf("connection %s evicted: %s", c.id, reason)
	c.Close()
}
