// Package hub owns the server-wide connection set and room registry,
// wires the Event Router's output into the Fan-out Fabric, and supplies
// the fanout.Directory the router/fanout packages need to resolve
// usernames and room membership to live connections. This is the single
// non-static "Server value" §9 calls for, in place of process-wide statics.
package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"collabboard/server/internal/fanout"
	"collabboard/server/internal/room"
	"collabboard/server/internal/router"
	"collabboard/server/internal/session"
	"collabboard/server/internal/spatial"
)

// Hub is the root object a request handler reaches into; grounded on the
// teacher's websocket/hub.go Hub type, generalized from a channel-driven
// actor loop into direct, lock-protected method calls (simpler, and
// equivalent under the single-writer-per-room model in §5, since the room
// lock already serializes mutation+fan-out).
type Hub struct {
	Registry *room.Registry
	Spatial  *spatial.Index // shared with httpapi.Handlers so /api/viewport sees the same index

	mu          sync.Mutex
	byID        map[string]*session.Connection
	byUsername  map[string]*session.Connection
	byRoom      map[string]map[string]*session.Connection
	connRoomIDs map[string]string // last known conn.RoomID(), to detect join/leave transitions
}

// New builds a Hub around an existing registry and spatial index. Passing a
// nil idx disables spatial indexing of shape mutations.
func New(reg *room.Registry, idx *spatial.Index) *Hub {
	return &Hub{
		Registry:    reg,
		Spatial:     idx,
		byID:        make(map[string]*session.Connection),
		byUsername:  make(map[string]*session.Connection),
		byRoom:      make(map[string]map[string]*session.Connection),
		connRoomIDs: make(map[string]string),
	}
}

// Register adds a newly-upgraded connection to the directory.
func (h *Hub) Register(c *session.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byID[c.ID()] = c
	h.connRoomIDs[c.ID()] = ""
}

// Unregister removes a connection on disconnect, cleaning up any room
// membership and chat username mapping, and emits userLeft to the room it
// was in, matching §3's "on destruction, its membership in any room is
// removed and a user-leave notification is emitted".
func (h *Hub) Unregister(c *session.Connection) {
	h.mu.Lock()
	username := c.Username()
	roomID := c.RoomID()
	delete(h.byID, c.ID())
	delete(h.connRoomIDs, c.ID())
	if username != "" && h.byUsername[username] == c {
		delete(h.byUsername, username)
	}
	if roomID != "" {
		if members, ok := h.byRoom[roomID]; ok {
			delete(members, c.ID())
		}
	}
	h.mu.Unlock()

	if roomID == "" {
		return
	}
	r, ok := h.Registry.Get(roomID)
	if !ok {
		return
	}
	r.Leave(username)
	payload, _ := json.Marshal(map[string]any{
		"type": "userLeft", "username": username, "participants": r.ParticipantCount(),
	})
	fanout.Execute([]fanout.Action{fanout.BroadcastToRoom{RoomID: roomID, Payload: payload}}, h)
	h.Registry.GCEmpty()
}

// Dispatch runs one inbound frame through the Event Router and executes the
// resulting actions, then syncs directory bookkeeping against whatever the
// handler did to conn's username/room state.
func (h *Hub) Dispatch(conn *session.Connection, raw []byte) {
	actions := router.Dispatch(h.Registry, h, h.Spatial, conn, raw)
	h.syncDirectory(conn)
	fanout.Execute(actions, h)
}

func (h *Hub) syncDirectory(conn *session.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if u := conn.Username(); u != "" {
		h.byUsername[u] = conn
	}

	prevRoom := h.connRoomIDs[conn.ID()]
	curRoom := conn.RoomID()
	if prevRoom == curRoom {
		return
	}
	if prevRoom != "" {
		if members, ok := h.byRoom[prevRoom]; ok {
			delete(members, conn.ID())
		}
	}
	if curRoom != "" {
		members, ok := h.byRoom[curRoom]
		if !ok {
			members = make(map[string]*session.Connection)
			h.byRoom[curRoom] = members
		}
		members[conn.ID()] = conn
	}
	h.connRoomIDs[conn.ID()] = curRoom
}

// ByUsername implements fanout.Directory.
func (h *Hub) ByUsername(username string) (*session.Connection, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.byUsername[username]
	return c, ok
}

// RoomMembers implements fanout.Directory.
func (h *Hub) RoomMembers(roomID string) []*session.Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.byRoom[roomID]
	out := make([]*session.Connection, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// All implements fanout.Directory.
func (h *Hub) All() []*session.Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*session.Connection, 0, len(h.byID))
	for _, c := range h.byID {
		out = append(out, c)
	}
	return out
}

// StartGCLoop periodically sweeps empty rooms, mirroring the teacher's
// recovery.go cleanup-ticker shape.
func (h *Hub) StartGCLoop(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			h.Registry.GCEmpty()
			log.Printf("hub: empty-room GC swept, %d rooms remain", len(h.Registry.List()))
		}
	}()
}
