// Package router implements the Event Router (§4.3): a dispatch table from
// inbound envelope `type` to room mutations and outbound actions. Dispatch
// itself performs no I/O — it calls into room.Registry/room.Room (which do
// their own locking) and returns a list of fanout.Action values for the
// caller to execute. This keeps the router trivially testable, per §4.3's
// "keeping I/O out of the router" guidance.
package router

import (
	"encoding/json"
	"log"
	"time"

	"collabboard/server/internal/fanout"
	"collabboard/server/internal/room"
	"collabboard/server/internal/session"
	"collabboard/server/internal/spatial"
)

// Dispatch parses raw as an envelope and runs the handler for its type,
// against the given registry and connection directory, on behalf of conn.
// idx receives the shape add/update/delete/clear mutations so
// /api/viewport queries stay in sync with room state; a nil idx disables
// spatial indexing (e.g. in tests that don't care about it).
func Dispatch(reg *room.Registry, dir fanout.Directory, idx *spatial.Index, conn *session.Connection, raw []byte) []fanout.Action {
	var env inbound
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		return nil // protocol error: malformed JSON or missing type (§7)
	}

	switch env.Type {
	case "setUsername":
		return handleSetUsername(reg, conn, raw)
	case "getRooms":
		return handleGetRooms(reg, conn)
	case "getActiveUsers":
		return handleGetActiveUsers(dir, conn)
	case "createRoom":
		return handleCreateRoom(reg, dir, conn, raw)
	case "joinRoom":
		return handleJoinRoom(reg, conn, raw)
	case "leaveRoom":
		return handleLeaveRoom(reg, conn)
	case "draw":
		return handleDraw(reg, conn, raw)
	case "addShape":
		return handleAddShape(reg, idx, conn, raw)
	case "updateShape":
		return handleUpdateShape(reg, idx, conn, raw)
	case "deleteShape":
		return handleDeleteShape(reg, idx, conn, raw)
	case "clear":
		return handleClear(reg, idx, conn)
	case "cursor":
		return handleCursor(reg, conn, raw)
	case "chatMessage":
		return handleChatMessage(reg, conn, raw)
	case "getChatHistory":
		return handleGetChatHistory(reg, conn)
	case "transferOwnership":
		return handleTransferOwnership(reg, conn, raw)
	default:
		log.Printf("router: ignoring unknown envelope type %q", env.Type)
		return nil
	}
}

func roomListFor(reg *room.Registry, username string) []byte {
	rooms := reg.ListVisibleTo(username)
	summaries := make([]roomSummary, 0, len(rooms))
	for _, r := range rooms {
		summaries = append(summaries, roomSummary{
			RoomID:          r.ID(),
			RoomName:        r.Name(),
			Creator:         r.Creator(),
			Participants:    r.ParticipantCount(),
			MaxParticipants: r.MaxParticipants(),
			IsPublic:        r.IsPublic(),
			HasPassword:     r.HasPassword(),
		})
	}
	return mustJSON(map[string]any{"type": "roomList", "rooms": summaries})
}

// refreshAllRoomLists builds the §4.6/§8-property-6 "each recipient gets
// their filtered view" room-list broadcast.
func refreshAllRoomLists(reg *room.Registry, dir fanout.Directory) fanout.Action {
	return fanout.RoomListRefresh{
		Connections: dir.All(),
		PayloadFor: func(username string) []byte {
			return roomListFor(reg, username)
		},
	}
}

func handleSetUsername(reg *room.Registry, conn *session.Connection, raw []byte) []fanout.Action {
	var in inSetUsername
	if err := json.Unmarshal(raw, &in); err != nil || in.Username == "" {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope("username is required")}}
	}
	conn.SetUsername(in.Username)
	return []fanout.Action{fanout.Unicast{Dst: conn, Payload: roomListFor(reg, in.Username)}}
}

func handleGetRooms(reg *room.Registry, conn *session.Connection) []fanout.Action {
	// Public-only view: pass an empty username so nothing privately
	// invited or owned is included.
	return []fanout.Action{fanout.Unicast{Dst: conn, Payload: roomListFor(reg, "")}}
}

func handleGetActiveUsers(dir fanout.Directory, conn *session.Connection) []fanout.Action {
	seen := make(map[string]struct{})
	users := make([]string, 0)
	for _, c := range dir.All() {
		u := c.Username()
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		users = append(users, u)
	}
	payload := mustJSON(map[string]any{"type": "activeUsers", "users": users})
	return []fanout.Action{fanout.Unicast{Dst: conn, Payload: payload}}
}

func handleCreateRoom(reg *room.Registry, dir fanout.Directory, conn *session.Connection, raw []byte) []fanout.Action {
	username := conn.Username()
	if username == "" {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope("set a username before creating a room")}}
	}
	var in inCreateRoom
	if err := json.Unmarshal(raw, &in); err != nil || in.RoomName == "" {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope("roomName is required")}}
	}

	r := reg.Create(in.RoomName, username, in.IsPublic, in.Password, in.InvitedUsers)
	if err := r.Join(username, in.Password); err != nil {
		// The creator is always invited/has the password by construction;
		// a failure here would indicate a programming error, not a user error.
		reg.Remove(r.ID())
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope(err.Error())}}
	}
	conn.SetRoom(r.ID())

	created := mustJSON(map[string]any{
		"type": "roomCreated", "roomId": r.ID(), "roomName": r.Name(), "isPublic": r.IsPublic(),
	})
	actions := []fanout.Action{fanout.Unicast{Dst: conn, Payload: created}}

	if in.IsPublic {
		newPublic := mustJSON(map[string]any{
			"type": "newPublicRoom", "roomId": r.ID(), "roomName": r.Name(), "creator": username,
		})
		actions = append(actions, fanout.Global{Payload: newPublic})
		actions = append(actions, refreshAllRoomLists(reg, dir))
	} else {
		invite := mustJSON(map[string]any{
			"type": "newPrivateRoomInvite", "roomId": r.ID(), "roomName": r.Name(),
			"creator": username, "hasPassword": r.HasPassword(),
		})
		actions = append(actions, fanout.MulticastToUsernames{Payload: invite, Usernames: in.InvitedUsers})
		actions = append(actions, refreshAllRoomLists(reg, dir))
	}
	return actions
}

func handleJoinRoom(reg *room.Registry, conn *session.Connection, raw []byte) []fanout.Action {
	username := conn.Username()
	if username == "" {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope("set a username before joining a room")}}
	}
	var in inJoinRoom
	if err := json.Unmarshal(raw, &in); err != nil || in.RoomID == "" {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope("roomId is required")}}
	}

	r, ok := reg.Get(in.RoomID)
	if !ok {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope(room.ErrRoomNotFound.Error())}}
	}
	if err := r.Join(username, in.Password); err != nil {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope(err.Error())}}
	}
	conn.SetRoom(r.ID())

	joined := mustJSON(map[string]any{"type": "roomJoined", "roomId": r.ID(), "roomName": r.Name()})
	userJoined := mustJSON(map[string]any{"type": "userJoined", "username": username})

	return []fanout.Action{fanout.JoinSequence{
		Sender:           conn,
		RoomID:           r.ID(),
		JoinedPayload:    joined,
		Replay:           r.ReplaySnapshot(),
		BroadcastPayload: userJoined,
		RefreshActions:   []fanout.Action{deferredRoomListRefresh(reg)},
	}}
}

// deferredRoomListRefresh builds a RoomListRefresh with no fixed recipient
// list: JoinSequence.apply supplies the live Directory when it actually
// runs, so the closure here only needs to close over the registry.
func deferredRoomListRefresh(reg *room.Registry) fanout.Action {
	return fanout.RoomListRefresh{
		Connections: nil, // filled in by JoinSequence.apply via the Directory it receives
		PayloadFor: func(username string) []byte {
			return roomListFor(reg, username)
		},
	}
}

func handleLeaveRoom(reg *room.Registry, conn *session.Connection) []fanout.Action {
	roomID := conn.RoomID()
	if roomID == "" {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope(room.ErrNotInRoom.Error())}}
	}
	r, ok := reg.Get(roomID)
	if !ok {
		conn.ClearRoom()
		return nil
	}
	username := conn.Username()
	r.Leave(username)
	conn.ClearRoom()

	payload := mustJSON(map[string]any{"type": "userLeft", "username": username, "participants": r.ParticipantCount()})
	return []fanout.Action{fanout.BroadcastToRoom{RoomID: roomID, Payload: payload}}
}

func handleDraw(reg *room.Registry, conn *session.Connection, raw []byte) []fanout.Action {
	r, ok := inRoom(reg, conn)
	if !ok {
		return notInRoomError(conn)
	}
	r.AppendReplay(raw)
	return []fanout.Action{fanout.BroadcastToRoom{RoomID: r.ID(), Payload: raw, ExcludeConnID: conn.ID()}}
}

func handleAddShape(reg *room.Registry, idx *spatial.Index, conn *session.Connection, raw []byte) []fanout.Action {
	r, ok := inRoom(reg, conn)
	if !ok {
		return notInRoomError(conn)
	}
	sd, err := room.ParseShapeData(raw)
	if err != nil || sd.ID == "" {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope(room.ErrShapeNoID.Error())}}
	}
	r.UpsertShape(sd.ID, sd, raw)
	if idx != nil {
		idx.Upsert(r.ID(), sd.ID, boundingBox(sd))
	}
	return []fanout.Action{fanout.BroadcastToRoom{RoomID: r.ID(), Payload: raw}}
}

func handleUpdateShape(reg *room.Registry, idx *spatial.Index, conn *session.Connection, raw []byte) []fanout.Action {
	return handleAddShape(reg, idx, conn, raw) // identical upsert+append semantics (§4.3, §9 open question 3)
}

func handleDeleteShape(reg *room.Registry, idx *spatial.Index, conn *session.Connection, raw []byte) []fanout.Action {
	r, ok := inRoom(reg, conn)
	if !ok {
		return notInRoomError(conn)
	}
	var in inDeleteShape
	if err := json.Unmarshal(raw, &in); err != nil || in.ID == "" {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope(room.ErrShapeNoID.Error())}}
	}
	r.DeleteShape(in.ID, raw)
	if idx != nil {
		idx.Remove(r.ID(), in.ID)
	}
	return []fanout.Action{fanout.BroadcastToRoom{RoomID: r.ID(), Payload: raw}}
}

func handleClear(reg *room.Registry, idx *spatial.Index, conn *session.Connection) []fanout.Action {
	r, ok := inRoom(reg, conn)
	if !ok {
		return notInRoomError(conn)
	}
	r.Clear()
	if idx != nil {
		idx.ClearRoom(r.ID())
	}
	payload := mustJSON(map[string]any{"type": "clear", "username": conn.Username()})
	return []fanout.Action{fanout.BroadcastToRoom{RoomID: r.ID(), Payload: payload}}
}

// boundingBox derives the spatial index box for a shape, grounded on the
// teacher's calculateStrokeBoundingBox: a kind-specific box that always
// normalizes to a non-degenerate rectangle, since spatial.Box rejects
// min==max bounds.
func boundingBox(sd room.ShapeData) spatial.Box {
	switch sd.Kind {
	case room.ShapeCircle:
		r := sd.Radius
		if r <= 0 {
			r = 1
		}
		return spatial.Box{X1: sd.X - r, Y1: sd.Y - r, X2: sd.X + r, Y2: sd.Y + r}
	case room.ShapeLine:
		return normalizedBox(sd.X, sd.Y, sd.EndX, sd.EndY)
	default: // rectangle, triangle, text, image: anchored at (x,y), sized width x height
		w, h := sd.Width, sd.Height
		if w <= 0 {
			w = 1
		}
		if h <= 0 {
			h = 1
		}
		return spatial.Box{X1: sd.X, Y1: sd.Y, X2: sd.X + w, Y2: sd.Y + h}
	}
}

func normalizedBox(x1, y1, x2, y2 float64) spatial.Box {
	if x1 == x2 {
		x2 = x1 + 1
	}
	if y1 == y2 {
		y2 = y1 + 1
	}
	return spatial.Box{X1: min(x1, x2), Y1: min(y1, y2), X2: max(x1, x2), Y2: max(y1, y2)}
}

func handleCursor(reg *room.Registry, conn *session.Connection, raw []byte) []fanout.Action {
	r, ok := inRoom(reg, conn)
	if !ok {
		return notInRoomError(conn)
	}
	// Never appended to the replay log (§9 open question 4).
	return []fanout.Action{fanout.BroadcastToRoom{RoomID: r.ID(), Payload: raw}}
}

func handleChatMessage(reg *room.Registry, conn *session.Connection, raw []byte) []fanout.Action {
	r, ok := inRoom(reg, conn)
	if !ok {
		return notInRoomError(conn)
	}
	username := conn.Username()
	if username == "" {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope("username not set")}}
	}
	var in inChatMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil
	}
	now := time.Now()
	r.AppendChat(room.ChatEntry{RoomID: r.ID(), Username: username, Text: in.Message, Timestamp: now, Kind: room.ChatMessage})

	payload := mustJSON(map[string]any{
		"type": "chatMessage", "username": username, "message": in.Message, "timestamp": now,
	})
	return []fanout.Action{fanout.BroadcastToRoom{RoomID: r.ID(), Payload: payload}}
}

func handleGetChatHistory(reg *room.Registry, conn *session.Connection) []fanout.Action {
	r, ok := inRoom(reg, conn)
	if !ok {
		return notInRoomError(conn)
	}
	payload := mustJSON(map[string]any{"type": "chatHistory", "messages": r.ChatSnapshot()})
	return []fanout.Action{fanout.Unicast{Dst: conn, Payload: payload}}
}

func handleTransferOwnership(reg *room.Registry, conn *session.Connection, raw []byte) []fanout.Action {
	r, ok := inRoom(reg, conn)
	if !ok {
		return notInRoomError(conn)
	}
	var in inTransferOwnership
	if err := json.Unmarshal(raw, &in); err != nil || in.Username == "" {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope("username is required")}}
	}
	if err := r.TransferCreator(conn.Username(), in.Username); err != nil {
		return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope(err.Error())}}
	}
	payload := mustJSON(map[string]any{"type": "ownerChanged", "username": in.Username})
	return []fanout.Action{fanout.BroadcastToRoom{RoomID: r.ID(), Payload: payload}}
}

func inRoom(reg *room.Registry, conn *session.Connection) (*room.Room, bool) {
	roomID := conn.RoomID()
	if roomID == "" {
		return nil, false
	}
	return reg.Get(roomID)
}

func notInRoomError(conn *session.Connection) []fanout.Action {
	return []fanout.Action{fanout.Unicast{Dst: conn, Payload: errorEnvelope(room.ErrNotInRoom.Error())}}
}
