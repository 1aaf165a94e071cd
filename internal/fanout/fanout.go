// Package fanout implements the Fan-out Fabric (§4.6): the five action
// variants the Event Router emits, executed against a Directory of live
// connections. Actions are enqueued on each recipient's bounded outbound
// queue; Directory lookups and the room lock that guards a given mutation
// are expected to be held by the caller across the whole
// mutate-then-enumerate-then-enqueue sequence, which is what gives the
// ordering guarantees in §5 and §8 property 2/3.
package fanout

import (
	"collabboard/server/internal/session"
)

// Directory resolves connections by username or room membership, or lists
// them all. It is
// implemented by the hub package, which owns the actual connection set;
// fanout only needs to read it.
type Directory interface {
	ByUsername(username string) (*session.Connection, bool)
	RoomMembers(roomID string) []*session.Connection
	All() []*session.Connection
}

// Action is one unit of outbound work produced by the router.
type Action interface {
	apply(dir Directory)
}

// Unicast sends payload to a single, already-resolved connection.
type Unicast struct {
	Dst     *session.Connection
	Payload []byte
}

func (a Unicast) apply(_ Directory) {
	enqueue(a.Dst, a.Payload)
}

// BroadcastToRoom sends payload to every current member of roomID, optionally
// excluding the connection whose id matches ExcludeConnID.
type BroadcastToRoom struct {
	RoomID        string
	Payload       []byte
	ExcludeConnID string
}

func (a BroadcastToRoom) apply(dir Directory) {
	for _, c := range dir.RoomMembers(a.RoomID) {
		if a.ExcludeConnID != "" && c.ID() == a.ExcludeConnID {
			continue
		}
		enqueue(c, a.Payload)
	}
}

// MulticastToUsernames unicasts payload to each currently-connected username
// in Usernames; usernames with no live connection are silently skipped.
type MulticastToUsernames struct {
	Payload   []byte
	Usernames []string
}

func (a MulticastToUsernames) apply(dir Directory) {
	for _, u := range a.Usernames {
		if c, ok := dir.ByUsername(u); ok {
			enqueue(c, a.Payload)
		}
	}
}

// Global sends payload to every live connection.
type Global struct {
	Payload []byte
}

func (a Global) apply(dir Directory) {
	for _, c := range dir.All() {
		enqueue(c, a.Payload)
	}
}

// JoinSequence is the atomic composite from §4.6: joinedPayload to the
// sender, then the replay log in order to the sender, then broadcastPayload
// to the rest of the room, then a room-list refresh (computed by the
// caller and passed as RefreshActions, since the filtered view differs per
// recipient).
type JoinSequence struct {
	Sender           *session.Connection
	RoomID           string
	JoinedPayload    []byte
	Replay           [][]byte
	BroadcastPayload []byte
	RefreshActions   []Action
}

func (a JoinSequence) apply(dir Directory) {
	enqueue(a.Sender, a.JoinedPayload)
	for _, entry := range a.Replay {
		enqueue(a.Sender, entry)
	}
	for _, c := range dir.RoomMembers(a.RoomID) {
		if c.ID() == a.Sender.ID() {
			continue
		}
		enqueue(c, a.BroadcastPayload)
	}
	for _, refresh := range a.RefreshActions {
		refresh.apply(dir)
	}
}

// enqueue sends payload on c's outbound queue. On overflow the connection
// is evicted (§4.2/§5 backpressure policy) rather than blocking the fan-out
// of every other recipient.
func enqueue(c *session.Connection, payload []byte) {
	if c == nil {
		return
	}
	if !c.Send(payload) {
		session.Evict(c, "outbound queue overflow")
	}
}

// RoomListRefresh sends a personalized roomList to each of Connections,
// computed per-recipient by PayloadFor (room visibility differs by
// username, so this cannot be a single shared payload like Global).
type RoomListRefresh struct {
	Connections []*session.Connection
	PayloadFor  func(username string) []byte
}

func (a RoomListRefresh) apply(dir Directory) {
	conns := a.Connections
	if conns == nil {
		conns = dir.All()
	}
	for _, c := range conns {
		enqueue(c, a.PayloadFor(c.Username()))
	}
}

// Execute runs every action against dir, in order.
func Execute(actions []Action, dir Directory) {
	for _, a := range actions {
		a.apply(dir)
	}
}
