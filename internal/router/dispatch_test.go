package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"collabboard/server/internal/fanout"
	"collabboard/server/internal/room"
	"collabboard/server/internal/session"
	"collabboard/server/internal/spatial"
)

// fakeDirectory is a minimal in-memory fanout.Directory for router tests.
type fakeDirectory struct {
	conns map[string]*session.Connection // by username
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{conns: make(map[string]*session.Connection)}
}

func (d *fakeDirectory) add(username string, c *session.Connection) {
	c.SetUsername(username)
	d.conns[username] = c
}

func (d *fakeDirectory) ByUsername(username string) (*session.Connection, bool) {
	c, ok := d.conns[username]
	return c, ok
}

func (d *fakeDirectory) RoomMembers(roomID string) []*session.Connection {
	var out []*session.Connection
	for _, c := range d.conns {
		if c.RoomID() == roomID {
			out = append(out, c)
		}
	}
	return out
}

func (d *fakeDirectory) All() []*session.Connection {
	out := make([]*session.Connection, 0, len(d.conns))
	for _, c := range d.conns {
		out = append(out, c)
	}
	return out
}

func newTestConn() *session.Connection {
	return session.New(nil)
}

func TestSetUsernameRepliesWithFilteredRoomList(t *testing.T) {
	reg := room.NewRegistry(0, "")
	conn := newTestConn()

	actions := Dispatch(reg, newFakeDirectory(), nil, conn, []byte(`{"type":"setUsername","username":"alice"}`))
	require.Len(t, actions, 1)
	u, ok := actions[0].(fanout.Unicast)
	require.True(t, ok)
	require.Equal(t, conn, u.Dst)
	require.Contains(t, string(u.Payload), `"type":"roomList"`)
	require.Equal(t, "alice", conn.Username())
}

func TestCreatePublicRoomBroadcastsGlobally(t *testing.T) {
	reg := room.NewRegistry(0, "")
	dir := newFakeDirectory()
	alice := newTestConn()
	dir.add("alice", alice)

	actions := Dispatch(reg, dir, nil, alice, []byte(`{"type":"createRoom","roomName":"R","isPublic":true}`))
	require.Len(t, actions, 3) // roomCreated unicast, newPublicRoom global, roomList refresh

	_, isUnicast := actions[0].(fanout.Unicast)
	require.True(t, isUnicast)
	_, isGlobal := actions[1].(fanout.Global)
	require.True(t, isGlobal)

	require.Equal(t, session.StateInRoom, alice.State())
}

func TestJoinPrivateRoomWithoutInviteErrors(t *testing.T) {
	reg := room.NewRegistry(0, "")
	dir := newFakeDirectory()
	alice := newTestConn()
	dir.add("alice", alice)
	r := reg.Create("P", "alice", false, "", []string{"bob"})

	carol := newTestConn()
	dir.add("carol", carol)

	actions := Dispatch(reg, dir, nil, carol, []byte(`{"type":"joinRoom","roomId":"`+r.ID()+`"}`))
	require.Len(t, actions, 1)
	u := actions[0].(fanout.Unicast)
	require.Contains(t, string(u.Payload), "not invited")
}

func TestJoinRoomProducesJoinSequence(t *testing.T) {
	reg := room.NewRegistry(0, "")
	dir := newFakeDirectory()
	alice := newTestConn()
	dir.add("alice", alice)
	r := reg.Create("R", "alice", true, "", nil)
	r.AppendReplay([]byte(`{"type":"draw"}`))

	bob := newTestConn()
	dir.add("bob", bob)

	actions := Dispatch(reg, dir, nil, bob, []byte(`{"type":"joinRoom","roomId":"`+r.ID()+`"}`))
	require.Len(t, actions, 1)
	js, ok := actions[0].(fanout.JoinSequence)
	require.True(t, ok)
	require.Len(t, js.Replay, 1)
	require.Equal(t, session.StateInRoom, bob.State())
}

func TestDrawRequiresRoomMembership(t *testing.T) {
	reg := room.NewRegistry(0, "")
	conn := newTestConn()
	conn.SetUsername("alice")

	actions := Dispatch(reg, newFakeDirectory(), nil, conn, []byte(`{"type":"draw","x1":0,"y1":0,"x2":1,"y2":1}`))
	require.Len(t, actions, 1)
	u := actions[0].(fanout.Unicast)
	require.Contains(t, string(u.Payload), "not in a room")
}

func TestUnknownTypeIsIgnored(t *testing.T) {
	reg := room.NewRegistry(0, "")
	conn := newTestConn()
	actions := Dispatch(reg, newFakeDirectory(), nil, conn, []byte(`{"type":"banana"}`))
	require.Nil(t, actions)
}

func TestClearBroadcastsAndTruncates(t *testing.T) {
	reg := room.NewRegistry(0, "")
	dir := newFakeDirectory()
	alice := newTestConn()
	dir.add("alice", alice)
	r := reg.Create("R", "alice", true, "", nil)
	require.NoError(t, r.Join("alice", ""))
	alice.SetRoom(r.ID())
	r.AppendReplay([]byte(`{"type":"draw"}`))

	actions := Dispatch(reg, dir, nil, alice, []byte(`{"type":"clear"}`))
	require.Len(t, actions, 1)
	b, ok := actions[0].(fanout.BroadcastToRoom)
	require.True(t, ok)
	require.Contains(t, string(b.Payload), `"type":"clear"`)
	require.Empty(t, r.ReplaySnapshot())
}

func TestAddShapeUpdateDeleteClearKeepSpatialIndexInSync(t *testing.T) {
	reg := room.NewRegistry(0, "")
	dir := newFakeDirectory()
	alice := newTestConn()
	dir.add("alice", alice)
	r := reg.Create("R", "alice", true, "", nil)
	require.NoError(t, r.Join("alice", ""))
	alice.SetRoom(r.ID())

	idx := spatial.New()
	viewport := spatial.Box{X1: 0, Y1: 0, X2: 1000, Y2: 1000}

	Dispatch(reg, dir, idx, alice, []byte(`{"type":"addShape","id":"s1","shapeType":"rectangle","x":10,"y":10,"width":20,"height":20}`))
	hits, err := idx.QueryViewport(r.ID(), viewport)
	require.NoError(t, err)
	require.Contains(t, hits, "s1")

	Dispatch(reg, dir, idx, alice, []byte(`{"type":"updateShape","id":"s1","shapeType":"rectangle","x":500,"y":500,"width":20,"height":20}`))
	hits, err = idx.QueryViewport(r.ID(), viewport)
	require.NoError(t, err)
	require.Contains(t, hits, "s1")

	Dispatch(reg, dir, idx, alice, []byte(`{"type":"deleteShape","id":"s1"}`))
	hits, err = idx.QueryViewport(r.ID(), viewport)
	require.NoError(t, err)
	require.NotContains(t, hits, "s1")

	Dispatch(reg, dir, idx, alice, []byte(`{"type":"addShape","id":"s2","shapeType":"circle","x":50,"y":50,"radius":5}`))
	Dispatch(reg, dir, idx, alice, []byte(`{"type":"clear"}`))
	hits, err = idx.QueryViewport(r.ID(), viewport)
	require.NoError(t, err)
	require.Empty(t, hits)
}
