package hub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"collabboard/server/internal/room"
	"collabboard/server/internal/session"
	"collabboard/server/internal/spatial"
)

func TestDispatchJoinUpdatesDirectoryRoomMembership(t *testing.T) {
	reg := room.NewRegistry(0, "")
	h := New(reg, spatial.New())

	alice := session.New(nil)
	h.Register(alice)
	h.Dispatch(alice, []byte(`{"type":"setUsername","username":"alice"}`))
	h.Dispatch(alice, []byte(`{"type":"createRoom","roomName":"R","isPublic":true}`))

	roomID := alice.RoomID()
	require.NotEmpty(t, roomID)
	require.Len(t, h.RoomMembers(roomID), 1)

	bob := session.New(nil)
	h.Register(bob)
	h.Dispatch(bob, []byte(`{"type":"setUsername","username":"bob"}`))
	h.Dispatch(bob, []byte(`{"type":"joinRoom","roomId":"`+roomID+`"}`))

	require.Len(t, h.RoomMembers(roomID), 2)
}

func TestUnregisterRemovesRoomMembershipAndBroadcastsUserLeft(t *testing.T) {
	reg := room.NewRegistry(0, "")
	h := New(reg, spatial.New())

	alice := session.New(nil)
	h.Register(alice)
	h.Dispatch(alice, []byte(`{"type":"setUsername","username":"alice"}`))
	h.Dispatch(alice, []byte(`{"type":"createRoom","roomName":"R","isPublic":true}`))
	roomID := alice.RoomID()

	h.Unregister(alice)
	require.Empty(t, h.RoomMembers(roomID))

	r, ok := reg.Get(roomID)
	require.True(t, ok)
	require.Equal(t, 0, r.ParticipantCount())
}
