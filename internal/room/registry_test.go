package room

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryListVisibleToHidesPrivateRooms(t *testing.T) {
	reg := NewRegistry(0, "")
	pub := reg.Create("Public", "alice", true, "", nil)
	reg.Create("Private", "alice", false, "", []string{"bob"})

	visible := reg.ListVisibleTo("carol")
	require.Len(t, visible, 1)
	require.Equal(t, pub.ID(), visible[0].ID())

	visibleBob := reg.ListVisibleTo("bob")
	require.Len(t, visibleBob, 2)
}

func TestRegistryGCKeepsAtLeastOneRoom(t *testing.T) {
	reg := NewRegistry(0, "")
	only := reg.Create("Only", "alice", true, "", nil)
	reg.GCEmpty()
	_, ok := reg.Get(only.ID())
	require.True(t, ok, "last remaining room must survive GC")
}

func TestRegistryGCRemovesEmptyRoomsWhenMultiple(t *testing.T) {
	reg := NewRegistry(0, "")
	a := reg.Create("A", "alice", true, "", nil)
	b := reg.Create("B", "bob", true, "", nil)
	require.NoError(t, b.Join("bob", ""))

	reg.GCEmpty()

	_, aOK := reg.Get(a.ID())
	_, bOK := reg.Get(b.ID())
	require.False(t, aOK)
	require.True(t, bOK)
}

func TestRegistryGetByName(t *testing.T) {
	reg := NewRegistry(0, "")
	reg.Create("Whiteboard", "alice", true, "", nil)
	r, ok := reg.GetByName("Whiteboard")
	require.True(t, ok)
	require.Equal(t, "Whiteboard", r.Name())

	_, ok = reg.GetByName("nonexistent")
	require.False(t, ok)
}
