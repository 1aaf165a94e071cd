package spatial

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpsertAndQueryViewport(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Upsert("room-1", "shape-a", Box{0, 0, 10, 10}))
	require.NoError(t, idx.Upsert("room-1", "shape-b", Box{100, 100, 110, 110}))
	require.NoError(t, idx.Upsert("room-2", "shape-c", Box{0, 0, 10, 10}))

	ids, err := idx.QueryViewport("room-1", Box{-5, -5, 20, 20})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"shape-a"}, ids)
}

func TestUpsertReplacesPriorBox(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Upsert("room-1", "shape-a", Box{0, 0, 10, 10}))
	require.NoError(t, idx.Upsert("room-1", "shape-a", Box{200, 200, 210, 210}))

	ids, _ := idx.QueryViewport("room-1", Box{-5, -5, 20, 20})
	require.Empty(t, ids)

	ids, _ = idx.QueryViewport("room-1", Box{190, 190, 220, 220})
	require.Equal(t, []string{"shape-a"}, ids)
}

func TestRemove(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Upsert("room-1", "shape-a", Box{0, 0, 10, 10}))
	idx.Remove("room-1", "shape-a")

	ids, _ := idx.QueryViewport("room-1", Box{-5, -5, 20, 20})
	require.Empty(t, ids)
}

func TestClearRoomOnlyAffectsThatRoom(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Upsert("room-1", "shape-a", Box{0, 0, 10, 10}))
	require.NoError(t, idx.Upsert("room-2", "shape-b", Box{0, 0, 10, 10}))

	idx.ClearRoom("room-1")

	ids, _ := idx.QueryViewport("room-1", Box{-5, -5, 20, 20})
	require.Empty(t, ids)

	ids, _ = idx.QueryViewport("room-2", Box{-5, -5, 20, 20})
	require.Equal(t, []string{"shape-b"}, ids)
}

func TestInvalidBoundsRejected(t *testing.T) {
	idx := New()
	err := idx.Upsert("room-1", "shape-a", Box{10, 10, 0, 0})
	require.ErrorIs(t, err, ErrInvalidBounds)

	_, err = idx.QueryViewport("room-1", Box{10, 10, 0, 0})
	require.ErrorIs(t, err, ErrInvalidBounds)
}
