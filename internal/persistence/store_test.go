package persistence

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	shapes := []json.RawMessage{json.RawMessage(`{"id":"s1"}`)}
	strokes := []json.RawMessage{json.RawMessage(`{"x1":0}`)}

	id, err := s.Save("Board 1", shapes, strokes, nil, "alice")
	require.NoError(t, err)

	loaded, err := s.Load(id)
	require.NoError(t, err)
	require.JSONEq(t, string(shapes[0]), string(loaded.Shapes[0]))
	require.JSONEq(t, string(strokes[0]), string(loaded.Strokes[0]))
	require.Equal(t, "alice", loaded.SavedBy)
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	shapes := []json.RawMessage{json.RawMessage(`{"id":"s1","x":5}`)}
	id, err := s.Save("Board", shapes, nil, nil, "alice")
	require.NoError(t, err)

	raw, err := s.Export(id)
	require.NoError(t, err)

	newID, err := s.Import("Board copy", raw, "bob")
	require.NoError(t, err)
	require.NotEqual(t, id, newID)

	loaded, err := s.Load(newID)
	require.NoError(t, err)
	require.JSONEq(t, string(shapes[0]), string(loaded.Shapes[0]))
}

func TestDeleteRequiresMatchingSavedBy(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Save("Board", nil, nil, nil, "alice")
	require.NoError(t, err)

	err = s.Delete(id, "mallory")
	require.ErrorIs(t, err, ErrNotOwner)

	err = s.Delete(id, "alice")
	require.NoError(t, err)

	boards, err := s.List()
	require.NoError(t, err)
	for _, b := range boards {
		require.NotEqual(t, id, b.BoardID)
	}
}

func TestDeleteNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete("board_nope", "alice")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateTimelapseRequiresExistingBoard(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GenerateTimelapse("board_nope", 30)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTimelapseStatusUnknownJob(t *testing.T) {
	s := newTestStore(t)
	_, err := s.TimelapseStatus("job_nope")
	require.ErrorIs(t, err, ErrNotFound)
}
