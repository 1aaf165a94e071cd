package imageupload

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"

	"collabboard/server/internal/room"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHandleUploadsAndBroadcastsShapeAdded(t *testing.T) {
	reg := room.NewRegistry(0, "")
	reg.Create("R", "alice", true, "", nil)

	backend, err := NewLocalBackend(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)
	port := &Port{Registry: reg, Backend: backend}

	data := pngBytes(t, 50, 40)
	fh := &multipart.FileHeader{Filename: "drawing.png"}

	r, result, err := port.Handle("R", fh, data)
	require.NoError(t, err)
	require.Contains(t, result.ImageURL, ".png")
	require.Contains(t, string(result.ShapeAddedJSON), `"shapeType":"IMAGE"`)

	shapes := r.ShapeSnapshot()
	require.Contains(t, shapes, result.ShapeID)
	require.Equal(t, float64(50), shapes[result.ShapeID].Width)
	require.Equal(t, float64(40), shapes[result.ShapeID].Height)
}

func TestHandleRoomNotFound(t *testing.T) {
	reg := room.NewRegistry(0, "")
	backend, err := NewLocalBackend(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)
	port := &Port{Registry: reg, Backend: backend}

	_, _, err = port.Handle("nope", &multipart.FileHeader{Filename: "a.png"}, []byte("not-an-image"))
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestHandleDefaultsDimensionsOnDecodeFailure(t *testing.T) {
	reg := room.NewRegistry(0, "")
	reg.Create("R", "alice", true, "", nil)
	backend, err := NewLocalBackend(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)
	port := &Port{Registry: reg, Backend: backend}

	_, result, err := port.Handle("R", &multipart.FileHeader{Filename: "a.png"}, []byte("garbage"))
	require.NoError(t, err)

	r, _ := reg.GetByName("R")
	shapes := r.ShapeSnapshot()
	require.Equal(t, float64(defaultWidth), shapes[result.ShapeID].Width)
	require.Equal(t, float64(defaultHeight), shapes[result.ShapeID].Height)
}
