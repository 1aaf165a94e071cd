package httpapi

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"collabboard/server/internal/hub"
	"collabboard/server/internal/imageupload"
	"collabboard/server/internal/persistence"
	"collabboard/server/internal/room"
	"collabboard/server/internal/spatial"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	reg := room.NewRegistry(0, "")
	store, err := persistence.NewStore(t.TempDir())
	require.NoError(t, err)
	backend, err := imageupload.NewLocalBackend(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)
	idx := spatial.New()
	return &Handlers{
		Registry: reg,
		Hub:      hub.New(reg, idx),
		Store:    store,
		Images:   &imageupload.Port{Registry: reg, Backend: backend},
		Spatial:  idx,
	}
}

func TestGuestUsernameReturnsNonEmptyName(t *testing.T) {
	h := newTestHandlers(t)
	rr := httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/guest-username", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body["username"])
}

func TestOptionsRequestGetsNoContent(t *testing.T) {
	h := newTestHandlers(t)
	rr := httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/boards/list", nil))

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestSaveThenLoadBoard(t *testing.T) {
	h := newTestHandlers(t)
	mux := h.Mux()

	saveBody, _ := json.Marshal(saveBoardRequest{BoardName: "board1", Username: "alice"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/boards/save", bytes.NewReader(saveBody)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var saved map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &saved))
	require.Equal(t, true, saved["success"])
	boardID := saved["boardId"].(string)
	require.NotEmpty(t, boardID)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/boards/load/"+boardID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "board1")
}

func TestSaveByRoomIDSnapshotsLiveShapes(t *testing.T) {
	h := newTestHandlers(t)
	mux := h.Mux()

	r := h.Registry.Create("R", "alice", true, "", nil)
	r.UpsertShape("s1", room.ShapeData{ID: "s1"}, []byte(`{"type":"addShape","id":"s1"}`))

	saveBody, _ := json.Marshal(saveBoardRequest{BoardName: "board1", RoomID: r.ID(), Username: "alice"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/boards/save", bytes.NewReader(saveBody)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var saved map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &saved))
	boardID := saved["boardId"].(string)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/boards/load/"+boardID, nil))
	require.Contains(t, rr.Body.String(), `"id":"s1"`)
}

func TestDeleteBoardWrongRequestorForbidden(t *testing.T) {
	h := newTestHandlers(t)
	mux := h.Mux()

	saveBody, _ := json.Marshal(saveBoardRequest{BoardName: "board1", Username: "alice"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/boards/save", bytes.NewReader(saveBody)))
	var saved map[string]string
	json.Unmarshal(rr.Body.Bytes(), &saved)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/boards/delete/"+saved["boardId"]+"?requestor=mallory", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestExportThenImportBoard(t *testing.T) {
	h := newTestHandlers(t)
	mux := h.Mux()

	saveBody, _ := json.Marshal(saveBoardRequest{BoardName: "board1", Username: "alice"})
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/boards/save", bytes.NewReader(saveBody)))
	var saved map[string]any
	json.Unmarshal(rr.Body.Bytes(), &saved)
	boardID := saved["boardId"].(string)

	exportBody, _ := json.Marshal(map[string]string{"boardId": boardID})
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/boards/export", bytes.NewReader(exportBody)))
	require.Equal(t, http.StatusOK, rr.Code)

	var exported map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &exported))
	require.NotEmpty(t, exported["data"])

	importBody, _ := json.Marshal(map[string]any{
		"boardName": "board1-copy", "data": json.RawMessage(exported["data"]), "username": "alice",
	})
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/boards/import", bytes.NewReader(importBody)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var imported map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &imported))
	require.Equal(t, true, imported["success"])
	require.NotEmpty(t, imported["boardId"])
}

func pngMultipartBody(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img.Set(0, 0, color.White)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "a.png")
	require.NoError(t, err)
	require.NoError(t, png.Encode(part, img))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestImageUploadRoomNotFound(t *testing.T) {
	h := newTestHandlers(t)
	mux := h.Mux()

	body, contentType := pngMultipartBody(t)
	req := httptest.NewRequest(http.MethodPost, "/api/boards/uploadImage?room=nope", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestImageUploadBroadcastsToRoom(t *testing.T) {
	h := newTestHandlers(t)
	h.Registry.Create("R", "alice", true, "", nil)
	mux := h.Mux()

	body, contentType := pngMultipartBody(t)
	req := httptest.NewRequest(http.MethodPost, "/api/boards/uploadImage?room=R", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
	require.NotEmpty(t, resp["imageUrl"])
	require.NotEmpty(t, resp["filename"])
	require.NotEmpty(t, resp["shapeId"])
}

func TestAuthRoutesServiceUnavailableWhenUnconfigured(t *testing.T) {
	h := newTestHandlers(t)
	body, _ := json.Marshal(map[string]string{"username": "alice"})
	rr := httptest.NewRecorder()
	h.Mux().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/auth/check", bytes.NewReader(body)))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
