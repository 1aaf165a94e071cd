// Package httpapi is the HTTP control plane (§6): board persistence,
// image upload, credentials, invite links, guest usernames, and viewport
// queries, all as plain net/http handlers with no router dependency.
//
// Grounded on the teacher's api/room_handlers.go (APIHandlers struct,
// json.NewDecoder(r.Body).Decode/http.Error idiom, manual path-prefix
// parsing "since we are not using a router like gorilla/mux") and
// api/user_handlers.go for the smaller single-purpose handlers. The teacher
// itself has no CORS handling; the permissive Access-Control-Allow-Origin:
// "*" plus OPTIONS-204 shape is grounded on a sibling project in the
// retrieval pack (see DESIGN.md).
package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"collabboard/server/internal/audit"
	"collabboard/server/internal/auth"
	"collabboard/server/internal/fanout"
	"collabboard/server/internal/hub"
	"collabboard/server/internal/imageupload"
	"collabboard/server/internal/invite"
	"collabboard/server/internal/persistence"
	"collabboard/server/internal/room"
	"collabboard/server/internal/spatial"
)

// Handlers bundles every collaborator the control plane talks to.
// Registry, Hub, Store and Images must be set. Callers leave
// Auth/Invites/Spatial nil when those ambient services aren't configured,
// and the relevant routes respond 503.
type Handlers struct {
	Registry *room.Registry
	Hub      *hub.Hub
	Store    *persistence.Store
	Images   *imageupload.Port
	Auth     *auth.Store
	Invites  *invite.Service
	Spatial  *spatial.Index
	Audit    audit.Log
}

// Mux builds the full route table.
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/guest-username", h.handleGuestUsername)
	mux.HandleFunc("/api/rooms", h.handleRoomsList)
	mux.HandleFunc("/api/viewport", h.handleViewportQuery)

	mux.HandleFunc("/api/boards/save", h.handleBoardsSave)
	mux.HandleFunc("/api/boards/list", h.handleBoardsList)
	mux.HandleFunc("/api/boards/load/", h.handleBoardsLoad)
	mux.HandleFunc("/api/boards/delete/", h.handleBoardsDelete)
	mux.HandleFunc("/api/boards/export", h.handleBoardsExport)
	mux.HandleFunc("/api/boards/import", h.handleBoardsImport)
	mux.HandleFunc("/api/boards/generate-timelapse", h.handleGenerateTimelapse)
	mux.HandleFunc("/api/boards/timelapse-status/", h.handleTimelapseStatus)
	mux.HandleFunc("/api/boards/timelapse-video/", h.handleTimelapseVideo)
	mux.HandleFunc("/api/boards/uploadImage", h.handleImageUpload)

	mux.HandleFunc("/api/invites", h.handleCreateInvite)
	mux.HandleFunc("/api/invites/", h.handleRedeemInvite)

	mux.HandleFunc("/api/auth/register", h.handleAuthRegister)
	mux.HandleFunc("/api/auth/login", h.handleAuthLogin)
	mux.HandleFunc("/api/auth/check", h.handleAuthCheck)

	return mux
}

func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleGuestUsername hands out a random display name for a client that
// hasn't picked a username yet, per the teacher's services/user_service.go
// GenerateDisplayName (here using its crypto/rand approach rather than the
// root main.go generateUsername's unseeded math/rand variant).
func (h *Handlers) handleGuestUsername(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"username": randomDisplayName()})
	})(w, r)
}

var guestAdjectives = []string{"Creative", "Artistic", "Swift", "Bright", "Clever", "Bold", "Calm", "Quick"}
var guestNouns = []string{"Artist", "Designer", "Sketcher", "Painter", "Penguin", "Dragon", "Fox", "Hawk"}

func randomDisplayName() string {
	adj := guestAdjectives[randIndex(len(guestAdjectives))]
	noun := guestNouns[randIndex(len(guestNouns))]
	num := randIndex(1000)
	return fmt.Sprintf("%s%s%d", adj, noun, num)
}

func randIndex(n int) int {
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(i.Int64())
}

// handleRoomsList returns the rooms visible to the optional ?username=
// query parameter under the §4.5 filtering rule; without it, only public
// rooms are listed, as for getRooms.
func (h *Handlers) handleRoomsList(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		rooms := h.Registry.ListVisibleTo(r.URL.Query().Get("username"))
		out := make([]map[string]any, 0, len(rooms))
		for _, rm := range rooms {
			out = append(out, map[string]any{
				"id": rm.ID(), "name": rm.Name(), "isPublic": rm.IsPublic(),
				"participantCount": rm.ParticipantCount(), "hasPassword": rm.HasPassword(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
	})(w, r)
}

// handleViewportQuery implements the viewport supplement, grounded on the
// teacher's root_handlers.go handleViewportQuery (param names, error
// messages, and the x1/y1/x2/y2 parsing kept verbatim).
func (h *Handlers) handleViewportQuery(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if h.Spatial == nil {
			http.Error(w, "spatial index not configured", http.StatusServiceUnavailable)
			return
		}
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			http.Error(w, "Room ID required", http.StatusBadRequest)
			return
		}
		x1Str, y1Str := r.URL.Query().Get("x1"), r.URL.Query().Get("y1")
		x2Str, y2Str := r.URL.Query().Get("x2"), r.URL.Query().Get("y2")
		if x1Str == "" || y1Str == "" || x2Str == "" || y2Str == "" {
			http.Error(w, "Viewport bounds (x1,y1,x2,y2) required", http.StatusBadRequest)
			return
		}
		x1, err1 := strconv.ParseFloat(x1Str, 64)
		y1, err2 := strconv.ParseFloat(y1Str, 64)
		x2, err3 := strconv.ParseFloat(x2Str, 64)
		y2, err4 := strconv.ParseFloat(y2Str, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			http.Error(w, "Invalid viewport bounds", http.StatusBadRequest)
			return
		}
		ids, err := h.Spatial.QueryViewport(roomID, spatial.Box{X1: x1, Y1: y1, X2: x2, Y2: y2})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shapeIds": ids, "resultCount": len(ids)})
	})(w, r)
}

// --- boards ---

// saveBoardRequest matches §6's POST /api/boards/save body. When RoomID is
// set, Shapes is ignored and the board is snapshotted straight out of the
// live room's shape index instead, so a client can save without first
// re-serializing everything it already sent over the socket.
type saveBoardRequest struct {
	BoardName     string            `json:"boardName"`
	RoomID        string            `json:"roomId"`
	Username      string            `json:"username"`
	Shapes        []json.RawMessage `json:"shapes"`
	Strokes       []json.RawMessage `json:"strokes"`
	EraserStrokes []json.RawMessage `json:"eraserStrokes"`
}

func (h *Handlers) handleBoardsSave(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req saveBoardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		shapes := req.Shapes
		if req.RoomID != "" {
			rm, ok := h.Registry.Get(req.RoomID)
			if !ok {
				http.Error(w, room.ErrRoomNotFound.Error(), http.StatusNotFound)
				return
			}
			snap := rm.ShapeSnapshot()
			shapes = make([]json.RawMessage, 0, len(snap))
			for _, sd := range snap {
				shapes = append(shapes, sd.Raw)
			}
		}

		id, err := h.Store.Save(req.BoardName, shapes, req.Strokes, req.EraserStrokes, req.Username)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to save board"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "boardId": id, "message": "board saved"})
	})(w, r)
}

func (h *Handlers) handleBoardsList(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		boards, err := h.Store.List()
		if err != nil {
			http.Error(w, "failed to list boards", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "boards": boards})
	})(w, r)
}

func (h *Handlers) handleBoardsLoad(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		boardID := strings.TrimPrefix(r.URL.Path, "/api/boards/load/")
		if boardID == "" {
			http.Error(w, "board id required", http.StatusBadRequest)
			return
		}
		data, err := h.Store.Load(boardID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "board": data})
	})(w, r)
}

func (h *Handlers) handleBoardsDelete(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		boardID := strings.TrimPrefix(r.URL.Path, "/api/boards/delete/")
		if boardID == "" {
			http.Error(w, "board id required", http.StatusBadRequest)
			return
		}
		requestor := r.URL.Query().Get("requestor")
		err := h.Store.Delete(boardID, requestor)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "board deleted"})
		case err == persistence.ErrNotOwner:
			http.Error(w, err.Error(), http.StatusForbidden)
		case err == persistence.ErrNotFound:
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, "failed to delete board", http.StatusInternalServerError)
		}
	})(w, r)
}

func (h *Handlers) handleBoardsExport(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			BoardID string `json:"boardId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BoardID == "" {
			http.Error(w, "boardId is required", http.StatusBadRequest)
			return
		}
		raw, err := h.Store.Export(req.BoardID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": json.RawMessage(raw)})
	})(w, r)
}

// handleBoardsImport implements the mandatory §4.7 import operation (POST
// /api/boards/import), previously unreachable even though
// persistence.Store.Import already existed.
func (h *Handlers) handleBoardsImport(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			BoardName string          `json:"boardName"`
			Data      json.RawMessage `json:"data"`
			Username  string          `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Data) == 0 {
			http.Error(w, "data is required", http.StatusBadRequest)
			return
		}
		id, err := h.Store.Import(req.BoardName, req.Data, req.Username)
		if err != nil {
			http.Error(w, "failed to import board", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "boardId": id})
	})(w, r)
}

func (h *Handlers) handleGenerateTimelapse(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			BoardID  string `json:"boardId"`
			Duration int    `json:"duration"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BoardID == "" {
			http.Error(w, "boardId is required", http.StatusBadRequest)
			return
		}
		if req.Duration <= 0 {
			req.Duration = 30
		}
		jobID, err := h.Store.GenerateTimelapse(req.BoardID, req.Duration)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": "queued"})
	})(w, r)
}

func (h *Handlers) handleTimelapseStatus(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/boards/timelapse-status/")
		st, err := h.Store.TimelapseStatus(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})(w, r)
}

func (h *Handlers) handleTimelapseVideo(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/api/boards/timelapse-video/")
		video, err := h.Store.TimelapseVideo(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", "attachment")
		w.Write(video)
	})(w, r)
}

// --- image upload ---

func (h *Handlers) handleImageUpload(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		roomName := r.URL.Query().Get("room")
		if roomName == "" {
			http.Error(w, "room is required", http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "invalid multipart form", http.StatusBadRequest)
			return
		}
		file, fh, err := r.FormFile("image")
		if err != nil {
			http.Error(w, "image file is required", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "failed to read image", http.StatusBadRequest)
			return
		}

		rm, result, err := h.Images.Handle(roomName, fh, data)
		if err != nil {
			if err == imageupload.ErrRoomNotFound {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to store image", http.StatusInternalServerError)
			return
		}

		if h.Spatial != nil {
			sd := rm.ShapeSnapshot()[result.ShapeID]
			h.Spatial.Upsert(rm.ID(), result.ShapeID, spatial.Box{X1: sd.X, Y1: sd.Y, X2: sd.X + sd.Width, Y2: sd.Y + sd.Height})
		}

		if h.Hub != nil {
			fanout.Execute([]fanout.Action{fanout.BroadcastToRoom{RoomID: rm.ID(), Payload: result.ShapeAddedJSON}}, h.Hub)
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true, "imageUrl": result.ImageURL, "filename": result.Filename, "shapeId": result.ShapeID,
		})
	})(w, r)
}

// --- invites ---

func (h *Handlers) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if h.Invites == nil {
			http.Error(w, "invites not configured", http.StatusServiceUnavailable)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			RoomID          string `json:"roomId"`
			ExpirationHours int    `json:"expirationHours"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.RoomID == "" {
			http.Error(w, "roomId is required", http.StatusBadRequest)
			return
		}
		if req.ExpirationHours <= 0 {
			req.ExpirationHours = 24
		}
		code, err := h.Invites.Create(r.Context(), req.RoomID, time.Duration(req.ExpirationHours)*time.Hour)
		if err != nil {
			log.Printf("httpapi: create invite failed: %v", err)
			http.Error(w, "failed to create invite link", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{
			"code": code, "inviteUrl": fmt.Sprintf("http://%s/invite/%s", r.Host, code),
		})
	})(w, r)
}

func (h *Handlers) handleRedeemInvite(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if h.Invites == nil {
			http.Error(w, "invites not configured", http.StatusServiceUnavailable)
			return
		}
		code := strings.TrimPrefix(r.URL.Path, "/api/invites/")
		if code == "" {
			http.Error(w, "invite code required", http.StatusBadRequest)
			return
		}
		link, err := h.Invites.Redeem(r.Context(), code)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"roomId": link.RoomID})
	})(w, r)
}

// --- auth ---

func (h *Handlers) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if h.Auth == nil {
			http.Error(w, "auth not configured", http.StatusServiceUnavailable)
			return
		}
		var req struct{ Username, Password string }
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.Auth.Register(req.Username, req.Password); err != nil {
			if err == auth.ErrUsernameTaken {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, "failed to register", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})(w, r)
}

func (h *Handlers) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if h.Auth == nil {
			http.Error(w, "auth not configured", http.StatusServiceUnavailable)
			return
		}
		var req struct{ Username, Password string }
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.Auth.Login(req.Username, req.Password); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})(w, r)
}

func (h *Handlers) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	withCORS(func(w http.ResponseWriter, r *http.Request) {
		if h.Auth == nil {
			http.Error(w, "auth not configured", http.StatusServiceUnavailable)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		ok, err := h.Auth.Exists(req.Username)
		if err != nil {
			http.Error(w, "failed to check username", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"exists": ok})
	})(w, r)
}
