// Command server is the Network Surface (§4.9): it wires every
// component together and runs the single HTTP listener that serves both
// the WebSocket upgrade and the HTTP control plane.
//
// Grounded on the teacher's root main.go (Server struct wiring, route
// registration style, startup logging), generalized from hardcoded
// connection strings into internal/config-driven wiring, and from a
// single monolithic Server type into the Hub/Registry/Store/Port
// collaborators built out under internal/.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"collabboard/server/internal/audit"
	"collabboard/server/internal/auth"
	"collabboard/server/internal/config"
	"collabboard/server/internal/hub"
	"collabboard/server/internal/httpapi"
	"collabboard/server/internal/imageupload"
	"collabboard/server/internal/invite"
	"collabboard/server/internal/persistence"
	"collabboard/server/internal/room"
	"collabboard/server/internal/session"
	"collabboard/server/internal/spatial"
	"collabboard/server/internal/wsframe"
)

const gcInterval = 5 * time.Minute

func main() {
	cfg := config.Load()

	archiveDir := filepath.Join(cfg.BoardStoreDir, "archive")
	registry := room.NewRegistry(cfg.MaxReplayLen, archiveDir)
	registry.Create("lobby", "system", true, "", nil)

	spatialIndex := spatial.New()

	h := hub.New(registry, spatialIndex)
	h.StartGCLoop(gcInterval)

	store, err := persistence.NewStore(cfg.BoardStoreDir)
	if err != nil {
		log.Fatalf("❌ Failed to initialize board store: %v", err)
	}

	imageBackend, err := buildImageBackend(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize image backend: %v", err)
	}
	imagePort := &imageupload.Port{Registry: registry, Backend: imageBackend}

	authStore, err := auth.Open(cfg.SQLitePath)
	if err != nil {
		log.Printf("⚠️ Credential store unavailable, auth routes will return 503: %v", err)
		authStore = nil
	} else {
		log.Println("✅ Credential store ready")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	var inviteSvc *invite.Service
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Printf("⚠️ Redis unavailable, invite links will return 503: %v", err)
	} else {
		log.Println("✅ Connected to Redis")
		inviteSvc = invite.New(redisClient)
	}

	auditLog := buildAuditLog(cfg)

	apiHandlers := &httpapi.Handlers{
		Registry: registry,
		Hub:      h,
		Store:    store,
		Images:   imagePort,
		Auth:     authStore,
		Invites:  inviteSvc,
		Spatial:  spatialIndex,
		Audit:    auditLog,
	}

	mux := apiHandlers.Mux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(w, r, h, auditLog)
	})
	mux.HandleFunc("/images/", func(w http.ResponseWriter, r *http.Request) {
		serveLocalImage(w, r, cfg.BoardStoreDir)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	log.Printf("🚀 Server starting on :%s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, mux))
}

func buildImageBackend(cfg config.Config) (imageupload.Backend, error) {
	if cfg.ImageBackend == "s3" {
		if cfg.S3Bucket == "" {
			log.Println("⚠️ IMAGE_BACKEND=s3 but S3_BUCKET is unset, falling back to local storage")
		} else {
			return imageupload.NewS3Backend(cfg.AWSRegion, cfg.S3Bucket)
		}
	}
	return imageupload.NewLocalBackend(cfg.BoardStoreDir, cfg.PublicURL)
}

func buildAuditLog(cfg config.Config) audit.Log {
	if cfg.DatabaseURL == "" {
		return audit.NullLog{}
	}
	pg, err := audit.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Printf("⚠️ Session audit log unavailable: %v", err)
		return audit.NullLog{}
	}
	log.Println("✅ Connected to PostgreSQL audit log")
	pg.StartPruneLoop(time.Hour, 30*24*time.Hour)
	return pg
}

// handleWebSocket upgrades the connection and wires its pumps to the Hub,
// matching the teacher's handleWebSocket but delegating the per-message
// work to hub.Dispatch instead of inline switch logic.
func handleWebSocket(w http.ResponseWriter, r *http.Request, h *hub.Hub, al audit.Log) {
	raw, err := wsframe.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}
	conn := session.New(wsframe.NewConn(raw))
	h.Register(conn)
	al.Record("connect", "", "")

	go conn.WritePump()
	conn.ReadPump(
		func(payload []byte) { h.Dispatch(conn, payload) },
		func() {
			al.Record("disconnect", conn.RoomID(), conn.Username())
			h.Unregister(conn)
		},
	)
}

// serveLocalImage serves files the LocalBackend wrote under
// <BoardStoreDir>/images, rejecting any path that tries to escape that
// directory.
func serveLocalImage(w http.ResponseWriter, r *http.Request, boardStoreDir string) {
	name := strings.TrimPrefix(r.URL.Path, "/images/")
	if strings.Contains(name, "..") {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if name == "" || strings.ContainsAny(name, "/\\") {
		http.Error(w, "invalid image name", http.StatusBadRequest)
		return
	}
	path := filepath.Join(boardStoreDir, "images", name)
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, path)
}
