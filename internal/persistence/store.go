// Package persistence implements the Persistence Port (§4.7): board
// snapshot save/load/list/delete/export/import, plus the timelapse job
// endpoints (whose actual rendering is an external collaborator per §1).
// Every method does its file I/O synchronously on the calling goroutine,
// serialized by the Store's own mutex; there is no goroutine or completion
// channel. The Store takes no room or registry lock.
//
// Grounded on the teacher's services/canvas_service.go (method shapes,
// error-wrapping style), generalized from its Postgres+Redis-backed canvas
// cache into the file-based layout §6 specifies.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("board not found")
	ErrNotOwner = errors.New("requestor does not own this board")
)

// BoardMetadata is the list-view projection of a saved board (§4.7).
type BoardMetadata struct {
	BoardID    string    `json:"boardId"`
	Name       string    `json:"name"`
	SavedBy    string    `json:"savedBy"`
	SavedAt    time.Time `json:"savedAt"`
	ShapeCount int       `json:"shapeCount"`
}

// BoardData is the full persisted snapshot of a room's drawable state.
type BoardData struct {
	BoardMetadata
	Shapes        []json.RawMessage `json:"shapes"`
	Strokes       []json.RawMessage `json:"strokes"`
	EraserStrokes []json.RawMessage `json:"eraserStrokes"`
}

// Store is a file-backed Persistence Port implementation, one JSON file per
// board plus a registry.json index (§6 layout).
type Store struct {
	mu      sync.Mutex
	baseDir string
	jobs    *timelapseJobs
}

// NewStore roots the store at baseDir, creating saved_boards/, images/, and
// timelapses/ subdirectories if absent.
func NewStore(baseDir string) (*Store, error) {
	for _, sub := range []string{"", "images", "timelapses", "archive"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{baseDir: baseDir, jobs: newTimelapseJobs()}, nil
}

func (s *Store) boardPath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

func (s *Store) registryPath() string {
	return filepath.Join(s.baseDir, "registry.json")
}

// Save writes a new board snapshot and registers its metadata. Idempotent
// in the sense that re-saving under a new name always produces a fresh
// boardId rather than colliding with an existing one.
func (s *Store) Save(name string, shapes, strokes, eraserStrokes []json.RawMessage, savedBy string) (string, error) {
	boardID := "board_" + uuid.NewString()
	data := BoardData{
		BoardMetadata: BoardMetadata{
			BoardID: boardID, Name: name, SavedBy: savedBy, SavedAt: time.Now(), ShapeCount: len(shapes),
		},
		Shapes: shapes, Strokes: strokes, EraserStrokes: eraserStrokes,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(s.boardPath(boardID), data); err != nil {
		return "", err
	}
	reg, err := s.loadRegistryLocked()
	if err != nil {
		return "", err
	}
	reg = append(reg, data.BoardMetadata)
	if err := writeJSON(s.registryPath(), reg); err != nil {
		return "", err
	}
	return boardID, nil
}

// List returns board metadata for every saved board.
func (s *Store) List() ([]BoardMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRegistryLocked()
}

// Load reads back a full board snapshot.
func (s *Store) Load(boardID string) (BoardData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data BoardData
	if err := readJSON(s.boardPath(boardID), &data); err != nil {
		if os.IsNotExist(err) {
			return BoardData{}, ErrNotFound
		}
		return BoardData{}, err
	}
	return data, nil
}

// Delete removes a board if requestor is its saver. Per §8 property 7 / §9
// open question 1, this implements the stricter savedBy==requestor variant.
// Idempotent on file existence: if the board's file is already gone but its
// registry entry remains, the entry is removed and Delete returns nil. A
// boardID with no registry entry returns ErrNotFound.
func (s *Store) Delete(boardID, requestor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.loadRegistryLocked()
	if err != nil {
		return err
	}
	idx := -1
	for i, m := range reg {
		if m.BoardID == boardID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrNotFound
	}
	if reg[idx].SavedBy != requestor {
		return ErrNotOwner
	}

	reg = append(reg[:idx], reg[idx+1:]...)
	if err := writeJSON(s.registryPath(), reg); err != nil {
		return err
	}
	if err := os.Remove(s.boardPath(boardID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Export returns the raw JSON of a board snapshot.
func (s *Store) Export(boardID string) (json.RawMessage, error) {
	data, err := s.Load(boardID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(data)
}

// Import creates a new board from previously-exported JSON.
func (s *Store) Import(name string, raw json.RawMessage, savedBy string) (string, error) {
	var data BoardData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("invalid board export: %w", err)
	}
	return s.Save(name, data.Shapes, data.Strokes, data.EraserStrokes, savedBy)
}

func (s *Store) loadRegistryLocked() ([]BoardMetadata, error) {
	var reg []BoardMetadata
	err := readJSON(s.registryPath(), &reg)
	if os.IsNotExist(err) {
		return []BoardMetadata{}, nil
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
