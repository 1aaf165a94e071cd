package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// TimelapseStatus mirrors the §6 timelapse-status response shape.
type TimelapseStatus struct {
	Status   string `json:"status"` // queued | rendering | done | failed
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
}

type timelapseJobs struct {
	mu   sync.Mutex
	jobs map[string]*TimelapseStatus
}

func newTimelapseJobs() *timelapseJobs {
	return &timelapseJobs{jobs: make(map[string]*TimelapseStatus)}
}

// GenerateTimelapse enqueues an async render job (§4.7). The actual
// renderer is an external collaborator (§1 Non-goals); this port only
// tracks job state and serves the resulting bytes once they exist under
// timelapses/<jobId>.mp4.
func (s *Store) GenerateTimelapse(boardID string, seconds int) (string, error) {
	if _, err := s.Load(boardID); err != nil {
		return "", err
	}
	jobID := "job_" + uuid.NewString()
	s.jobs.mu.Lock()
	s.jobs.jobs[jobID] = &TimelapseStatus{Status: "queued", Progress: 0}
	s.jobs.mu.Unlock()
	return jobID, nil
}

// TimelapseStatus reports job progress. Status transitions to "done" once
// the renderer (external) has dropped a file at the expected path.
func (s *Store) TimelapseStatus(jobID string) (TimelapseStatus, error) {
	s.jobs.mu.Lock()
	st, ok := s.jobs.jobs[jobID]
	s.jobs.mu.Unlock()
	if !ok {
		return TimelapseStatus{}, ErrNotFound
	}

	if st.Status != "done" {
		if _, err := os.Stat(s.timelapsePath(jobID)); err == nil {
			s.jobs.mu.Lock()
			st.Status = "done"
			st.Progress = 100
			st.VideoURL = fmt.Sprintf("/api/boards/timelapse-video/%s", jobID)
			s.jobs.mu.Unlock()
		}
	}
	return *st, nil
}

// TimelapseVideo returns the rendered bytes, once available.
func (s *Store) TimelapseVideo(jobID string) ([]byte, error) {
	path := s.timelapsePath(jobID)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *Store) timelapsePath(jobID string) string {
	return filepath.Join(s.baseDir, "timelapses", jobID+".mp4")
}
