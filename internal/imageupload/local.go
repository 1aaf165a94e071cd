package imageupload

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalBackend writes image bytes under <dir>/images and serves them back
// through the Network Surface's /images/<name> route.
type LocalBackend struct {
	Dir     string // base board-store directory; images live in Dir/images
	BaseURL string // e.g. "http://localhost:8080"
}

func NewLocalBackend(dir, baseURL string) (*LocalBackend, error) {
	imagesDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, err
	}
	return &LocalBackend{Dir: dir, BaseURL: baseURL}, nil
}

func (b *LocalBackend) Store(filename string, data []byte) (string, error) {
	path := filepath.Join(b.Dir, "images", filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/images/%s", b.BaseURL, filename), nil
}
