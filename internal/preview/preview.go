// Package preview keeps the thumbnails shown next to a search query. Each
// thumbnail is a file in the cache dir addressed by an opaque handle and
// lives until it is released.
package preview

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	thumbnails "github.com/drummonds/go-thumbnails"
	"github.com/google/uuid"

	"github.com/drummonds/travellens-web/internal/backend"
	"github.com/drummonds/travellens-web/internal/metrics"
)

// Size is the longest edge of a preview, in pixels.
const Size = 600

var ErrUnknownHandle = errors.New("unknown preview handle")

// Handle names one preview. The zero value means "no preview".
type Handle string

// GenerateFunc renders src as a thumbnail at dst.
type GenerateFunc func(src, dst string, size int) error

func generateThumbnail(src, dst string, size int) error {
	return thumbnails.GenerateStyledAndSave(src, dst, uint(size), thumbnails.StyleUniform)
}

type Store struct {
	dir      string
	generate GenerateFunc

	mu      sync.Mutex
	handles map[Handle]string // handle -> thumbnail path
}

// NewStore keeps previews under dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithGenerator(dir, generateThumbnail)
}

func NewStoreWithGenerator(dir string, gen GenerateFunc) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating preview dir: %w", err)
	}
	return &Store{dir: dir, generate: gen, handles: make(map[Handle]string)}, nil
}

// Create renders a preview of f and returns its handle.
func (s *Store) Create(f backend.File) (Handle, error) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	tmpFile, err := os.CreateTemp("", "travellens-preview-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(f.Data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	tmpFile.Close()

	h := Handle(uuid.NewString())
	outPath := filepath.Join(s.dir, string(h)+".png")
	if err := s.generate(tmpPath, outPath, Size); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("generating preview for %s: %w", f.Name, err)
	}

	s.mu.Lock()
	s.handles[h] = outPath
	s.mu.Unlock()
	metrics.Previews.Inc()
	return h, nil
}

// Path returns the file behind h.
func (s *Store) Path(h Handle) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.handles[h]
	if !ok {
		return "", ErrUnknownHandle
	}
	return p, nil
}

// Release deletes the preview behind h. Releasing the zero handle or one
// already released does nothing.
func (s *Store) Release(h Handle) error {
	if h == "" {
		return nil
	}
	s.mu.Lock()
	p, ok := s.handles[h]
	delete(s.handles, h)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	metrics.Previews.Dec()
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing preview: %w", err)
	}
	return nil
}

// Len is the number of previews not yet released.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
