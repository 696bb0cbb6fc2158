package downloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"mediapull/pkg/logger"
)

var cleanupLog = logger.Get("Cleanup")

// Scope is the set of temporary artifacts created while serving one request.
// All of them live under a directory unique to the request, and are removed
// by a single Release no matter which exit path the request takes.
type Scope struct {
	dir string

	mu       sync.Mutex
	paths    []string
	released bool
	once     sync.Once
}

// NewScope creates a fresh request directory beneath root.
func NewScope(root string) (*Scope, error) {
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, newError(KindIO, "scope", "failed to prepare download directory", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}

	return &Scope{dir: abs}, nil
}

// Dir is the request-private directory all tool output is written to.
func (s *Scope) Dir() string {
	return s.dir
}

// Add registers paths for deletion. Duplicates are ignored; paths added
// after Release are removed immediately.
func (s *Scope) Add(paths ...string) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		for _, p := range paths {
			removeArtifact(p)
		}
		return
	}

	for _, p := range paths {
		if p == "" || s.contains(p) {
			continue
		}
		s.paths = append(s.paths, p)
	}
	s.mu.Unlock()
}

// Paths returns the artifacts still awaiting deletion, in registration order.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Discard deletes the given registered paths now and forgets them, so a
// later Release does not touch them again.
func (s *Scope) Discard(paths ...string) {
	s.mu.Lock()
	var doomed []string
	for _, p := range paths {
		for i, existing := range s.paths {
			if existing == p {
				s.paths = append(s.paths[:i], s.paths[i+1:]...)
				doomed = append(doomed, p)
				break
			}
		}
	}
	s.mu.Unlock()

	for _, p := range doomed {
		removeArtifact(p)
	}
}

// Release deletes every registered artifact and then the request directory.
// Only the first call does anything; failures are logged, never returned.
func (s *Scope) Release() {
	s.once.Do(func() {
		s.mu.Lock()
		paths := s.paths
		s.paths = nil
		s.released = true
		s.mu.Unlock()

		for _, p := range paths {
			removeArtifact(p)
		}

		// Sweeps .part/.ytdl leftovers the tool never reported.
		if err := os.RemoveAll(s.dir); err != nil {
			cleanupLog.Emit(logger.WARNING, "Failed to remove download directory %s: %v\n", s.dir, err)
			return
		}
		cleanupLog.Emit(logger.REMOVE, "Released %d artifact(s) in %s\n", len(paths), s.dir)
	})
}

func (s *Scope) contains(path string) bool {
	for _, p := range s.paths {
		if p == path {
			return true
		}
	}
	return false
}

func removeArtifact(path string) {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	cleanupLog.Emit(logger.WARNING, "%v\n", fmt.Errorf("failed to clean up temp file %s: %w", path, err))
}
