// Package artifact handles the hand-off of rendered images produced by
// sandboxed runs: collision-resistant per-invocation file names, a transport
// size ceiling, and guaranteed cleanup of transient files.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MaxBytes is the transport size ceiling. An artifact above it is refused
// as a normal outcome, not an execution error.
const MaxBytes = 4 << 20 // 4 MiB

// ErrTooLarge reports an artifact over the transport ceiling.
var ErrTooLarge = errors.New("artifact exceeds the 4 MiB transport ceiling")

// Store persists run artifacts under a single directory, one file per run.
type Store struct {
	dir string
}

// NewStore creates the artifact directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes a run's image under its run ID. Data over the transport
// ceiling is refused with ErrTooLarge and nothing is written.
func (s *Store) Save(runID string, data []byte) (string, error) {
	if len(data) > MaxBytes {
		return "", ErrTooLarge
	}
	path := s.Path(runID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}
	return path, nil
}

// Path returns the file path an artifact for runID would occupy.
func (s *Store) Path(runID string) string {
	return filepath.Join(s.dir, runID+".png")
}

// Open returns a handle to a stored artifact.
func (s *Store) Open(runID string) (*os.File, error) {
	return os.Open(s.Path(runID))
}

// Remove deletes a stored artifact; missing files are not an error.
func (s *Store) Remove(runID string) error {
	err := os.Remove(s.Path(runID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WithTempFile writes data to a uuid-named temporary file, hands the path
// to consume, and removes the file afterwards even if consume fails midway.
// Data over the transport ceiling is refused with ErrTooLarge before
// anything touches disk.
func WithTempFile(data []byte, consume func(path string) error) error {
	if len(data) > MaxBytes {
		return ErrTooLarge
	}

	path := filepath.Join(os.TempDir(), "crucible-"+uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing temp artifact: %w", err)
	}
	defer os.Remove(path)

	return consume(path)
}
