package markers

// file: internal/markers/file.go

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/logging"
)

// FileStore keeps each marker as a file in a directory. The file holds the
// time the marker was set; only its existence matters.
type FileStore struct {
	dir    string
	logger logging.Logger
	mutex  sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, logger logging.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("marker directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create marker directory")
	}
	return &FileStore{
		dir:    dir,
		logger: logging.OrNoop(logger).WithField("component", "file_marker_store"),
	}, nil
}

// Has reports whether the marker file exists.
func (s *FileStore) Has(name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := os.Stat(s.path(name))
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Wrapf(err, "failed to check marker %q", name)
	}
}

// Set writes the marker file.
func (s *FileStore) Set(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(s.path(name), []byte(stamp), 0o600); err != nil {
		return errors.Wrapf(err, "failed to write marker %q", name)
	}
	s.logger.Debug("Marker set.", "name", name)
	return nil
}

// Clear removes the marker file.
func (s *FileStore) Clear(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove marker %q", name)
	}
	return nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, "."+name)
}
