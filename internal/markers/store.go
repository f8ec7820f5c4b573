// Package markers persists the small boolean facts the startup sequence
// consults, such as "pre-release notice acknowledged".
package markers

// file: internal/markers/store.go

import (
	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/logging"
)

// Well-known marker names.
const (
	PreReleaseAcknowledged = "pre-release-acknowledged"
	FirstRunCompleted      = "first-run-completed"
)

// Backend names accepted by New.
const (
	BackendFile    = "file"
	BackendKeyring = "keyring"
)

// Store is a persisted set of named boolean markers.
type Store interface {
	// Has reports whether the marker has been set.
	Has(name string) (bool, error)
	// Set records the marker. Setting an existing marker is not an error.
	Set(name string) error
	// Clear removes the marker. Clearing a missing marker is not an error.
	Clear(name string) error
}

// ErrInvalidName is returned for marker names that cannot be stored.
var ErrInvalidName = errors.New("invalid marker name")

// New creates the store for the configured backend. A keyring backend that is
// not usable on this machine falls back to marker files in dir.
func New(backend, dir string, logger logging.Logger) (Store, error) {
	logger = logging.OrNoop(logger)

	switch backend {
	case BackendKeyring:
		ks := NewKeyringStore(logger)
		if ks.IsAvailable() {
			logger.Info("Using OS keyring for startup markers.")
			return ks, nil
		}
		logger.Info("OS keyring not available, falling back to marker files.", "dir", dir)
		return NewFileStore(dir, logger)
	case BackendFile, "":
		return NewFileStore(dir, logger)
	default:
		return nil, errors.Newf("unknown marker backend %q", backend)
	}
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	for _, r := range name {
		if r == '/' || r == '\\' || r < 0x20 {
			return errors.Wrapf(ErrInvalidName, "%q", name)
		}
	}
	return nil
}
