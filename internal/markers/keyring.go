package markers

// file: internal/markers/keyring.go

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/logging"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "preflight"
	probeAccount   = "marker-probe"
)

// KeyringStore keeps markers as OS keyring entries, one account per marker.
type KeyringStore struct {
	logger logging.Logger
}

var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a keyring-backed store.
func NewKeyringStore(logger logging.Logger) *KeyringStore {
	return &KeyringStore{
		logger: logging.OrNoop(logger).WithField("component", "keyring_marker_store"),
	}
}

// IsAvailable checks if the OS keyring service is accessible.
func (s *KeyringStore) IsAvailable() bool {
	_, err := keyring.Get(keyringService, probeAccount)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return true
	}
	s.logger.Warn("Keyring service is inaccessible.", "error", err)
	return false
}

// Has reports whether an entry exists for the marker.
func (s *KeyringStore) Has(name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	_, err := keyring.Get(keyringService, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to read marker %q from keyring", name)
	}
	return true, nil
}

// Set stores an entry for the marker.
func (s *KeyringStore) Set(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := keyring.Set(keyringService, name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return errors.Wrapf(err, "failed to save marker %q to keyring", name)
	}
	s.logger.Debug("Marker set.", "name", name)
	return nil
}

// Clear deletes the marker entry.
func (s *KeyringStore) Clear(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := keyring.Delete(keyringService, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrapf(err, "failed to delete marker %q from keyring", name)
	}
	return nil
}
