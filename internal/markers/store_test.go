package markers

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	has, err := s.Has(PreReleaseAcknowledged)
	require.NoError(t, err)
	assert.False(t, has, "A fresh store should not have the marker.")

	require.NoError(t, s.Set(PreReleaseAcknowledged))
	require.NoError(t, s.Set(PreReleaseAcknowledged), "Setting twice should be fine.")

	has, err = s.Has(PreReleaseAcknowledged)
	require.NoError(t, err)
	assert.True(t, has, "Marker should be present after Set.")

	has, err = s.Has(FirstRunCompleted)
	require.NoError(t, err)
	assert.False(t, has, "Markers should be independent.")

	require.NoError(t, s.Clear(PreReleaseAcknowledged))
	require.NoError(t, s.Clear(PreReleaseAcknowledged), "Clearing a missing marker should be fine.")
	has, err = s.Has(PreReleaseAcknowledged)
	require.NoError(t, err)
	assert.False(t, has, "Marker should be gone after Clear.")

	_, err = s.Has("../escape")
	assert.True(t, errors.Is(err, ErrInvalidName), "Names with separators should be rejected.")
	assert.True(t, errors.Is(s.Set(""), ErrInvalidName), "Empty names should be rejected.")
}

func TestFileStore_RoundTrip(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "markers"), nil)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestKeyringStore_RoundTrip(t *testing.T) {
	keyring.MockInit()
	s := NewKeyringStore(nil)
	require.True(t, s.IsAvailable())
	exerciseStore(t, s)
}

func TestNew_FallsBackToFiles_WhenKeyringUnavailable(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service"))
	t.Cleanup(keyring.MockInit)

	s, err := New(BackendKeyring, t.TempDir(), nil)
	require.NoError(t, err)
	_, ok := s.(*FileStore)
	assert.True(t, ok, "Store should fall back to files.")
}

func TestNew_SelectsBackend(t *testing.T) {
	keyring.MockInit()

	s, err := New(BackendKeyring, t.TempDir(), nil)
	require.NoError(t, err)
	_, ok := s.(*KeyringStore)
	assert.True(t, ok, "Keyring should be used when available.")

	s, err = New("", t.TempDir(), nil)
	require.NoError(t, err)
	_, ok = s.(*FileStore)
	assert.True(t, ok, "Files are the default backend.")

	_, err = New("carrier-pigeon", t.TempDir(), nil)
	assert.Error(t, err)
}
