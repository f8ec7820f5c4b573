package session

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

type tarEntry struct {
	name string
	body string
	dir  bool
}

func buildTar(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr = &tar.Header{Name: e.name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.dir {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func compress(t *testing.T, suffix string, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch suffix {
	case ".tar.gz":
		w = gzip.NewWriter(&buf)
	case ".tar.zst":
		w, err = zstd.NewWriter(&buf)
	case ".tar.xz":
		w, err = xz.NewWriter(&buf)
	}
	require.NoError(t, err)
	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func mixArchive() []tarEntry {
	return []tarEntry{
		{name: "Mix/", dir: true},
		{name: "Mix/Mix.ardour", body: `<Session version="7003" sample-rate="96000"><Config/></Session>`},
		{name: "Mix/interchange/Mix/audiofiles/kick.wav", body: "RIFF"},
	}
}

func TestInflateArchive_AllFormats(t *testing.T) {
	for _, suffix := range ArchiveSuffixes {
		t.Run(suffix, func(t *testing.T) {
			src := t.TempDir()
			dest := t.TempDir()
			archive := filepath.Join(src, "Mix"+suffix)
			require.NoError(t, os.WriteFile(archive, compress(t, suffix, buildTar(t, mixArchive())), 0o600))

			dir, name, err := InflateArchive(context.Background(), archive, dest)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dest, "Mix"), dir)
			assert.Equal(t, "Mix", name)
			assert.FileExists(t, filepath.Join(dir, "interchange", "Mix", "audiofiles", "kick.wav"))

			leftovers, err := filepath.Glob(filepath.Join(dest, ".inflate-*"))
			require.NoError(t, err)
			assert.Empty(t, leftovers, "Staging directory should be removed.")
		})
	}
}

func TestInflateArchive_RefusesEscapingEntries(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	archive := filepath.Join(src, "evil.tar.gz")
	raw := buildTar(t, []tarEntry{{name: "../evil.ardour", body: "x"}})
	require.NoError(t, os.WriteFile(archive, compress(t, ".tar.gz", raw), 0o600))

	_, _, err := InflateArchive(context.Background(), archive, dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsafeArchive))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil.ardour"))
}

func TestInflateArchive_RequiresStatefile(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	archive := filepath.Join(src, "Mix.tar.gz")
	raw := buildTar(t, []tarEntry{{name: "Mix/readme.txt", body: "no session here"}})
	require.NoError(t, os.WriteFile(archive, compress(t, ".tar.gz", raw), 0o600))

	_, _, err := InflateArchive(context.Background(), archive, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mix/Mix.ardour")
	assert.NoDirExists(t, filepath.Join(dest, "Mix"))
}

func TestInflateArchive_RefusesExistingFolder(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dest, "Mix"), 0o755))
	archive := filepath.Join(src, "Mix.tar.gz")
	require.NoError(t, os.WriteFile(archive, compress(t, ".tar.gz", buildTar(t, mixArchive())), 0o600))

	_, _, err := InflateArchive(context.Background(), archive, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInflateArchive_RefusesSeveralTopLevelEntries(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	archive := filepath.Join(src, "Mix.tar.gz")
	raw := buildTar(t, append(mixArchive(), tarEntry{name: "Other/file", body: "x"}))
	require.NoError(t, os.WriteFile(archive, compress(t, ".tar.gz", raw), 0o600))

	_, _, err := InflateArchive(context.Background(), archive, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one top-level entry")
}

func TestIsArchiveName(t *testing.T) {
	assert.True(t, IsArchiveName("Mix.tar.xz"))
	assert.True(t, IsArchiveName("/tmp/Mix.TAR.ZST"))
	assert.False(t, IsArchiveName("Mix.ardour"))
	assert.False(t, IsArchiveName("Mix.tar"))
}
