package pluginscan

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var elfHeader = []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

// pluginTree lays out one plugin of each kind plus some noise.
func pluginTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "vst", "Reverb.so"), elfHeader)
	writeFile(t, filepath.Join(root, "vst", "Broken.so"), []byte("not a plugin"))
	writeFile(t, filepath.Join(root, "vst", "README.txt"), []byte("ignored"))
	writeFile(t, filepath.Join(root, "lv2", "eq.lv2", "manifest.ttl"),
		[]byte("<urn:eq> a lv2:Plugin ;\n    lv2:binary <eq.so> ;\n    rdfs:seeAlso <eq.ttl> .\n"))
	writeFile(t, filepath.Join(root, "lv2", "eq.lv2", "eq.so"), elfHeader)
	writeFile(t, filepath.Join(root, "vst3", "Comp.vst3", "Contents", "x86_64-linux", "Comp.so"), elfHeader)
	return root
}

func TestScanner_FullScanWritesCache(t *testing.T) {
	root := pluginTree(t)
	cache := filepath.Join(t.TempDir(), "plugin_cache.json")
	s := NewScanner([]string{
		filepath.Join(root, "vst"), filepath.Join(root, "lv2"),
		filepath.Join(root, "vst3"), filepath.Join(root, "missing"),
	}, cache, nil)

	sum, err := s.Scan(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 4, sum.New)
	assert.Equal(t, 1, sum.Invalid)
	assert.False(t, sum.FromCache)
	assert.FileExists(t, cache)

	byName := map[string]Entry{}
	for _, e := range s.Entries() {
		byName[e.Name] = e
	}
	assert.Equal(t, FormatVST2, byName["Reverb"].Format)
	assert.Equal(t, StatusOK, byName["Reverb"].Status)
	assert.Equal(t, "elf", byName["Reverb"].Arch)
	assert.Equal(t, StatusInvalid, byName["Broken"].Status)
	assert.Equal(t, FormatLV2, byName["eq"].Format)
	assert.Equal(t, filepath.Join(root, "lv2", "eq.lv2", "eq.so"), byName["eq"].Binary)
	assert.Equal(t, FormatVST3, byName["Comp"].Format)
	assert.Equal(t, StatusOK, byName["Comp"].Status)

	// A second full scan reuses everything from the cache.
	sum, err = s.Scan(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.New)
	assert.Equal(t, 0, sum.Changed)
	assert.Equal(t, 4, sum.Total)
}

func TestScanner_DetectsChangedAndRemoved(t *testing.T) {
	root := pluginTree(t)
	cache := filepath.Join(t.TempDir(), "plugin_cache.json")
	s := NewScanner([]string{filepath.Join(root, "vst")}, cache, nil)
	_, err := s.Scan(context.Background(), false)
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "vst", "Reverb.so"), later, later))
	require.NoError(t, os.Remove(filepath.Join(root, "vst", "Broken.so")))

	sum, err := s.Scan(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, 1, sum.Changed)
	assert.Equal(t, 1, sum.Removed)
	assert.Equal(t, 0, sum.Invalid)
}

func TestScanner_CacheOnly(t *testing.T) {
	root := pluginTree(t)
	cache := filepath.Join(t.TempDir(), "plugin_cache.json")

	// No cache yet: cache-only finds nothing and does not walk.
	s := NewScanner([]string{filepath.Join(root, "vst")}, cache, nil)
	sum, err := s.Scan(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, sum.FromCache)
	assert.Equal(t, 0, sum.Total)
	assert.NoFileExists(t, cache)

	_, err = s.Scan(context.Background(), false)
	require.NoError(t, err)

	fresh := NewScanner(nil, cache, nil)
	sum, err = fresh.Scan(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Invalid)
	assert.Len(t, fresh.Entries(), 2)
}

func TestScanner_InvalidCacheIsDiscarded(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "plugin_cache.json")
	writeFile(t, cache, []byte(`{"version": 1, "scanned_at": "2024-01-01T00:00:00Z", "entries": [{"format": "au"}]}`))

	_, _, err := loadCache(cache)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCache))

	s := NewScanner(nil, cache, nil)
	sum, err := s.Scan(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Total)
}

func TestCache_RoundTripValidates(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "sub", "plugin_cache.json")
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := []Entry{{Format: FormatLV2, Path: "/p/eq.lv2", Name: "eq", Size: 4096, ModTime: at, Status: StatusOK}}
	require.NoError(t, saveCache(cache, in, at))

	out, scannedAt, err := loadCache(cache)
	require.NoError(t, err)
	assert.True(t, scannedAt.Equal(at))
	assert.Equal(t, in, out)

	assert.Error(t, validateCache([]byte("{")))
}

func TestScanner_StartCallsDone(t *testing.T) {
	root := pluginTree(t)
	s := NewScanner([]string{filepath.Join(root, "lv2")}, "", nil)
	got := make(chan Summary, 1)
	s.Start(context.Background(), false, func(sum Summary, err error) {
		assert.NoError(t, err)
		got <- sum
	})
	select {
	case sum := <-got:
		assert.Equal(t, 1, sum.Total)
	case <-time.After(5 * time.Second):
		t.Fatal("Scan did not complete.")
	}
}

// blockFirstScan holds the first scan at its start until release is closed.
func blockFirstScan(s *Scanner) (entered, release chan struct{}) {
	entered, release = make(chan struct{}), make(chan struct{})
	var once sync.Once
	s.now = func() time.Time {
		once.Do(func() {
			close(entered)
			<-release
		})
		return time.Now()
	}
	return entered, release
}

func TestScanner_OverlappingStartWaitsForRunningScan(t *testing.T) {
	root := pluginTree(t)
	s := NewScanner([]string{filepath.Join(root, "vst")}, "", nil)
	entered, release := blockFirstScan(s)

	type result struct {
		sum Summary
		err error
	}
	results := make(chan result, 2)
	done := func(sum Summary, err error) { results <- result{sum, err} }

	s.Start(context.Background(), false, done)
	<-entered
	s.Start(context.Background(), false, done)
	assert.Never(t, func() bool { return len(results) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"The second scan waits while the first is running.")

	close(release)
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			require.NoError(t, r.err)
			assert.Equal(t, 2, r.sum.Total, "Each scan does a full discovery pass.")
		case <-time.After(5 * time.Second):
			t.Fatal("Scan did not complete.")
		}
	}
}

func TestScanner_WaitingScanHonoursCancel(t *testing.T) {
	root := pluginTree(t)
	s := NewScanner([]string{filepath.Join(root, "vst")}, "", nil)
	entered, release := blockFirstScan(s)
	defer close(release)

	s.Start(context.Background(), false, nil)
	<-entered
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scan(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_CanceledContext(t *testing.T) {
	root := pluginTree(t)
	s := NewScanner([]string{filepath.Join(root, "vst")}, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Scan(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProbeBinary(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]struct {
		data []byte
		arch string
		want Status
	}{
		"elf":   {elfHeader, "elf", StatusOK},
		"pe":    {[]byte("MZ\x90\x00"), "pe", StatusOK},
		"macho": {[]byte{0xcf, 0xfa, 0xed, 0xfe}, "mach-o", StatusOK},
		"fat":   {[]byte{0xca, 0xfe, 0xba, 0xbe}, "mach-o-fat", StatusOK},
		"short": {[]byte{0x7f}, "", StatusInvalid},
		"text":  {[]byte("#!/bin/sh"), "", StatusInvalid},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, name)
			writeFile(t, p, tc.data)
			arch, status := probeBinary(p)
			assert.Equal(t, tc.arch, arch)
			assert.Equal(t, tc.want, status)
		})
	}
	_, status := probeBinary(filepath.Join(dir, "absent"))
	assert.Equal(t, StatusUnreadable, status)
}
