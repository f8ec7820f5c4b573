package session

// file: internal/session/recent.go

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// RecentEntry is one recently opened session.
type RecentEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// RecentList is the most-recent-first list of opened sessions.
type RecentList struct {
	path  string
	limit int
	mu    sync.Mutex
}

// NewRecentList stores at most limit entries in path.
func NewRecentList(path string, limit int) *RecentList {
	if limit <= 0 {
		limit = 10
	}
	return &RecentList{path: path, limit: limit}
}

// Load returns the stored entries. A missing file is an empty list.
func (r *RecentList) Load() ([]RecentEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *RecentList) load() ([]RecentEntry, error) {
	// #nosec G304 -- path comes from configuration.
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read recent sessions")
	}
	var entries []RecentEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse recent sessions")
	}
	if len(entries) > r.limit {
		entries = entries[:r.limit]
	}
	return entries, nil
}

// Add moves (or inserts) the entry to the front and trims the list.
func (r *RecentList) Add(e RecentEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.load()
	if err != nil {
		// A corrupt list is replaced rather than blocking the session load.
		entries = nil
	}
	out := []RecentEntry{e}
	for _, old := range entries {
		if old.Path == e.Path && old.Name == e.Name {
			continue
		}
		out = append(out, old)
	}
	if len(out) > r.limit {
		out = out[:r.limit]
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return errors.Wrap(err, "failed to encode recent sessions")
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create recent sessions directory")
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write recent sessions")
	}
	return errors.Wrap(os.Rename(tmp, r.path), "failed to replace recent sessions")
}
