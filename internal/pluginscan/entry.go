// Package pluginscan discovers installed audio plugins before a session is
// loaded. A scan walks the configured search paths, identifies plugin
// binaries by their headers and keeps the results in a JSON cache so later
// startups can skip the walk.
package pluginscan

// file: internal/pluginscan/entry.go

import "time"

// Format is a plugin standard.
type Format string

// Supported formats.
const (
	FormatVST2 Format = "vst2"
	FormatVST3 Format = "vst3"
	FormatLV2  Format = "lv2"
)

// Status is the probe result for one plugin.
type Status string

// Probe results.
const (
	StatusOK         Status = "ok"
	StatusInvalid    Status = "invalid"
	StatusUnreadable Status = "unreadable"
)

// Entry is one discovered plugin.
type Entry struct {
	Format  Format    `json:"format"`
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Binary  string    `json:"binary,omitempty"`
	Arch    string    `json:"arch,omitempty"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Status  Status    `json:"status"`
}

// Summary describes a finished scan.
type Summary struct {
	Total     int
	New       int
	Changed   int
	Removed   int
	Invalid   int
	FromCache bool
	Duration  time.Duration
}
