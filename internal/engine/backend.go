// Package engine manages the audio engine the startup sequence brings up
// before a session is loaded: backend selection, start and stop, and the
// last parameters that worked.
package engine

// file: internal/engine/backend.go

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Params selects and configures a backend.
type Params struct {
	Backend    string `yaml:"backend"`
	Device     string `yaml:"device,omitempty"`
	SampleRate int    `yaml:"sample_rate"`
	BufferSize int    `yaml:"buffer_size"`
	MIDIInput  string `yaml:"midi_input,omitempty"`
}

// Sentinel errors.
var (
	ErrBackendUnavailable = errors.New("audio backend not available in this build")
	ErrUnknownBackend     = errors.New("unknown audio backend")
	ErrSetupRequired      = errors.New("no known engine parameters")
)

// Backend opens audio streams.
type Backend interface {
	Name() string
	// Available reports whether Open can work in this build and on this machine.
	Available() bool
	Open(ctx context.Context, p Params) (Stream, error)
}

// Stream is a running engine.
type Stream interface {
	SampleRate() int
	// Done is closed when the stream stops for any reason.
	Done() <-chan struct{}
	Close() error
}

// BackendInfo describes a registered backend.
type BackendInfo struct {
	Name      string
	Available bool
}
