package engine

// file: internal/engine/manager.go

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/logging"
	"gopkg.in/yaml.v3"
)

// Manager owns the running stream and remembers the last parameters that
// started successfully.
type Manager struct {
	mu          sync.Mutex
	backends    map[string]Backend
	order       []string
	stateFile   string
	last        *Params
	current     Params
	stream      Stream
	desiredRate int
	onStopped   func()
	logger      logging.Logger
}

// NewManager registers backends (in preference order) and loads the last
// working parameters from stateFile, if present.
func NewManager(stateFile string, logger logging.Logger, backends ...Backend) *Manager {
	m := &Manager{
		backends:  make(map[string]Backend, len(backends)),
		stateFile: stateFile,
		logger:    logging.OrNoop(logger).WithField("component", "engine_manager"),
	}
	for _, b := range backends {
		m.backends[b.Name()] = b
		m.order = append(m.order, b.Name())
	}
	if p, err := m.loadState(); err != nil {
		m.logger.Warn("Ignoring unreadable engine state.", "path", stateFile, "error", err)
	} else if p != nil {
		m.last = p
	}
	return m
}

// Backends lists registered backends in preference order.
func (m *Manager) Backends() []BackendInfo {
	out := make([]BackendInfo, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, BackendInfo{Name: name, Available: m.backends[name].Available()})
	}
	return out
}

// Running reports whether a stream is up.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningLocked()
}

func (m *Manager) runningLocked() bool {
	if m.stream == nil {
		return false
	}
	select {
	case <-m.stream.Done():
		return false
	default:
		return true
	}
}

// SampleRate is the rate of the running stream, or 0.
func (m *Manager) SampleRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.runningLocked() {
		return 0
	}
	return m.stream.SampleRate()
}

// SetupRequired reports whether the user must pick parameters because none
// have worked before.
func (m *Manager) SetupRequired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last == nil
}

// CurrentBackend names the backend of the running stream, else the last used one.
func (m *Manager) CurrentBackend() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runningLocked() {
		return m.current.Backend
	}
	if m.last != nil {
		return m.last.Backend
	}
	return ""
}

// LastParams returns the last parameters that worked.
func (m *Manager) LastParams() (Params, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Params{}, false
	}
	return *m.last, true
}

// SetDesiredSampleRate makes a Start from the last working parameters use
// rate, so the engine comes up at the rate the session was recorded at.
// Explicit parameters passed to Start win. 0 clears it.
func (m *Manager) SetDesiredSampleRate(rate int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.desiredRate = rate
}

// OnStopped registers fn to be called (from a stream goroutine) when a
// running stream stops on its own.
func (m *Manager) OnStopped(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStopped = fn
}

// Start opens a stream. A nil p means the last working parameters, adjusted
// to the desired sample rate when one is set.
func (m *Manager) Start(ctx context.Context, p *Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var params Params
	switch {
	case p != nil:
		params = *p
	case m.last != nil:
		params = *m.last
		if m.desiredRate > 0 {
			params.SampleRate = m.desiredRate
		}
	default:
		return ErrSetupRequired
	}

	b, ok := m.backends[params.Backend]
	if !ok {
		return errors.Wrapf(ErrUnknownBackend, "%q", params.Backend)
	}
	if !b.Available() {
		return errors.Wrapf(ErrBackendUnavailable, "%q", params.Backend)
	}
	if params.MIDIInput != "" {
		m.checkMIDIInput(params.MIDIInput)
	}

	if m.stream != nil {
		_ = m.stream.Close()
		m.stream = nil
	}

	stream, err := b.Open(ctx, params)
	if err != nil {
		return errors.Wrapf(err, "failed to start %s backend", params.Backend)
	}
	m.stream = stream
	m.current = params
	saved := params
	m.last = &saved
	if err := m.saveState(saved); err != nil {
		m.logger.Warn("Could not persist engine parameters.", "path", m.stateFile, "error", err)
	}
	m.logger.Info("Engine started.", "backend", params.Backend, "sample_rate", stream.SampleRate(), "buffer_size", params.BufferSize)

	go m.watch(stream)
	return nil
}

func (m *Manager) watch(s Stream) {
	<-s.Done()
	m.mu.Lock()
	ours := m.stream == s
	if ours {
		m.stream = nil
	}
	fn := m.onStopped
	m.mu.Unlock()
	if ours {
		m.logger.Warn("Engine stopped unexpectedly.")
		if fn != nil {
			fn()
		}
	}
}

func (m *Manager) checkMIDIInput(name string) {
	ins, err := MIDIInputs()
	if err != nil {
		m.logger.Warn("Cannot list MIDI inputs.", "error", err)
		return
	}
	for _, in := range ins {
		if in == name {
			return
		}
	}
	m.logger.Warn("Configured MIDI input not found.", "midi_input", name)
}

// Stop closes the running stream.
func (m *Manager) Stop() error {
	m.mu.Lock()
	s := m.stream
	m.stream = nil
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

func (m *Manager) loadState() (*Params, error) {
	if m.stateFile == "" {
		return nil, nil
	}
	// #nosec G304 -- state file path comes from configuration.
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read engine state")
	}
	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "failed to parse engine state")
	}
	if p.Backend == "" {
		return nil, nil
	}
	return &p, nil
}

func (m *Manager) saveState(p Params) error {
	if m.stateFile == "" {
		return nil
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "failed to encode engine state")
	}
	if err := os.MkdirAll(filepath.Dir(m.stateFile), 0o700); err != nil {
		return errors.Wrap(err, "failed to create engine state directory")
	}
	return errors.Wrap(os.WriteFile(m.stateFile, data, 0o600), "failed to write engine state")
}
