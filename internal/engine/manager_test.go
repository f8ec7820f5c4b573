package engine

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

// fakeBackend hands out streams the test can kill.
type fakeBackend struct {
	name    string
	avail   bool
	openErr error
	opened  []Params
	streams []*fakeStream
}

func (f *fakeBackend) Name() string    { return f.name }
func (f *fakeBackend) Available() bool { return f.avail }
func (f *fakeBackend) Open(_ context.Context, p Params) (Stream, error) {
	f.opened = append(f.opened, p)
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeStream{rate: p.SampleRate, done: make(chan struct{})}
	f.streams = append(f.streams, s)
	return s, nil
}

type fakeStream struct {
	rate int
	done chan struct{}
	once sync.Once
}

func (s *fakeStream) SampleRate() int       { return s.rate }
func (s *fakeStream) Done() <-chan struct{} { return s.done }
func (s *fakeStream) Close() error          { s.kill(); return nil }
func (s *fakeStream) kill()                 { s.once.Do(func() { close(s.done) }) }

func TestManager_SetupRequiredUntilFirstStart(t *testing.T) {
	state := filepath.Join(t.TempDir(), "engine.yaml")
	fb := &fakeBackend{name: "fake", avail: true}
	m := NewManager(state, nil, fb)

	assert.True(t, m.SetupRequired())
	assert.ErrorIs(t, m.Start(context.Background(), nil), ErrSetupRequired)

	require.NoError(t, m.Start(context.Background(), &Params{Backend: "fake", SampleRate: 48000, BufferSize: 256}))
	assert.True(t, m.Running())
	assert.Equal(t, 48000, m.SampleRate())
	assert.Equal(t, "fake", m.CurrentBackend())
	assert.False(t, m.SetupRequired())
	assert.FileExists(t, state)

	// A fresh manager picks up the persisted parameters.
	m2 := NewManager(state, nil, fb)
	assert.False(t, m2.SetupRequired())
	last, ok := m2.LastParams()
	require.True(t, ok)
	assert.Equal(t, 256, last.BufferSize)
	require.NoError(t, m2.Start(context.Background(), nil))
	assert.Equal(t, 48000, fb.opened[len(fb.opened)-1].SampleRate)
}

func TestManager_DesiredSampleRateAdjustsSilentStart(t *testing.T) {
	fb := &fakeBackend{name: "fake", avail: true}
	m := NewManager("", nil, fb)
	require.NoError(t, m.Start(context.Background(), &Params{Backend: "fake", SampleRate: 48000, BufferSize: 64}))

	m.SetDesiredSampleRate(96000)
	require.NoError(t, m.Start(context.Background(), nil))
	assert.Equal(t, 96000, m.SampleRate())

	m.SetDesiredSampleRate(0)
	require.NoError(t, m.Start(context.Background(), nil))
	assert.Equal(t, 96000, m.SampleRate(), "Clearing the desired rate keeps the last working rate.")
}

func TestManager_ExplicitParamsWinOverDesiredRate(t *testing.T) {
	state := filepath.Join(t.TempDir(), "engine.yaml")
	fb := &fakeBackend{name: "fake", avail: true}
	m := NewManager(state, nil, fb)
	m.SetDesiredSampleRate(96000)

	require.NoError(t, m.Start(context.Background(), &Params{Backend: "fake", SampleRate: 44100, BufferSize: 256}))
	assert.Equal(t, 44100, m.SampleRate())
	assert.Equal(t, 44100, fb.opened[len(fb.opened)-1].SampleRate)

	last, ok := NewManager(state, nil, fb).LastParams()
	require.True(t, ok)
	assert.Equal(t, 44100, last.SampleRate, "The rate the user chose is what gets persisted.")
}

func TestManager_StartErrors(t *testing.T) {
	fb := &fakeBackend{name: "fake", avail: true, openErr: errors.New("device busy")}
	off := &fakeBackend{name: "off"}
	m := NewManager("", nil, fb, off)

	err := m.Start(context.Background(), &Params{Backend: "fake", SampleRate: 48000})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
	assert.False(t, m.Running())
	assert.True(t, m.SetupRequired(), "Failed parameters are not remembered.")

	assert.ErrorIs(t, m.Start(context.Background(), &Params{Backend: "off", SampleRate: 48000}), ErrBackendUnavailable)
	assert.ErrorIs(t, m.Start(context.Background(), &Params{Backend: "jack", SampleRate: 48000}), ErrUnknownBackend)

	assert.Equal(t, []BackendInfo{{Name: "fake", Available: true}, {Name: "off", Available: false}}, m.Backends())
}

func TestManager_NoticesStreamDeath(t *testing.T) {
	fb := &fakeBackend{name: "fake", avail: true}
	m := NewManager("", nil, fb)
	stopped := make(chan struct{})
	m.OnStopped(func() { close(stopped) })

	require.NoError(t, m.Start(context.Background(), &Params{Backend: "fake", SampleRate: 48000}))
	fb.streams[0].kill()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("OnStopped was not called.")
	}
	assert.False(t, m.Running())
	assert.Equal(t, 0, m.SampleRate())
	assert.Equal(t, "fake", m.CurrentBackend(), "The last backend is still reported.")
}

func TestManager_StopDoesNotReportDeath(t *testing.T) {
	fb := &fakeBackend{name: "fake", avail: true}
	m := NewManager("", nil, fb)
	called := make(chan struct{}, 1)
	m.OnStopped(func() { called <- struct{}{} })

	require.NoError(t, m.Start(context.Background(), &Params{Backend: "fake", SampleRate: 48000}))
	require.NoError(t, m.Stop())
	assert.False(t, m.Running())

	select {
	case <-called:
		t.Fatal("A requested stop is not an unexpected death.")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_IgnoresCorruptState(t *testing.T) {
	state := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(state, []byte(":::"), 0o600))
	m := NewManager(state, nil, &fakeBackend{name: "fake", avail: true})
	assert.True(t, m.SetupRequired())
}

func TestDummyBackend_Ticks(t *testing.T) {
	s, err := NewDummyBackend().Open(context.Background(), Params{SampleRate: 48000, BufferSize: 48})
	require.NoError(t, err)
	ds := s.(*dummyStream)
	assert.Eventually(t, func() bool { return ds.Frames() > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed after Close.")
	}

	_, err = NewDummyBackend().Open(context.Background(), Params{SampleRate: 0, BufferSize: 48})
	assert.Error(t, err)
}
