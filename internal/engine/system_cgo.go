//go:build cgo

package engine

// file: internal/engine/system_cgo.go

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebitengine/oto/v3"
)

// SystemName is the name of the hardware output backend.
const SystemName = "system"

// oto allows one context per process, so it is shared by every stream.
var (
	otoMu   sync.Mutex
	otoCtx  *oto.Context
	otoRate int
)

// SystemBackend plays through the OS audio output via oto.
type SystemBackend struct{}

// NewSystemBackend returns the hardware output backend.
func NewSystemBackend() *SystemBackend { return &SystemBackend{} }

// Name implements Backend.
func (SystemBackend) Name() string { return SystemName }

// Available implements Backend.
func (SystemBackend) Available() bool { return true }

// Open creates (or reuses) the process audio context and starts a silent
// player so the device clock runs.
func (SystemBackend) Open(ctx context.Context, p Params) (Stream, error) {
	if p.SampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate %d", p.SampleRate)
	}

	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx == nil {
		bufferSize := time.Duration(0)
		if p.BufferSize > 0 {
			bufferSize = time.Duration(p.BufferSize) * time.Second / time.Duration(p.SampleRate)
		}
		c, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   p.SampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   bufferSize,
		})
		if err != nil {
			return nil, errors.Wrap(err, "cannot create audio output context")
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		otoCtx, otoRate = c, p.SampleRate
	} else {
		if otoRate != p.SampleRate {
			return nil, errors.Newf("audio output already opened at %d Hz; restart to use %d Hz", otoRate, p.SampleRate)
		}
		if err := otoCtx.Resume(); err != nil {
			return nil, errors.Wrap(err, "cannot resume audio output")
		}
	}

	s := &systemStream{rate: otoRate, done: make(chan struct{})}
	s.player = otoCtx.NewPlayer(silence{})
	s.player.Play()
	go s.watch(otoCtx)
	return s, nil
}

// silence is an endless source of zero samples.
type silence struct{}

func (silence) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type systemStream struct {
	rate   int
	player *oto.Player
	done   chan struct{}
	once   sync.Once
}

// watch closes done when the device reports an error.
func (s *systemStream) watch(c *oto.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if c.Err() != nil || s.player.Err() != nil {
				s.finish()
				return
			}
		}
	}
}

func (s *systemStream) finish() { s.once.Do(func() { close(s.done) }) }

func (s *systemStream) SampleRate() int       { return s.rate }
func (s *systemStream) Done() <-chan struct{} { return s.done }

func (s *systemStream) Close() error {
	s.finish()
	err := s.player.Close()
	otoMu.Lock()
	defer otoMu.Unlock()
	if otoCtx != nil {
		if serr := otoCtx.Suspend(); serr != nil && err == nil {
			err = serr
		}
	}
	return errors.Wrap(err, "cannot close audio output")
}
