package engine

// file: internal/engine/dummy.go

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// DummyName is the name of the software-clock backend.
const DummyName = "dummy"

// DummyBackend runs a software clock instead of talking to hardware.
type DummyBackend struct{}

// NewDummyBackend returns the software-clock backend.
func NewDummyBackend() *DummyBackend { return &DummyBackend{} }

// Name implements Backend.
func (DummyBackend) Name() string { return DummyName }

// Available implements Backend. The dummy backend always works.
func (DummyBackend) Available() bool { return true }

// Open starts a clock goroutine ticking once per buffer period.
func (DummyBackend) Open(_ context.Context, p Params) (Stream, error) {
	if p.SampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate %d", p.SampleRate)
	}
	if p.BufferSize <= 0 {
		return nil, errors.Newf("invalid buffer size %d", p.BufferSize)
	}
	period := time.Duration(p.BufferSize) * time.Second / time.Duration(p.SampleRate)
	s := &dummyStream{
		rate: p.SampleRate,
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
	go s.run(period, int64(p.BufferSize))
	return s, nil
}

type dummyStream struct {
	rate   int
	frames atomic.Int64
	done   chan struct{}
	stop   chan struct{}
	once   sync.Once
}

func (s *dummyStream) run(period time.Duration, frames int64) {
	defer close(s.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.frames.Add(frames)
		}
	}
}

func (s *dummyStream) SampleRate() int       { return s.rate }
func (s *dummyStream) Done() <-chan struct{} { return s.done }

// Frames is the number of frames processed so far.
func (s *dummyStream) Frames() int64 { return s.frames.Load() }

func (s *dummyStream) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
