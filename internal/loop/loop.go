// Package loop implements the single-threaded cooperative event loop that all
// startup sequencing runs on. Collaborators running on other goroutines (dialog
// front ends, the plugin scanner, engine backends) never touch sequencer state
// directly: they Post a callback and the loop runs it in order.
// file: internal/loop/loop.go
package loop

import (
	"context"
	"sync"

	"github.com/dkoosis/preflight/internal/logging"
)

// Loop is an unbounded FIFO of callbacks drained by a single goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{} // capacity 1; a pending token means "queue may be non-empty".
	quit    chan struct{}
	quitted bool
	logger  logging.Logger
}

// New creates an idle loop.
func New(logger logging.Logger) *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		logger: logging.OrNoop(logger).WithField("component", "event_loop"),
	}
}

// Post queues fn. Safe from any goroutine. Callbacks posted after Quit are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.quitted {
		l.mu.Unlock()
		l.logger.Debug("Dropping callback posted after quit.")
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Quit stops Run after the callback currently executing returns.
func (l *Loop) Quit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quitted {
		return
	}
	l.quitted = true
	close(l.quit)
}

// Done is closed once Quit has been called.
func (l *Loop) Done() <-chan struct{} {
	return l.quit
}

// Run drains the queue until Quit is called or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-l.quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending runs every queued callback, including ones queued by the
// callbacks themselves, and returns how many ran. It never blocks.
func (l *Loop) RunPending() int {
	n := 0
	for {
		fn := l.pop()
		if fn == nil {
			return n
		}
		fn()
		n++
	}
}

// Pending reports the number of queued callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.quitted && len(l.queue) > 0 {
		l.queue = nil
	}
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}
