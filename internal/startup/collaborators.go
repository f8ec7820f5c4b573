// file: internal/startup/collaborators.go
package startup

import (
	"context"
	"fmt"

	"github.com/dkoosis/preflight/internal/engine"
	"github.com/dkoosis/preflight/internal/pluginscan"
	"github.com/dkoosis/preflight/internal/session"
)

// Response is the code a dialog reports when the user dismisses it.
type Response int

// Dialog response codes. Everything except ResponseAccept is a cancellation.
const (
	ResponseAccept Response = iota
	ResponseCancel
	ResponseClose // Window closed by the window manager.
)

// Affirmative reports whether r means "proceed".
func (r Response) Affirmative() bool { return r == ResponseAccept }

func (r Response) String() string {
	switch r {
	case ResponseAccept:
		return "accept"
	case ResponseCancel:
		return "cancel"
	case ResponseClose:
		return "close"
	default:
		return fmt.Sprintf("response(%d)", int(r))
	}
}

// Dialog is the capability every pre-flight dialog offers. Present must not
// block; respond may be called from any goroutine, and only its first call
// counts.
type Dialog interface {
	Present(respond func(Response))
	Hide()
}

// SessionDialog lets the user pick or name a session.
type SessionDialog interface {
	Dialog
	// Choice returns what the user entered.
	Choice() session.Candidate
	// SetMessage shows a corrective note the next time the dialog is presented.
	SetMessage(msg string)
}

// EngineSetupDialog collects audio engine parameters. It outlives the
// sequencer, which only ever hides it.
type EngineSetupDialog interface {
	Dialog
	// SetDesiredSampleRate pre-selects rate the next time the dialog is
	// presented. 0 means no preference.
	SetDesiredSampleRate(rate int)
	Params() engine.Params
}

// Messenger shows modal messages. Both calls block until dismissed.
type Messenger interface {
	Error(msg string)
	Ask(question string) bool
}

// Engine is the audio engine as the sequencer sees it.
type Engine interface {
	Running() bool
	SampleRate() int
	SetupRequired() bool
	CurrentBackend() string
	// SetDesiredSampleRate adjusts a Start from the last known parameters.
	// 0 clears it.
	SetDesiredSampleRate(rate int)
	// Start brings the engine up. A nil p means the last known parameters.
	Start(ctx context.Context, p *engine.Params) error
}

// PluginScanner runs a plugin discovery pass and reports completion from any goroutine.
type PluginScanner interface {
	Start(ctx context.Context, cacheOnly bool, done func(pluginscan.Summary, error))
}

// Validator turns dialog or command line input into a launch request.
type Validator interface {
	Check(ctx context.Context, c session.Candidate, p session.Prompter) (session.Verdict, session.LaunchRequest, error)
}

// Host is the embedding application.
type Host interface {
	AttachToEngine(ctx context.Context) error
}

// Poster schedules callbacks on the event loop goroutine.
type Poster interface {
	Post(fn func())
}

// Dialogs creates the transient dialogs and references the long-lived
// engine setup dialog.
type Dialogs struct {
	NewPreRelease func() Dialog
	NewNewUser    func() Dialog
	NewSession    func() SessionDialog
	EngineSetup   EngineSetupDialog
}

// Outcome is the terminal result of a startup sequence.
type Outcome int

// Terminal outcomes.
const (
	LoadSession Outcome = iota
	ExitProgram
)

func (o Outcome) String() string {
	if o == LoadSession {
		return "load_session"
	}
	return "exit_program"
}

// Result is emitted exactly once per Start or Reset.
type Result struct {
	Outcome Outcome
	// Request is only meaningful for LoadSession.
	Request session.LaunchRequest
}
