// file: internal/startup/sequencer.go
package startup

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/fsm"
	"github.com/dkoosis/preflight/internal/logging"
	"github.com/dkoosis/preflight/internal/markers"
	"github.com/dkoosis/preflight/internal/pluginscan"
	"github.com/dkoosis/preflight/internal/session"
)

// Options wires a StartupFSM to its collaborators.
type Options struct {
	// PreRelease marks a pre-release build, which shows a notice until acknowledged.
	PreRelease bool
	// CacheOnlyScan limits plugin discovery to the scan cache.
	CacheOnlyScan bool
	// CommandLine is validated in place of showing the session dialog the
	// first time a session is chosen. May be nil.
	CommandLine *session.Candidate

	Loop      Poster
	Markers   markers.Store
	Dialogs   Dialogs
	Messenger Messenger
	Validator Validator
	Engine    Engine
	Scanner   PluginScanner
	Host      Host
	Logger    logging.Logger
}

// StartupFSM drives the pre-flight dialogs to a single outcome. All of its
// state is touched only from callbacks run on the event loop; the public
// methods post onto the loop and return immediately.
type StartupFSM struct {
	opts    Options
	logger  logging.Logger
	machine fsm.FSM

	// Loop goroutine only.
	ctx        context.Context
	newUser    bool
	gen        uint64
	pending    *session.Candidate
	request    session.LaunchRequest
	transient  Dialog
	sessionDlg SessionDialog
	engineUp   bool // engine setup dialog is presented
	noAutoRun  bool // skip the silent engine start after the engine died

	mu       sync.Mutex
	history  []fsm.State
	onResult func(Result)
}

// New validates opts and builds the sequencer in StateIdle.
func New(opts Options) (*StartupFSM, error) {
	switch {
	case opts.Loop == nil:
		return nil, errors.New("startup: event loop is required")
	case opts.Validator == nil:
		return nil, errors.New("startup: session validator is required")
	case opts.Engine == nil:
		return nil, errors.New("startup: engine is required")
	case opts.Scanner == nil:
		return nil, errors.New("startup: plugin scanner is required")
	case opts.Messenger == nil:
		return nil, errors.New("startup: messenger is required")
	case opts.Dialogs.NewSession == nil || opts.Dialogs.EngineSetup == nil:
		return nil, errors.New("startup: session and engine setup dialogs are required")
	}

	s := &StartupFSM{
		opts:   opts,
		logger: logging.OrNoop(opts.Logger).WithField("component", "startup_fsm"),
		ctx:    context.Background(),
	}
	machine, err := newMachine(s.logger, s.observe, opts.Engine.Running)
	if err != nil {
		return nil, err
	}
	s.machine = machine
	s.history = []fsm.State{StateIdle}
	if opts.CommandLine != nil {
		c := *opts.CommandLine
		s.pending = &c
	}
	s.newUser = opts.Markers != nil && !s.hasMarker(markers.FirstRunCompleted)
	return s, nil
}

// OnResult registers the single subscriber for the terminal outcome. A later
// call replaces the earlier subscriber. fn runs on the event loop.
func (s *StartupFSM) OnResult(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// Start begins the sequence from the state the environment calls for.
func (s *StartupFSM) Start(ctx context.Context) {
	s.opts.Loop.Post(func() {
		if ctx != nil {
			s.ctx = ctx
		}
		if s.State() != StateIdle {
			s.logger.Warn("Start called more than once, ignoring.", "state", s.State())
			return
		}
		switch {
		case s.opts.PreRelease && !s.hasMarker(markers.PreReleaseAcknowledged):
			s.fire(EventShowPreRelease)
		case s.newUser:
			s.fire(EventShowNewUser)
		default:
			s.fire(EventChooseSession)
		}
	})
}

// Reset goes straight back to choosing a session, dropping whatever was in
// flight. Used after the current session is closed.
func (s *StartupFSM) Reset() {
	s.opts.Loop.Post(func() {
		s.logger.Info("Resetting startup sequence.", "state", s.State())
		s.gen++
		s.hideAll()
		s.request = session.LaunchRequest{}
		s.pending = nil
		s.noAutoRun = false
		s.fire(EventChooseSession)
	})
}

// HandlePath accepts a session path from outside the dialogs, for example
// one sent with `preflight open` from another shell. It is validated at once when a
// session is being chosen and otherwise kept until then.
func (s *StartupFSM) HandlePath(path string) {
	s.opts.Loop.Post(func() {
		s.pending = &session.Candidate{Name: path}
		if s.State() != StateWaitingForSessionPath {
			s.logger.Debug("Holding session path until a session is chosen.", "path", path, "state", s.State())
			return
		}
		// The dialog is up and keeps its pending response. A rejection is
		// shown in it rather than in a modal that would wait on the form.
		s.tryPending(true)
	})
}

// State returns the current state. Safe from any goroutine.
func (s *StartupFSM) State() fsm.State {
	return s.machine.CurrentState()
}

// History returns every state entered so far, starting with StateIdle.
func (s *StartupFSM) History() []fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fsm.State(nil), s.history...)
}

func (s *StartupFSM) observe(from, to fsm.State, event fsm.Event) {
	s.mu.Lock()
	s.history = append(s.history, to)
	s.mu.Unlock()
	s.logger.Debug("Startup state entered.", "from", from, "to", to, "event", event)
}

// fire transitions and runs the entry behaviour of the new state.
func (s *StartupFSM) fire(event fsm.Event) {
	if err := s.machine.Transition(s.ctx, event, nil); err != nil {
		s.logger.Error("Startup transition failed.", "event", event, "state", s.State(), "error", err)
		return
	}
	switch s.State() {
	case StateWaitingForPreRelease:
		s.enterPreRelease()
	case StateWaitingForNewUser:
		s.enterNewUser()
	case StateWaitingForSessionPath:
		s.enterSessionPath()
	case StateWaitingForEngineParams:
		s.enterEngineParams()
	case StateWaitingForPlugins:
		s.enterPlugins()
	}
}

// expect starts a new response generation. Anything bound to an older
// generation is dropped when it arrives.
func (s *StartupFSM) expect() uint64 {
	s.gen++
	return s.gen
}

// deliver posts fn to the loop if gen is still the expected generation.
// The first delivery consumes the generation.
func (s *StartupFSM) deliver(gen uint64, what string, fn func()) {
	s.opts.Loop.Post(func() {
		if gen != s.gen || IsTerminal(s.State()) {
			s.logger.Debug("Dropping stale response.", "source", what, "state", s.State())
			return
		}
		s.gen++
		fn()
	})
}

// responder binds a single-shot response handler for a presented dialog.
func (s *StartupFSM) responder(what string, handle func(Response)) func(Response) {
	gen := s.expect()
	return func(r Response) {
		s.deliver(gen, what, func() {
			s.logger.Debug("Dialog responded.", "dialog", what, "response", r)
			handle(r)
		})
	}
}

func (s *StartupFSM) hasMarker(name string) bool {
	if s.opts.Markers == nil {
		return false
	}
	ok, err := s.opts.Markers.Has(name)
	if err != nil {
		s.logger.Warn("Cannot read startup marker, treating it as unset.", "marker", name, "error", err)
		return false
	}
	return ok
}

// --- Pre-release notice and first-run wizard ---.

func (s *StartupFSM) enterPreRelease() {
	if s.opts.Dialogs.NewPreRelease == nil {
		s.logger.Warn("No pre-release dialog configured, skipping notice.")
		s.afterPreRelease()
		return
	}
	dlg := s.opts.Dialogs.NewPreRelease()
	s.transient = dlg
	dlg.Present(s.responder("pre_release", func(Response) {
		s.afterPreRelease()
	}))
}

func (s *StartupFSM) afterPreRelease() {
	if s.opts.Markers != nil {
		if err := s.opts.Markers.Set(markers.PreReleaseAcknowledged); err != nil {
			s.logger.Warn("Could not record pre-release acknowledgement.", "error", err)
		}
	}
	s.dropTransient()
	if s.newUser {
		s.fire(EventShowNewUser)
		return
	}
	s.fire(EventChooseSession)
}

func (s *StartupFSM) enterNewUser() {
	if s.opts.Dialogs.NewNewUser == nil {
		s.logger.Warn("No first-run dialog configured, skipping wizard.")
		s.newUser = false
		s.fire(EventChooseSession)
		return
	}
	dlg := s.opts.Dialogs.NewNewUser()
	s.transient = dlg
	dlg.Present(s.responder("new_user", func(r Response) {
		s.dropTransient()
		if !r.Affirmative() {
			s.exit()
			return
		}
		s.newUser = false
		s.fire(EventChooseSession)
	}))
}

// --- Session choice ---.

func (s *StartupFSM) enterSessionPath() {
	if s.tryPending(false) {
		return
	}
	s.presentSessionDialog()
}

// tryPending validates an out-of-band path without UI. It reports whether
// the sequence moved on. dialogUp says the session dialog is on screen.
func (s *StartupFSM) tryPending(dialogUp bool) bool {
	if s.pending == nil {
		return false
	}
	c := *s.pending
	s.pending = nil

	verdict, req, err := s.opts.Validator.Check(s.ctx, c, s.opts.Messenger)
	s.logger.Info("Validated session path.", "name", c.Name, "verdict", verdict)
	switch verdict {
	case session.Proceed:
		s.closeSessionDialog()
		s.advance(req)
		return true
	case session.Reject, session.Fail:
		msg := session.UserMessage(err)
		if dialogUp && s.sessionDlg != nil {
			s.sessionDlg.SetMessage(msg)
		} else {
			s.opts.Messenger.Error(msg)
		}
	}
	return false
}

func (s *StartupFSM) presentSessionDialog() {
	if s.sessionDlg == nil {
		s.sessionDlg = s.opts.Dialogs.NewSession()
	}
	s.sessionDlg.Present(s.responder("session", s.sessionResponse))
}

func (s *StartupFSM) sessionResponse(r Response) {
	if !r.Affirmative() {
		s.closeSessionDialog()
		s.exit()
		return
	}
	c := s.sessionDlg.Choice()
	verdict, req, err := s.opts.Validator.Check(s.ctx, c, s.opts.Messenger)
	s.logger.Info("Validated session choice.", "name", c.Name, "new", c.NewRequested, "verdict", verdict)

	switch verdict {
	case session.Proceed:
		s.closeSessionDialog()
		s.advance(req)
	case session.Retry:
		s.fire(EventChooseSession)
	case session.Reject:
		msg := session.UserMessage(err)
		s.opts.Messenger.Error(msg)
		s.sessionDlg.SetMessage(msg)
		s.fire(EventChooseSession)
	default:
		s.opts.Messenger.Error(session.UserMessage(err))
		s.closeSessionDialog()
		s.exit()
	}
}

func (s *StartupFSM) closeSessionDialog() {
	if s.sessionDlg != nil {
		s.gen++
		s.sessionDlg.Hide()
		s.sessionDlg = nil
	}
}

// advance leaves the session state with an accepted request.
func (s *StartupFSM) advance(req session.LaunchRequest) {
	s.request = req
	eng := s.opts.Engine
	if eng.Running() && (req.SampleRate == 0 || req.SampleRate == eng.SampleRate()) {
		s.logger.Info("Engine already running at a compatible rate.", "backend", eng.CurrentBackend(), "sample_rate", eng.SampleRate())
		s.fire(EventScanPlugins)
		return
	}
	s.fire(EventSetupEngine)
}

// --- Engine ---.

func (s *StartupFSM) enterEngineParams() {
	eng := s.opts.Engine
	// 0 clears a rate left over from an earlier session.
	rate := s.request.SampleRate
	eng.SetDesiredSampleRate(rate)
	s.opts.Dialogs.EngineSetup.SetDesiredSampleRate(rate)

	if !s.noAutoRun && !eng.SetupRequired() {
		err := eng.Start(s.ctx, nil)
		if err == nil {
			s.logger.Info("Engine started with previous parameters.", "backend", eng.CurrentBackend())
			s.fire(EventScanPlugins)
			return
		}
		s.logger.Warn("Silent engine start failed, asking for parameters.", "error", err)
	}
	s.noAutoRun = false
	s.presentEngineDialog()
}

func (s *StartupFSM) presentEngineDialog() {
	s.engineUp = true
	s.opts.Dialogs.EngineSetup.Present(s.responder("engine_setup", s.engineResponse))
}

func (s *StartupFSM) engineResponse(r Response) {
	dlg := s.opts.Dialogs.EngineSetup
	if !r.Affirmative() {
		s.hideEngineDialog()
		s.exit()
		return
	}
	p := dlg.Params()
	if err := s.opts.Engine.Start(s.ctx, &p); err != nil {
		s.logger.Warn("Engine start failed.", "backend", p.Backend, "sample_rate", p.SampleRate, "error", err)
		s.opts.Messenger.Error(fmt.Sprintf("Could not start the audio engine: %v", err))
		s.presentEngineDialog()
		return
	}
	s.hideEngineDialog()
	s.fire(EventScanPlugins)
}

func (s *StartupFSM) hideEngineDialog() {
	if s.engineUp {
		s.opts.Dialogs.EngineSetup.Hide()
		s.engineUp = false
	}
}

// --- Plugins ---.

func (s *StartupFSM) enterPlugins() {
	gen := s.expect()
	s.opts.Scanner.Start(s.ctx, s.opts.CacheOnlyScan, func(sum pluginscan.Summary, err error) {
		s.deliver(gen, "plugin_scan", func() { s.pluginsDone(sum, err) })
	})
}

func (s *StartupFSM) pluginsDone(sum pluginscan.Summary, err error) {
	if err != nil {
		s.logger.Warn("Plugin scan failed, continuing without it.", "error", err)
	} else {
		s.logger.Info("Plugin scan complete.", "plugins", sum.Total, "from_cache", sum.FromCache)
	}

	if !s.opts.Engine.Running() {
		s.engineLost()
		return
	}

	if s.opts.Host != nil {
		if err := s.opts.Host.AttachToEngine(s.ctx); err != nil {
			s.logger.Error("Could not attach to the engine.", "error", err)
			s.opts.Messenger.Error(fmt.Sprintf("Could not attach to the audio engine: %v", err))
			s.exit()
			return
		}
	}
	if err := s.emit(EventLoadSession, Result{Outcome: LoadSession, Request: s.request}); errors.Is(err, fsm.ErrGuardRejected) {
		s.engineLost()
	}
}

// engineLost goes back to engine setup, showing the dialog rather than
// retrying a silent start.
func (s *StartupFSM) engineLost() {
	s.logger.Warn("Engine stopped during plugin discovery.")
	s.opts.Messenger.Error("The audio engine stopped while plugins were being scanned. Please check its settings and start it again.")
	s.noAutoRun = true
	s.fire(EventSetupEngine)
}

// --- Outcomes ---.

func (s *StartupFSM) exit() {
	_ = s.emit(EventExitProgram, Result{Outcome: ExitProgram})
}

// emit makes the terminal transition and tells the subscriber. Nothing is
// emitted when the transition is refused.
func (s *StartupFSM) emit(event fsm.Event, res Result) error {
	s.gen++
	s.hideAll()
	if err := s.machine.Transition(s.ctx, event, nil); err != nil {
		s.logger.Error("Cannot emit startup outcome.", "event", event, "state", s.State(), "error", err)
		return err
	}
	s.logger.Info("Startup finished.", "outcome", res.Outcome, "session", res.Request.SessionName, "request_id", res.Request.ID)

	s.mu.Lock()
	fn := s.onResult
	s.mu.Unlock()
	if fn != nil {
		fn(res)
	}
	return nil
}

func (s *StartupFSM) dropTransient() {
	if s.transient != nil {
		s.transient.Hide()
		s.transient = nil
	}
}

func (s *StartupFSM) hideAll() {
	s.dropTransient()
	s.closeSessionDialog()
	s.hideEngineDialog()
}
