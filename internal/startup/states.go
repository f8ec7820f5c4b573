// Package startup sequences the pre-flight dialogs that run between process
// launch and handing a session to the engine.
// file: internal/startup/states.go
package startup

import "github.com/dkoosis/preflight/internal/fsm"

// Startup states. Exactly one is current at a time.
const (
	StateIdle                   fsm.State = "idle"                      // Constructed, Start not yet processed.
	StateWaitingForPreRelease   fsm.State = "waiting_for_pre_release"   // Pre-release notice shown.
	StateWaitingForNewUser      fsm.State = "waiting_for_new_user"      // First-run wizard shown.
	StateWaitingForSessionPath  fsm.State = "waiting_for_session_path"  // Choosing and validating a session.
	StateWaitingForEngineParams fsm.State = "waiting_for_engine_params" // Bringing up the audio engine.
	StateWaitingForPlugins      fsm.State = "waiting_for_plugins"       // Plugin discovery in flight.
	StateDone                   fsm.State = "done"                      // Outcome emitted.
)

// IsTerminal reports whether s is the state after an outcome was emitted.
func IsTerminal(s fsm.State) bool {
	return s == StateDone
}
