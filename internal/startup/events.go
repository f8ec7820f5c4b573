// file: internal/startup/events.go
package startup

import "github.com/dkoosis/preflight/internal/fsm"

// Startup events. Each has exactly one destination state.
const (
	EventShowPreRelease fsm.Event = "show_pre_release"
	EventShowNewUser    fsm.Event = "show_new_user"
	EventChooseSession  fsm.Event = "choose_session" // Also used for retry and Reset.
	EventSetupEngine    fsm.Event = "setup_engine"   // From plugins this is the engine-died edge.
	EventScanPlugins    fsm.Event = "scan_plugins"
	EventLoadSession    fsm.Event = "load_session"
	EventExitProgram    fsm.Event = "exit_program"
)
