// file: internal/startup/machine.go
package startup

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/fsm"
	"github.com/dkoosis/preflight/internal/logging"
)

var allStates = []fsm.State{
	StateIdle,
	StateWaitingForPreRelease,
	StateWaitingForNewUser,
	StateWaitingForSessionPath,
	StateWaitingForEngineParams,
	StateWaitingForPlugins,
	StateDone,
}

// newMachine builds the transition table. Entry behaviour lives in the
// sequencer, which runs it after each successful transition. engineRunning
// guards load_session; nil leaves it unguarded.
func newMachine(logger logging.Logger, observer fsm.EnterObserver, engineRunning func() bool) (fsm.FSM, error) {
	logger = logging.OrNoop(logger)
	b := fsm.NewFSM(StateIdle, logger)

	// --- Forward path ---.
	b.AddTransition(fsm.Transition{
		From:  []fsm.State{StateIdle},
		Event: EventShowPreRelease,
		To:    StateWaitingForPreRelease,
	})
	b.AddTransition(fsm.Transition{
		From:  []fsm.State{StateIdle, StateWaitingForPreRelease},
		Event: EventShowNewUser,
		To:    StateWaitingForNewUser,
	})
	// Retry re-enters the session state and Reset may come from anywhere.
	b.AddTransition(fsm.Transition{
		From:  allStates,
		Event: EventChooseSession,
		To:    StateWaitingForSessionPath,
	})
	b.AddTransition(fsm.Transition{
		From:  []fsm.State{StateWaitingForSessionPath, StateWaitingForPlugins},
		Event: EventSetupEngine,
		To:    StateWaitingForEngineParams,
	})
	b.AddTransition(fsm.Transition{
		From:  []fsm.State{StateWaitingForSessionPath, StateWaitingForEngineParams},
		Event: EventScanPlugins,
		To:    StateWaitingForPlugins,
	})

	// --- Terminal outcomes ---.
	load := fsm.Transition{
		From:  []fsm.State{StateWaitingForPlugins},
		Event: EventLoadSession,
		To:    StateDone,
	}
	if engineRunning != nil {
		// A session is never handed to a stopped engine.
		load.Condition = func(context.Context, fsm.Event, interface{}) bool { return engineRunning() }
	}
	b.AddTransition(load)
	b.AddTransition(fsm.Transition{
		From:  allStates[:len(allStates)-1],
		Event: EventExitProgram,
		To:    StateDone,
	})

	if observer != nil {
		b.OnEnter(observer)
	}
	if err := b.Build(); err != nil {
		logger.Error("Failed to build startup state machine.", "error", err)
		return nil, errors.Wrap(err, "failed to build startup state machine configuration")
	}
	return b, nil
}
