// Package fsm provides a generic Finite State Machine implementation.
// file: internal/fsm/fsm.go
package fsm

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/logging"
	lfsm "github.com/looplab/fsm" // Use alias 'lfsm'.
)

// ErrInvalidTransition marks errors returned when an event is not allowed
// from the current state (or is not defined at all).
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrGuardRejected marks errors returned when a transition's guard condition
// refused it.
var ErrGuardRejected = errors.New("transition refused by guard")

// State represents a state in the FSM.
type State string

// Event represents an event that can trigger a state transition.
type Event string

// GuardCondition defines the function signature for guard conditions on transitions.
// It receives the context, the triggering event, and optional data, returning true if the transition is allowed.
type GuardCondition func(ctx context.Context, event Event, data interface{}) bool

// EnterObserver is told about every successful transition, self-transitions included.
type EnterObserver func(from, to State, event Event)

// Transition defines a transition rule between states.
type Transition struct {
	From      []State        // Source states for this transition.
	To        State          // The destination state.
	Event     Event          // The event triggering the transition.
	Condition GuardCondition // Optional guard condition to check before allowing the event.
}

// FSM defines the interface for our finite state machine wrapper.
type FSM interface {
	// AddTransition stores a transition definition. Call Build() after adding all transitions.
	AddTransition(transition Transition) FSM
	// OnEnter registers an observer for successful transitions. Replaces any previous observer.
	OnEnter(observer EnterObserver) FSM
	// Build finalizes the FSM configuration and creates the underlying machine. Must be called after AddTransition(s).
	Build() error
	// CurrentState returns the current state. Requires Build() to have been called successfully.
	CurrentState() State
	// CanTransition checks if the event is defined for the current state. Requires Build().
	CanTransition(event Event) bool
	// Transition attempts to trigger a state transition. Requires Build().
	Transition(ctx context.Context, event Event, data interface{}) error
	// SetState allows manually setting the FSM state (use with caution). Requires Build().
	SetState(state State) error
	// Reset sets the state back to the initial state. Requires Build().
	Reset() error
}

// loopFSM implements the FSM interface using looplab/fsm.
type loopFSM struct {
	initialState State
	logger       logging.Logger
	transitions  []Transition
	observer     EnterObserver
	fsm          *lfsm.FSM    // Underlying instance, nil until Build() is called.
	buildErr     error        // Stores error from Build().
	mu           sync.RWMutex // Protects access to fsm instance and buildErr.
}

// NewFSM creates a new FSM builder instance with the specified initial state and logger.
// Call AddTransition() to define transitions, then call Build() to finalize.
func NewFSM(initialState State, logger logging.Logger) FSM {
	return &loopFSM{
		initialState: initialState,
		logger:       logging.OrNoop(logger).WithField("component", "fsm_wrapper"),
		transitions:  make([]Transition, 0),
	}
}

// AddTransition stores a transition definition to be used during Build().
func (l *loopFSM) AddTransition(t Transition) FSM {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fsm != nil {
		l.logger.Error("Cannot AddTransition after Build() has been called.")
		if l.buildErr == nil {
			l.buildErr = errors.New("cannot AddTransition after Build")
		}
		return l
	}
	if len(t.From) == 0 {
		l.logger.Error("Transition definition missing 'From' states.", "event", t.Event, "to", t.To)
		if l.buildErr == nil {
			l.buildErr = errors.New("transition definition missing 'From' states")
		}
		return l
	}
	l.transitions = append(l.transitions, t)
	return l
}

// OnEnter registers the transition observer.
func (l *loopFSM) OnEnter(observer EnterObserver) FSM {
	l.mu.Lock()
	l.observer = observer
	l.mu.Unlock()
	return l
}

// Build finalizes the FSM configuration and creates the underlying looplab/fsm instance.
func (l *loopFSM) Build() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fsm != nil {
		return l.buildErr
	}
	if l.buildErr != nil {
		l.logger.Error("Attempted to Build() FSM with configuration errors.", "error", l.buildErr)
		return l.buildErr
	}

	callbacks := make(lfsm.Callbacks)
	descs := make(map[string]*lfsm.EventDesc)
	order := make([]string, 0)
	guarded := make(map[Event]struct{})

	for _, t := range l.transitions {
		name := string(t.Event)
		desc, exists := descs[name]
		if !exists {
			desc = &lfsm.EventDesc{Name: name, Dst: string(t.To)}
			descs[name] = desc
			order = append(order, name)
		} else if desc.Dst != string(t.To) {
			l.buildErr = errors.Newf("conflicting destinations (%q and %q) for the same event (%q)", desc.Dst, t.To, name)
			l.logger.Error("Invalid FSM configuration.", "error", l.buildErr)
			return l.buildErr
		}
		for _, s := range t.From {
			if !containsString(desc.Src, string(s)) {
				desc.Src = append(desc.Src, string(s))
			}
		}

		if t.Condition != nil {
			if _, dup := guarded[t.Event]; dup {
				l.buildErr = errors.Newf("event %q has more than one guard", name)
				return l.buildErr
			}
			guarded[t.Event] = struct{}{}
			callbacks["before_"+name] = l.guardCallback(t)
		}
	}

	events := make([]lfsm.EventDesc, 0, len(order))
	for _, name := range order {
		events = append(events, *descs[name])
	}

	l.fsm = lfsm.NewFSM(string(l.initialState), events, callbacks)
	l.logger.Debug("FSM instance built.", "initialState", l.initialState, "event_count", len(events))
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsState(list []State, s string) bool {
	for _, v := range list {
		if string(v) == s {
			return true
		}
	}
	return false
}

func eventData(e *lfsm.Event) interface{} {
	if len(e.Args) > 0 {
		return e.Args[0]
	}
	return nil
}

// guardCallback creates a looplab/fsm callback function for a guard condition.
func (l *loopFSM) guardCallback(t Transition) lfsm.Callback {
	return func(ctx context.Context, e *lfsm.Event) {
		if !containsState(t.From, e.Src) {
			return
		}
		if !t.Condition(ctx, t.Event, eventData(e)) {
			l.logger.Debug("Guard condition failed, cancelling transition.", "event", t.Event, "from", e.Src)
			e.Cancel(errors.Newf("guard condition for event %q from state %q failed", t.Event, e.Src))
		}
	}
}

// CurrentState returns the current state of the FSM. Requires Build().
func (l *loopFSM) CurrentState() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fsm == nil {
		l.logger.Error("CurrentState() called before Build() or after build error.")
		return ""
	}
	return State(l.fsm.Current())
}

// CanTransition checks if the given event can trigger a transition from the current state. Requires Build().
func (l *loopFSM) CanTransition(event Event) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fsm == nil {
		return false
	}
	return l.fsm.Can(string(event))
}

// Transition triggers a state transition based on the event. Requires Build().
// A transition to the current state is reported as success.
func (l *loopFSM) Transition(ctx context.Context, event Event, data interface{}) error {
	l.mu.RLock()
	if l.fsm == nil {
		err := l.buildErr
		l.mu.RUnlock()
		if err == nil {
			err = errors.New("fsm not built")
		}
		return err
	}
	machine := l.fsm
	observer := l.observer
	l.mu.RUnlock()

	from := State(machine.Current())
	var args []interface{}
	if data != nil {
		args = append(args, data)
	}

	err := machine.Event(ctx, string(event), args...)
	if err != nil {
		var noTransition lfsm.NoTransitionError
		var invalid lfsm.InvalidEventError
		var unknown lfsm.UnknownEventError
		var canceled lfsm.CanceledError
		switch {
		case errors.As(err, &noTransition) && noTransition.Err == nil:
			err = nil
		case errors.As(err, &invalid), errors.As(err, &unknown):
			l.logger.Debug("FSM transition rejected.", "event", event, "from_state", from)
			return errors.Mark(errors.Wrapf(err, "event %q from state %q", event, from), ErrInvalidTransition)
		case errors.As(err, &canceled):
			l.logger.Debug("FSM transition canceled by guard condition.", "event", event, "from_state", from)
			return errors.Mark(err, ErrGuardRejected)
		default:
			l.logger.Debug("FSM transition failed.", "event", event, "from_state", from, "error", err)
			return err
		}
	}

	to := State(machine.Current())
	l.logger.Debug("Transition successful.", "event", event, "old_state", from, "new_state", to)
	if observer != nil {
		observer(from, to, event)
	}
	return nil
}

// SetState allows manually setting the FSM state. Use with caution. Requires Build().
func (l *loopFSM) SetState(state State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fsm == nil {
		l.logger.Error("SetState() called before Build() or after build error.")
		if l.buildErr == nil {
			return errors.New("fsm not built")
		}
		return l.buildErr
	}
	l.logger.Debug("Manually setting FSM state.", "target_state", state)
	l.fsm.SetState(string(state))
	return nil
}

// Reset sets the state back to the initial state. Requires Build().
func (l *loopFSM) Reset() error {
	return l.SetState(l.initialState)
}
