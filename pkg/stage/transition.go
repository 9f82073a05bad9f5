package stage

import (
	"bytes"
	"fmt"

	"github.com/luxfi/migrator/pkg/core"
)

// State is the persisted source controller state.
type State struct {
	Stage         Stage
	Cursor        []byte
	Halted        bool
	HaltRequested bool
}

// EventKind enumerates the inputs of Transition.
type EventKind uint8

const (
	EventStart EventKind = iota
	EventDestinationReady
	EventProgress
	EventExhausted
	EventFinishSent
	EventHalt
	EventResume
	EventForce
)

// Event drives a transition. Cursor is set for EventProgress and Target for EventForce.
type Event struct {
	Kind   EventKind
	Cursor []byte
	Target Stage
}

// Transition computes the next state. It never mutates s. The stage only
// moves forward except through EventForce.
func Transition(s State, ev Event) (State, error) {
	next := s
	next.Cursor = bytes.Clone(s.Cursor)

	switch ev.Kind {
	case EventStart:
		if s.Stage != Pending {
			return s, invalid(s, ev)
		}
		next.Stage = WaitingForDestination

	case EventDestinationReady:
		if s.Stage != WaitingForDestination {
			return s, invalid(s, ev)
		}
		next = enter(next, FirstMigrating)

	case EventProgress:
		if !s.Stage.Migrating() || ev.Cursor == nil {
			return s, invalid(s, ev)
		}
		next.Cursor = bytes.Clone(ev.Cursor)

	case EventExhausted:
		if !s.Stage.Migrating() {
			return s, invalid(s, ev)
		}
		next = enter(next, s.Stage+1)

	case EventFinishSent:
		if s.Stage != SignalMigrationFinish {
			return s, invalid(s, ev)
		}
		next.Stage = MigrationDone
		next.Cursor = nil

	case EventHalt:
		if s.Stage == MigrationDone {
			return s, invalid(s, ev)
		}
		// mid-domain halts wait for the boundary
		if s.Stage.Migrating() && !s.Halted {
			next.HaltRequested = true
		} else {
			next.Halted = true
		}

	case EventResume:
		next.Halted = false
		next.HaltRequested = false

	case EventForce:
		if ev.Target > MigrationDone {
			return s, invalid(s, ev)
		}
		next.Stage = ev.Target
		next.Cursor = nil

	default:
		return s, invalid(s, ev)
	}
	return next, nil
}

// enter moves to a new stage at a domain boundary, applying a pending halt.
func enter(s State, to Stage) State {
	s.Stage = to
	s.Cursor = nil
	if s.HaltRequested {
		s.Halted = true
		s.HaltRequested = false
	}
	return s
}

func invalid(s State, ev Event) error {
	return fmt.Errorf("%w: event %d in stage %s", core.ErrInvalidTransition, ev.Kind, s.Stage)
}

// TransitionDestination applies a control message to the destination stage.
// Repeated messages are accepted without effect.
func TransitionDestination(s DestinationStage, to DestinationStage) (DestinationStage, error) {
	if to < s {
		return s, fmt.Errorf("%w: destination %s to %s", core.ErrInvalidTransition, s, to)
	}
	return to, nil
}
