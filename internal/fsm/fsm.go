package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateListening State = "listening"
)

const (
	EventStart   Event = "start"
	EventStarted Event = "started"
	EventEnd     Event = "end"
	EventResult  Event = "result"
	EventStop    Event = "stop"
	EventFail    Event = "fail"
)

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle, StateStarting, StateListening:
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}

	// stop and fail always settle the session back to idle.
	if event == EventStop || event == EventFail {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateStarting, nil
		case EventEnd, EventResult:
			// late engine callbacks after stop are tolerated.
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateStarting:
		switch event {
		case EventStarted:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		switch event {
		case EventStart:
			return StateStarting, nil
		case EventEnd, EventResult:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
