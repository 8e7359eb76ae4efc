package runner

import (
	"errors"
	"fmt"
)

// ErrUnknownState is returned when decoding an unrecognized state name.
var ErrUnknownState = errors.New("unknown runner state")

// State is a runner lifecycle state.
type State int

// Runner states. INIT moves to RUNNING, which ends in COMPLETED or
// STOPPED_DEBUG. FAILED is reachable from INIT and RUNNING.
const (
	StateInit State = iota
	StateRunning
	StateCompleted
	StateStoppedDebug
	StateFailed
)

var stateNames = [...]string{
	StateInit:         "INIT",
	StateRunning:      "RUNNING",
	StateCompleted:    "COMPLETED",
	StateStoppedDebug: "STOPPED_DEBUG",
	StateFailed:       "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}

	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStoppedDebug || s == StateFailed
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)

			return nil
		}
	}

	return fmt.Errorf("%w: %q", ErrUnknownState, text)
}
