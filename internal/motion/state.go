package motion

import (
	"errors"
	"fmt"
)

// State is the controller's operating mode.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateRecording
	StateReplaying
	StateMonitoring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateRecording:
		return "recording"
	case StateReplaying:
		return "replaying"
	case StateMonitoring:
		return "monitoring"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateMonitoring; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

var (
	// ErrBusy is returned when a record, replay or monitor loop is running.
	ErrBusy = errors.New("controller busy")
	// ErrNoRecording is returned by Replay with an empty buffer.
	ErrNoRecording = errors.New("no recorded frames")
	// ErrConfigMismatch is returned when motor ids, branches and frames
	// disagree in length.
	ErrConfigMismatch = errors.New("motor configuration mismatch")
)
