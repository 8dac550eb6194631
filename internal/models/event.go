package models

import (
	"fmt"
	"strings"
)

// State is an EC2 instance lifecycle state as reported by EventBridge.
type State string

const (
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateTerminated State = "terminated"
)

// UnsupportedStateError indicates a lifecycle state this tool does not handle.
type UnsupportedStateError struct {
	State string
}

func (e *UnsupportedStateError) Error() string {
	return fmt.Sprintf("unsupported instance state %q", e.State)
}

// ParseState normalizes a raw state string from an event payload.
// Matching is case-insensitive; unrecognized states return an
// UnsupportedStateError.
func ParseState(raw string) (State, error) {
	switch State(strings.ToLower(strings.TrimSpace(raw))) {
	case StateRunning:
		return StateRunning, nil
	case StateStopping:
		return StateStopping, nil
	case StateTerminated:
		return StateTerminated, nil
	default:
		return "", &UnsupportedStateError{State: raw}
	}
}

// StateChangeEvent is the trigger payload for one notification.
// InstanceID and State come from the EventBridge detail object
// ("instance-id" and "state" keys); Region comes from the envelope.
type StateChangeEvent struct {
	InstanceID string `json:"instance-id"`
	State      string `json:"state"`
	Region     string `json:"-"`
}
