package diffdrive

import (
	"github.com/pkg/errors"
)

// State is a lifecycle state of a Controller.
type State int

// The controller lifecycle. Only an active controller drives its wheels; a halted one holds
// them at zero until it is deactivated.
const (
	StateUninitialized State = iota
	StateConfigured
	StateActive
	StateHalted
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateActive:
		return "active"
	case StateHalted:
		return "halted"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// holdsWheels reports whether wheel handles are resolved in this state.
func (s State) holdsWheels() bool {
	return s == StateActive || s == StateHalted
}

var (
	// ErrInvalidTransition is returned when a lifecycle operation is not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrHardwareFault is returned from Update when a wheel failed to be read or written.
	ErrHardwareFault = errors.New("wheel hardware fault")
)

func newTransitionError(from, to State) error {
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
}
