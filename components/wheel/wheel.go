// Package wheel defines the hardware handles a drive controller commands and reads: one per
// physical wheel, reporting its angular position and velocity and accepting an angular velocity
// setpoint.
package wheel

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/diffdrive/utils"
)

// ErrUnavailable is returned, possibly wrapped, by a wheel that can no longer be read or written.
var ErrUnavailable = errors.New("wheel unavailable")

// A Wheel is a single driven wheel joint.
type Wheel interface {
	// Name returns the joint name the wheel was registered under.
	Name() string

	// State returns the wheel's angular position in radians and angular velocity in rad/s.
	State(ctx context.Context) (position, velocity float64, err error)

	// SetVelocity commands an angular velocity setpoint in rad/s.
	SetVelocity(ctx context.Context, radPerSec float64, extra map[string]interface{}) error
}

// An Enabler is a wheel with an operation mode that must be switched on before it follows
// setpoints and switched off when the base halts.
type Enabler interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// Dependencies maps joint names to the hardware handles registered for them.
type Dependencies map[string]interface{}

// FromDependencies is a helper for getting the named wheel from a collection of dependencies.
func FromDependencies(deps Dependencies, name string) (Wheel, error) {
	res, ok := deps[name]
	if !ok {
		return nil, utils.DependencyNotFoundError(name)
	}
	w, ok := res.(Wheel)
	if !ok {
		return nil, utils.DependencyTypeError[Wheel](name, res)
	}
	return w, nil
}

// NewUnavailableError returns an error wrapping ErrUnavailable for the named wheel.
func NewUnavailableError(name string) error {
	return errors.Wrapf(ErrUnavailable, "wheel %q", name)
}

// IsUnavailable reports whether err signals an unavailable wheel.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
