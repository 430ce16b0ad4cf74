// Package fake implements a simulated wheel that integrates its velocity setpoint over time.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/diffdrive/components/wheel"
	"go.viam.com/diffdrive/logging"
)

var (
	_ = wheel.Wheel(&Wheel{})
	_ = wheel.Enabler(&Wheel{})
)

// Wheel tracks a simulated wheel position. It follows its setpoint instantly and advances its
// position by velocity times the clock time elapsed since the last access.
type Wheel struct {
	name   string
	clock  clock.Clock
	logger logging.Logger

	mu          sync.Mutex
	position    float64
	velocity    float64
	lastUpdate  time.Time
	enabled     bool
	unavailable bool
	readErr     error
	writeErr    error
	writes      int
}

// NewWheel returns a fake wheel at rest at position zero.
func NewWheel(name string, clk clock.Clock, logger logging.Logger) *Wheel {
	if clk == nil {
		clk = clock.New()
	}
	return &Wheel{
		name:       name,
		clock:      clk,
		logger:     logger,
		lastUpdate: clk.Now(),
	}
}

// Name returns the wheel's joint name.
func (w *Wheel) Name() string {
	return w.name
}

// must hold mu.
func (w *Wheel) advance() {
	now := w.clock.Now()
	w.position += w.velocity * now.Sub(w.lastUpdate).Seconds()
	w.lastUpdate = now
}

// State returns the simulated position and velocity.
func (w *Wheel) State(ctx context.Context) (float64, float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unavailable {
		return math.NaN(), math.NaN(), wheel.NewUnavailableError(w.name)
	}
	if w.readErr != nil {
		return math.NaN(), math.NaN(), w.readErr
	}
	w.advance()
	return w.position, w.velocity, nil
}

// SetVelocity sets the simulated velocity.
func (w *Wheel) SetVelocity(ctx context.Context, radPerSec float64, extra map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unavailable {
		return wheel.NewUnavailableError(w.name)
	}
	if w.writeErr != nil {
		return w.writeErr
	}
	w.advance()
	w.velocity = radPerSec
	w.writes++
	return nil
}

// Enable switches the wheel into its active operation mode.
func (w *Wheel) Enable(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unavailable {
		return wheel.NewUnavailableError(w.name)
	}
	w.enabled = true
	return nil
}

// Disable switches the wheel out of its active operation mode.
func (w *Wheel) Disable(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unavailable {
		return wheel.NewUnavailableError(w.name)
	}
	w.enabled = false
	return nil
}

// SetUnavailable simulates the wheel's hardware dropping out, or coming back.
func (w *Wheel) SetUnavailable(unavailable bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		w.logger.Debugw("fake wheel availability changed", "wheel", w.name, "unavailable", unavailable)
	}
	w.advance()
	w.unavailable = unavailable
}

// FailReads makes State return err until called again with nil.
func (w *Wheel) FailReads(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readErr = err
}

// FailWrites makes SetVelocity return err until called again with nil.
func (w *Wheel) FailWrites(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writeErr = err
}

// SetPosition moves the simulated wheel to a new absolute position.
func (w *Wheel) SetPosition(position float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	w.position = position
}

// Velocity returns the last setpoint accepted.
func (w *Wheel) Velocity() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.velocity
}

// Enabled returns whether the wheel is in its active operation mode.
func (w *Wheel) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

// Writes returns how many setpoints have been accepted.
func (w *Wheel) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}
