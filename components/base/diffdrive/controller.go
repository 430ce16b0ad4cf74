// Package diffdrive implements a controller for a differential drive base: it limits commanded body
// velocities, turns them into wheel setpoints and integrates wheel feedback into odometry.
package diffdrive

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/diffdrive/components/wheel"
	"go.viam.com/diffdrive/control"
	"go.viam.com/diffdrive/logging"
	"go.viam.com/diffdrive/odometry"
	"go.viam.com/diffdrive/publisher"
)

type wheelHandle struct {
	wheel     wheel.Wheel
	available bool

	lastPos float64
	primed  bool
}

// wheelSide is every wheel on one side of the base. They are commanded in lockstep.
type wheelSide struct {
	name    string
	handles []*wheelHandle

	// accumulated mean displacement of the side's wheels, in radians
	position float64
}

func (s *wheelSide) available() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, h := range s.handles {
		if h.available {
			n++
		}
	}
	return n
}

// A Controller drives a differential drive base. Update is called once per control cycle by a single
// goroutine; commands and odometry requests may arrive from any goroutine without blocking it.
type Controller struct {
	logger    logging.Logger
	clock     clock.Clock
	publisher publisher.Publisher

	commands   commandBuffer
	odomReq    atomic.Pointer[odometryRequest]
	estimate   atomic.Pointer[Estimate]
	halted     atomic.Bool
	haltCount  atomic.Uint64
	faultCount atomic.Uint64

	mu    sync.Mutex
	state State

	cfg                           *Config
	geometry                      WheelGeometry
	timeout                       time.Duration
	linearLimiter, angularLimiter *control.SpeedLimiter
	odom                          *odometry.Odometry
	poseCov, twistCov             publisher.Covariance
	odomFrame, baseFrame          string

	left, right    *wheelSide
	history        commandHistory
	previousUpdate time.Time
	stale          bool
}

// NewController returns an unconfigured controller. A nil clock uses the wall clock and a nil
// publisher disables publishing.
func NewController(logger logging.Logger, clk clock.Clock, pub publisher.Publisher) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		logger:    logger,
		clock:     clk,
		publisher: pub,
		state:     StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Configure validates cfg and prepares the limiters and odometry.
func (c *Controller) Configure(ctx context.Context, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninitialized && c.state != StateConfigured {
		return newTransitionError(c.state, StateConfigured)
	}
	if _, err := cfg.Validate("diff_drive"); err != nil {
		return err
	}
	linearLimiter, err := control.NewSpeedLimiter(cfg.Linear)
	if err != nil {
		return errors.Wrap(err, "invalid linear limits")
	}
	angularLimiter, err := control.NewSpeedLimiter(cfg.Angular)
	if err != nil {
		return errors.Wrap(err, "invalid angular limits")
	}

	geometry := cfg.Geometry()
	odom := odometry.New(cfg.VelocityRollingWindowSize)
	odom.SetWheelParams(geometry.EffectiveSeparation(), geometry.LeftRadius(), geometry.RightRadius())

	c.cfg = &cfg
	c.geometry = geometry
	c.timeout = cfg.CommandTimeout()
	c.linearLimiter = linearLimiter
	c.angularLimiter = angularLimiter
	c.odom = odom
	c.poseCov, c.twistCov = cfg.Covariances()
	c.odomFrame, c.baseFrame = cfg.Frames()
	c.state = StateConfigured

	c.logger.CInfow(ctx, "configured",
		"left", cfg.LeftWheelNames,
		"right", cfg.RightWheelNames,
		"open_loop", cfg.OpenLoop,
		"feedback", cfg.Feedback(),
		"timeout", c.timeout)
	return nil
}

// Activate resolves the configured wheels from deps and starts driving them. A side on which no
// wheel can be resolved fails activation; a side missing only some of its wheels continues
// with the rest.
func (c *Controller) Activate(ctx context.Context, deps wheel.Dependencies) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConfigured {
		return newTransitionError(c.state, StateActive)
	}

	left, leftErr := c.resolveSide(ctx, "left", c.cfg.LeftWheelNames, deps)
	right, rightErr := c.resolveSide(ctx, "right", c.cfg.RightWheelNames, deps)
	if err := multierr.Combine(leftErr, rightErr); err != nil {
		return multierr.Combine(
			errors.Wrap(err, "failed to activate"),
			c.disableSide(ctx, left),
			c.disableSide(ctx, right),
		)
	}

	now := c.clock.Now()
	c.left, c.right = left, right
	c.history.reset()
	c.stale = true
	c.odom.Reset()
	c.odom.Init(now)
	c.previousUpdate = now
	c.halted.Store(false)
	c.estimate.Store(&Estimate{Stamp: now})
	c.state = StateActive
	c.logger.CInfow(ctx, "activated", "left_wheels", left.available(), "right_wheels", right.available())
	return nil
}

func (c *Controller) resolveSide(
	ctx context.Context,
	name string,
	wheelNames []string,
	deps wheel.Dependencies,
) (*wheelSide, error) {
	side := &wheelSide{name: name}
	var errs error
	for _, wheelName := range wheelNames {
		w, err := c.resolveWheel(ctx, wheelName, deps)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		side.handles = append(side.handles, &wheelHandle{wheel: w, available: true})
	}
	if len(side.handles) == 0 {
		if errs == nil {
			return side, errors.Errorf("no %s wheels configured", name)
		}
		return side, errors.Wrapf(errs, "no %s wheels available", name)
	}
	if errs != nil {
		c.logger.CWarnw(ctx, "continuing with reduced redundancy",
			"side", name,
			"available", len(side.handles),
			"configured", len(wheelNames),
			"error", errs)
	}
	return side, nil
}

func (c *Controller) resolveWheel(ctx context.Context, name string, deps wheel.Dependencies) (wheel.Wheel, error) {
	w, err := wheel.FromDependencies(deps, name)
	if err != nil {
		return nil, err
	}
	if !c.cfg.OpenLoop {
		pos, vel, err := w.State(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read wheel %q", name)
		}
		if math.IsNaN(pos) || math.IsNaN(vel) {
			return nil, newInvalidFeedbackError(name)
		}
	}
	if enabler, ok := w.(wheel.Enabler); ok {
		if err := enabler.Enable(ctx); err != nil {
			return nil, errors.Wrapf(err, "failed to enable wheel %q", name)
		}
	}
	return w, nil
}

func newInvalidFeedbackError(name string) error {
	return errors.Wrapf(wheel.ErrUnavailable, "wheel %q reported NaN feedback", name)
}

// Deactivate stops the wheels and releases them.
func (c *Controller) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.holdsWheels() {
		return newTransitionError(c.state, StateConfigured)
	}
	err := c.stopWheels(ctx)
	c.releaseWheels()
	c.state = StateConfigured
	c.logger.CInfow(ctx, "deactivated")
	return err
}

// Cleanup drops the configuration.
func (c *Controller) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConfigured {
		return newTransitionError(c.state, StateUninitialized)
	}
	c.dropConfig()
	c.state = StateUninitialized
	c.logger.CDebug(ctx, "cleaned up")
	return nil
}

// Error stops any held wheels and returns the controller to its unconfigured state.
func (c *Controller) Error(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFinalized {
		return newTransitionError(c.state, StateUninitialized)
	}
	var err error
	if c.state.holdsWheels() {
		err = c.stopWheels(ctx)
		c.releaseWheels()
	}
	c.dropConfig()
	c.logger.CWarnw(ctx, "controller reset after error", "from", c.state)
	c.state = StateUninitialized
	return err
}

// Shutdown stops any held wheels and finalizes the controller. Shutting down twice is a no-op.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFinalized {
		return nil
	}
	var err error
	if c.state.holdsWheels() {
		err = c.stopWheels(ctx)
		c.releaseWheels()
	}
	c.dropConfig()
	c.state = StateFinalized
	c.logger.CInfow(ctx, "shut down")
	return err
}

func (c *Controller) releaseWheels() {
	c.left, c.right = nil, nil
	c.history.reset()
	c.commands.clear()
	c.halted.Store(false)
}

func (c *Controller) dropConfig() {
	c.cfg = nil
	c.linearLimiter, c.angularLimiter = nil, nil
	c.odom = nil
}

// SetCommand hands a new command to the control goroutine. A zero stamp is replaced by the
// current time. Commands with non-finite values are rejected.
func (c *Controller) SetCommand(cmd CommandTwist) error {
	if !isFinite(cmd.Linear) || !isFinite(cmd.Angular) {
		return errors.Errorf("command must be finite, got linear %v angular %v", cmd.Linear, cmd.Angular)
	}
	if cmd.Stamp.IsZero() {
		cmd.Stamp = c.clock.Now()
	}
	c.commands.store(cmd)
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// SetVelocity commands linear.Y m/s forward and angular.Z rad/s counterclockwise.
func (c *Controller) SetVelocity(ctx context.Context, linear, angular r3.Vector, extra map[string]interface{}) error {
	c.logger.CDebugf(ctx, "received a SetVelocity with linear.Y: %.4f (m/s), angular.Z: %.4f (rad/s)", linear.Y, angular.Z)
	return c.SetCommand(CommandTwist{Linear: linear.Y, Angular: angular.Z})
}

// Stop commands the base to come to rest, subject to the configured limits.
func (c *Controller) Stop(ctx context.Context, extra map[string]interface{}) error {
	return c.SetCommand(CommandTwist{})
}

// RequestPose replaces the odometry pose at the start of the next cycle.
func (c *Controller) RequestPose(pose odometry.Pose2D) {
	c.odomReq.Store(&odometryRequest{pose: pose})
}

// RequestOdometryReset zeroes the odometry at the start of the next cycle.
func (c *Controller) RequestOdometryReset() {
	c.odomReq.Store(&odometryRequest{reset: true})
}

// Estimate returns the pose and twist computed by the most recent cycle.
func (c *Controller) Estimate() Estimate {
	if e := c.estimate.Load(); e != nil {
		return *e
	}
	return Estimate{}
}

// IsHalted reports whether the controller has halted its wheels after a fault.
func (c *Controller) IsHalted() bool {
	return c.halted.Load()
}

// HaltCount returns how many times the controller has entered the halted state.
func (c *Controller) HaltCount() uint64 {
	return c.haltCount.Load()
}

// FaultCount returns how many cycles reported a wheel fault.
func (c *Controller) FaultCount() uint64 {
	return c.faultCount.Load()
}

// Update runs one control cycle. A halted controller does nothing. A wheel fault is returned as
// ErrHardwareFault combined with the per-wheel errors, so errors.Is matches both; the controller
// halts if a side has no wheels left.
func (c *Controller) Update(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateActive:
	case StateHalted:
		return nil
	case StateUninitialized, StateConfigured, StateFinalized:
		return errors.Errorf("cannot update a controller that is %s", c.state)
	}

	now := c.clock.Now()
	c.applyOdometryRequest(ctx)

	cmd := c.effectiveCommand(ctx, now)
	dt := now.Sub(c.previousUpdate)
	c.previousUpdate = now

	last, secondToLast := c.history.previous(), c.history.beforePrevious()
	linear, _ := c.linearLimiter.Limit(cmd.Linear, last.Linear, secondToLast.Linear, dt)
	angular, _ := c.angularLimiter.Limit(cmd.Angular, last.Angular, secondToLast.Angular, dt)
	c.history.push(CommandTwist{Linear: linear, Angular: angular, Stamp: now})

	if c.cfg.PublishLimitedVelocity {
		c.publish(publisher.NewTwistMessage(now, c.baseFrame, linear, angular))
	}

	leftVel, rightVel := c.geometry.Inverse(linear, angular)
	faults := multierr.Combine(
		c.writeSide(ctx, c.left, leftVel),
		c.writeSide(ctx, c.right, rightVel),
		c.updateOdometry(ctx, now, linear, angular),
	)
	c.publishOdometry(now)

	if faults == nil {
		return nil
	}
	c.faultCount.Inc()
	if c.left.available() == 0 || c.right.available() == 0 {
		c.logger.CErrorw(ctx, "no wheels left on a side, halting",
			"left_wheels", c.left.available(),
			"right_wheels", c.right.available())
		faults = multierr.Append(faults, c.halt(ctx))
	}
	return multierr.Combine(ErrHardwareFault, faults)
}

// effectiveCommand returns the latest command, or a stop if there is none or it is too old.
func (c *Controller) effectiveCommand(ctx context.Context, now time.Time) CommandTwist {
	cmd := c.commands.load()
	stale := cmd == nil || now.Sub(cmd.Stamp) > c.timeout
	if stale != c.stale {
		c.stale = stale
		if stale {
			c.logger.CWarnw(ctx, "command timed out, stopping", "timeout", c.timeout)
		} else {
			c.logger.CInfow(ctx, "receiving commands", "linear", cmd.Linear, "angular", cmd.Angular)
		}
	}
	if stale {
		return CommandTwist{Stamp: now}
	}
	return *cmd
}

func (c *Controller) applyOdometryRequest(ctx context.Context) {
	req := c.odomReq.Swap(nil)
	if req == nil {
		return
	}
	if req.reset {
		c.odom.Reset()
		c.logger.CInfow(ctx, "odometry reset")
		return
	}
	c.odom.SetPose(req.pose)
	c.logger.CInfow(ctx, "odometry pose set", "x", req.pose.X, "y", req.pose.Y, "heading", req.pose.Heading)
}

func (c *Controller) writeSide(ctx context.Context, side *wheelSide, radPerSec float64) error {
	if side == nil {
		return nil
	}
	var errs error
	for _, h := range side.handles {
		if !h.available {
			continue
		}
		if err := h.wheel.SetVelocity(ctx, radPerSec, nil); err != nil {
			err = errors.Wrapf(err, "failed to command wheel %q", h.wheel.Name())
			c.markUnavailable(ctx, side, h, err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (c *Controller) markUnavailable(ctx context.Context, side *wheelSide, h *wheelHandle, err error) {
	h.available = false
	c.logger.CErrorw(ctx, "wheel unavailable",
		"wheel", h.wheel.Name(),
		"side", side.name,
		"remaining", side.available(),
		"error", err)
}

func (c *Controller) updateOdometry(ctx context.Context, now time.Time, linear, angular float64) error {
	if c.cfg.OpenLoop {
		c.odom.UpdateOpenLoop(linear, angular, now)
		return nil
	}
	left, leftOK, leftErr := c.readSide(ctx, c.left)
	right, rightOK, rightErr := c.readSide(ctx, c.right)
	if leftOK && rightOK {
		if c.cfg.Feedback() == FeedbackVelocity {
			c.odom.UpdateFromVelocity(left, right, now)
		} else {
			c.odom.Update(left, right, now)
		}
	}
	return multierr.Combine(leftErr, rightErr)
}

// readSide returns the mean velocity of the side's available wheels, or in position mode the
// side's accumulated position. Position is tracked through per wheel increments so that losing
// a wheel does not move the side.
func (c *Controller) readSide(ctx context.Context, side *wheelSide) (float64, bool, error) {
	velocityFeedback := c.cfg.Feedback() == FeedbackVelocity
	var errs error
	var sum float64
	var n int
	for _, h := range side.handles {
		if !h.available {
			continue
		}
		pos, vel, err := h.wheel.State(ctx)
		if err == nil && (math.IsNaN(pos) || math.IsNaN(vel)) {
			err = newInvalidFeedbackError(h.wheel.Name())
		}
		if err != nil {
			err = errors.Wrapf(err, "failed to read wheel %q", h.wheel.Name())
			c.markUnavailable(ctx, side, h, err)
			errs = multierr.Append(errs, err)
			continue
		}
		if velocityFeedback {
			sum += vel
			n++
			continue
		}
		if h.primed {
			sum += pos - h.lastPos
			n++
		}
		h.lastPos, h.primed = pos, true
	}

	if velocityFeedback {
		if n == 0 {
			return 0, false, errs
		}
		return sum / float64(n), true, errs
	}
	if n > 0 {
		side.position += sum / float64(n)
	}
	return side.position, side.available() > 0, errs
}

func (c *Controller) publishOdometry(now time.Time) {
	pose, twist := c.odom.Pose(), c.odom.Twist()
	c.estimate.Store(&Estimate{Stamp: now, Pose: pose, Twist: twist})
	c.publish(publisher.NewOdometryMessage(now, c.odomFrame, c.baseFrame, pose, twist, c.poseCov, c.twistCov))
	if c.cfg.OdomTFEnabled() {
		c.publish(publisher.NewTransformMessage(now, c.odomFrame, c.baseFrame, pose))
	}
}

func (c *Controller) publish(msg publisher.Message) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(msg)
}

// Halt zeroes every available wheel and stops driving them until the controller is deactivated.
// Halting again only re-zeroes the wheels.
func (c *Controller) Halt(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halt(ctx)
}

func (c *Controller) halt(ctx context.Context) error {
	if !c.state.holdsWheels() {
		return newTransitionError(c.state, StateHalted)
	}
	err := c.stopWheels(ctx)
	if c.state == StateActive {
		c.state = StateHalted
		c.halted.Store(true)
		c.haltCount.Inc()
		c.logger.CWarnw(ctx, "halted", "halt_count", c.haltCount.Load())
	}
	return err
}

func (c *Controller) stopWheels(ctx context.Context) error {
	return multierr.Combine(
		c.writeSide(ctx, c.left, 0),
		c.writeSide(ctx, c.right, 0),
		c.disableSide(ctx, c.left),
		c.disableSide(ctx, c.right),
	)
}

func (c *Controller) disableSide(ctx context.Context, side *wheelSide) error {
	if side == nil {
		return nil
	}
	var errs error
	for _, h := range side.handles {
		if !h.available {
			continue
		}
		if enabler, ok := h.wheel.(wheel.Enabler); ok {
			if err := enabler.Disable(ctx); err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "failed to disable wheel %q", h.wheel.Name()))
			}
		}
	}
	return errs
}
