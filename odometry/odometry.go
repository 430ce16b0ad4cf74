// Package odometry integrates wheel motion, or commanded body velocity, into a planar pose and
// body twist estimate for a differential drive base.
package odometry

import (
	"math"
	"time"

	"go.viam.com/diffdrive/utils"
)

const (
	// DefaultVelocityRollingWindowSize is the number of samples averaged into the velocity
	// estimate when no size is configured.
	DefaultVelocityRollingWindowSize = 10

	// Updates closer together than this are not integrated.
	minUpdateInterval = 100 * time.Microsecond

	// Below this heading increment the arc formula is replaced by a midpoint step.
	exactIntegrationThreshold = 1e-6
)

// Pose2D is a planar pose in the odometry frame. Heading is accumulated and never wrapped.
type Pose2D struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// Twist2D is a body-frame velocity.
type Twist2D struct {
	Linear  float64 `json:"linear"`
	Angular float64 `json:"angular"`
}

// Odometry accumulates a pose from successive wheel or command updates. It is not safe for
// concurrent use; a single control goroutine owns it.
type Odometry struct {
	timestamp time.Time

	pose  Pose2D
	twist Twist2D

	wheelSeparation  float64
	leftWheelRadius  float64
	rightWheelRadius float64

	leftWheelOldPos  float64
	rightWheelOldPos float64
	wheelsPrimed     bool

	linearAccumulator  *utils.RollingAverage
	angularAccumulator *utils.RollingAverage
}

// New returns an Odometry with the given velocity rolling window size. Sizes below one fall back
// to DefaultVelocityRollingWindowSize.
func New(velocityRollingWindowSize int) *Odometry {
	if velocityRollingWindowSize < 1 {
		velocityRollingWindowSize = DefaultVelocityRollingWindowSize
	}
	return &Odometry{
		linearAccumulator:  utils.NewRollingAverage(velocityRollingWindowSize),
		angularAccumulator: utils.NewRollingAverage(velocityRollingWindowSize),
	}
}

// SetWheelParams sets the effective wheel separation and per-side radii, multipliers included.
func (o *Odometry) SetWheelParams(wheelSeparation, leftWheelRadius, rightWheelRadius float64) {
	o.wheelSeparation = wheelSeparation
	o.leftWheelRadius = leftWheelRadius
	o.rightWheelRadius = rightWheelRadius
}

// Init sets the integration timestamp and clears the velocity estimate.
func (o *Odometry) Init(t time.Time) {
	o.resetAccumulators()
	o.timestamp = t
}

// Update integrates absolute wheel positions in radians. The first call after a reset only
// records the positions. It returns false if nothing was integrated.
func (o *Odometry) Update(leftPos, rightPos float64, t time.Time) bool {
	leftCurPos := leftPos * o.leftWheelRadius
	rightCurPos := rightPos * o.rightWheelRadius
	if !o.wheelsPrimed {
		o.leftWheelOldPos = leftCurPos
		o.rightWheelOldPos = rightCurPos
		o.wheelsPrimed = true
		o.timestamp = t
		return false
	}

	dt := t.Sub(o.timestamp)
	if dt < minUpdateInterval {
		return false
	}

	leftDist := leftCurPos - o.leftWheelOldPos
	rightDist := rightCurPos - o.rightWheelOldPos
	o.leftWheelOldPos = leftCurPos
	o.rightWheelOldPos = rightCurPos

	o.integrateWheelDistances(leftDist, rightDist, t, dt)
	return true
}

// UpdateFromVelocity integrates wheel angular velocities in rad/s over the time since the last
// update. It returns false if nothing was integrated.
func (o *Odometry) UpdateFromVelocity(leftVel, rightVel float64, t time.Time) bool {
	dt := t.Sub(o.timestamp)
	if dt < minUpdateInterval {
		return false
	}
	dts := dt.Seconds()
	o.integrateWheelDistances(leftVel*o.leftWheelRadius*dts, rightVel*o.rightWheelRadius*dts, t, dt)
	return true
}

func (o *Odometry) integrateWheelDistances(leftDist, rightDist float64, t time.Time, dt time.Duration) {
	linear := (rightDist + leftDist) * 0.5
	angular := (rightDist - leftDist) / o.wheelSeparation

	o.integrateExact(linear, angular)
	o.timestamp = t

	dts := dt.Seconds()
	o.linearAccumulator.Add(linear / dts)
	o.angularAccumulator.Add(angular / dts)
	o.twist = Twist2D{
		Linear:  o.linearAccumulator.Average(),
		Angular: o.angularAccumulator.Average(),
	}
}

// UpdateOpenLoop integrates a commanded body twist over the time since the last update. The
// reported twist is the command itself.
func (o *Odometry) UpdateOpenLoop(linear, angular float64, t time.Time) {
	o.twist = Twist2D{Linear: linear, Angular: angular}

	dt := t.Sub(o.timestamp).Seconds()
	o.timestamp = t
	if dt <= 0 {
		return
	}
	o.integrateExact(linear*dt, angular*dt)
}

// integrateMidpoint advances the pose by a displacement along the average of the start and
// end headings.
func (o *Odometry) integrateMidpoint(linear, angular float64) {
	direction := o.pose.Heading + angular*0.5

	o.pose.X += linear * math.Cos(direction)
	o.pose.Y += linear * math.Sin(direction)
	o.pose.Heading += angular
}

// integrateExact advances the pose along a circular arc, falling back to a midpoint step when
// the heading change is too small to divide by.
func (o *Odometry) integrateExact(linear, angular float64) {
	if math.Abs(angular) < exactIntegrationThreshold {
		o.integrateMidpoint(linear, angular)
		return
	}

	headingOld := o.pose.Heading
	r := linear / angular
	o.pose.Heading += angular
	o.pose.X += r * (math.Sin(o.pose.Heading) - math.Sin(headingOld))
	o.pose.Y += -r * (math.Cos(o.pose.Heading) - math.Cos(headingOld))
}

// Reset zeroes the pose and the velocity estimate. The next position update only records wheel
// positions.
func (o *Odometry) Reset() {
	o.pose = Pose2D{}
	o.twist = Twist2D{}
	o.wheelsPrimed = false
	o.resetAccumulators()
}

// SetPose replaces the current pose, leaving the velocity estimate untouched.
func (o *Odometry) SetPose(p Pose2D) {
	o.pose = p
}

func (o *Odometry) resetAccumulators() {
	o.linearAccumulator.Reset()
	o.angularAccumulator.Reset()
}

// Pose returns the current pose.
func (o *Odometry) Pose() Pose2D { return o.pose }

// Twist returns the current velocity estimate.
func (o *Odometry) Twist() Twist2D { return o.twist }

// X returns the x position in meters.
func (o *Odometry) X() float64 { return o.pose.X }

// Y returns the y position in meters.
func (o *Odometry) Y() float64 { return o.pose.Y }

// Heading returns the accumulated heading in radians.
func (o *Odometry) Heading() float64 { return o.pose.Heading }

// Linear returns the linear velocity estimate in m/s.
func (o *Odometry) Linear() float64 { return o.twist.Linear }

// Angular returns the angular velocity estimate in rad/s.
func (o *Odometry) Angular() float64 { return o.twist.Angular }

// Timestamp returns the time of the last integration.
func (o *Odometry) Timestamp() time.Time { return o.timestamp }
