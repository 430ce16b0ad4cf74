// Package control contains the command limiting and cycle scheduling used by the drive controllers.
package control

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/diffdrive/utils"
)

// LimiterConfig bounds one command axis. Each stage is only applied when its Has* flag is set.
// A nil minimum defaults to the negated maximum.
type LimiterConfig struct {
	HasVelocityLimits     bool     `json:"has_velocity_limits" yaml:"has_velocity_limits"`
	MinVelocity           *float64 `json:"min_velocity,omitempty" yaml:"min_velocity,omitempty"`
	MaxVelocity           float64  `json:"max_velocity" yaml:"max_velocity"`
	HasAccelerationLimits bool     `json:"has_acceleration_limits" yaml:"has_acceleration_limits"`
	MinAcceleration       *float64 `json:"min_acceleration,omitempty" yaml:"min_acceleration,omitempty"`
	MaxAcceleration       float64  `json:"max_acceleration" yaml:"max_acceleration"`
	HasJerkLimits         bool     `json:"has_jerk_limits" yaml:"has_jerk_limits"`
	MinJerk               *float64 `json:"min_jerk,omitempty" yaml:"min_jerk,omitempty"`
	MaxJerk               float64  `json:"max_jerk" yaml:"max_jerk"`
}

// Validate ensures every enabled bound pair is ordered.
func (cfg *LimiterConfig) Validate(path string) error {
	check := func(enabled bool, name string, minV *float64, maxV float64) error {
		if !enabled {
			return nil
		}
		lo := orNegated(minV, maxV)
		if math.IsNaN(lo) || math.IsNaN(maxV) {
			return errors.Errorf("%s: %s limits must be numbers", path, name)
		}
		if lo > maxV {
			return errors.Errorf("%s: min_%s (%v) must not exceed max_%s (%v)", path, name, lo, name, maxV)
		}
		return nil
	}
	if err := check(cfg.HasVelocityLimits, "velocity", cfg.MinVelocity, cfg.MaxVelocity); err != nil {
		return err
	}
	if err := check(cfg.HasAccelerationLimits, "acceleration", cfg.MinAcceleration, cfg.MaxAcceleration); err != nil {
		return err
	}
	return check(cfg.HasJerkLimits, "jerk", cfg.MinJerk, cfg.MaxJerk)
}

func orNegated(minV *float64, maxV float64) float64 {
	if minV == nil {
		return -maxV
	}
	return *minV
}

// SpeedLimiter bounds a scalar command's value, its rate of change and the rate of change of
// that rate. It keeps no history; callers supply the two previously sent values.
type SpeedLimiter struct {
	hasVelocityLimits     bool
	hasAccelerationLimits bool
	hasJerkLimits         bool

	minVelocity, maxVelocity         float64
	minAcceleration, maxAcceleration float64
	minJerk, maxJerk                 float64
}

// NewSpeedLimiter returns a limiter for the given bounds.
func NewSpeedLimiter(cfg LimiterConfig) (*SpeedLimiter, error) {
	if err := cfg.Validate("speed_limiter"); err != nil {
		return nil, err
	}
	return &SpeedLimiter{
		hasVelocityLimits:     cfg.HasVelocityLimits,
		hasAccelerationLimits: cfg.HasAccelerationLimits,
		hasJerkLimits:         cfg.HasJerkLimits,
		minVelocity:           orNegated(cfg.MinVelocity, cfg.MaxVelocity),
		maxVelocity:           cfg.MaxVelocity,
		minAcceleration:       orNegated(cfg.MinAcceleration, cfg.MaxAcceleration),
		maxAcceleration:       cfg.MaxAcceleration,
		minJerk:               orNegated(cfg.MinJerk, cfg.MaxJerk),
		maxJerk:               cfg.MaxJerk,
	}, nil
}

// Limit applies jerk, acceleration and velocity limits in that order. v0 is the previous value
// sent, v1 the one before it. The returned scale is limited/desired, or 1 when desired is zero.
// A non-positive dt skips the jerk and acceleration stages.
func (sl *SpeedLimiter) Limit(desired, v0, v1 float64, dt time.Duration) (float64, float64) {
	v := desired
	if dt > 0 {
		v = sl.LimitJerk(v, v0, v1, dt)
		v = sl.LimitAcceleration(v, v0, dt)
	}
	v = sl.LimitVelocity(v)

	if desired == 0 {
		return v, 1
	}
	return v, v / desired
}

// LimitVelocity clamps v to the velocity bounds.
func (sl *SpeedLimiter) LimitVelocity(v float64) float64 {
	if !sl.hasVelocityLimits {
		return v
	}
	return utils.Clamp(v, sl.minVelocity, sl.maxVelocity)
}

// LimitAcceleration clamps the change from v0 to v to the acceleration bounds over dt.
func (sl *SpeedLimiter) LimitAcceleration(v, v0 float64, dt time.Duration) float64 {
	if !sl.hasAccelerationLimits || dt <= 0 {
		return v
	}
	dts := dt.Seconds()
	dv := utils.Clamp(v-v0, sl.minAcceleration*dts, sl.maxAcceleration*dts)
	return v0 + dv
}

// LimitJerk clamps the change in velocity increments (v-v0 versus v0-v1) to the jerk bounds.
func (sl *SpeedLimiter) LimitJerk(v, v0, v1 float64, dt time.Duration) float64 {
	if !sl.hasJerkLimits || dt <= 0 {
		return v
	}
	dts := dt.Seconds()
	dv := v - v0
	dv0 := v0 - v1
	dt2 := 2 * dts * dts
	da := utils.Clamp(dv-dv0, sl.minJerk*dt2, sl.maxJerk*dt2)
	return v0 + dv0 + da
}
