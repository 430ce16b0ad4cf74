package control

import (
	"math"
	"testing"
	"time"

	"go.viam.com/test"
)

func ptr(f float64) *float64 { return &f }

func TestLimiterConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  LimiterConfig
		err  string
	}{
		{"disabled stages are not checked", LimiterConfig{MinVelocity: ptr(5), MaxVelocity: 1}, ""},
		{"symmetric default", LimiterConfig{HasVelocityLimits: true, MaxVelocity: 1}, ""},
		{
			"inverted velocity",
			LimiterConfig{HasVelocityLimits: true, MinVelocity: ptr(2), MaxVelocity: 1},
			"min_velocity (2) must not exceed max_velocity (1)",
		},
		{
			"negative max acceleration without min",
			LimiterConfig{HasAccelerationLimits: true, MaxAcceleration: -1},
			"min_acceleration (1) must not exceed max_acceleration (-1)",
		},
		{
			"nan jerk",
			LimiterConfig{HasJerkLimits: true, MaxJerk: math.NaN()},
			"jerk limits must be numbers",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSpeedLimiter(tc.cfg)
			if tc.err == "" {
				test.That(t, err, test.ShouldBeNil)
			} else {
				test.That(t, err, test.ShouldNotBeNil)
				test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
			}
		})
	}
}

func TestLimitVelocityBounds(t *testing.T) {
	sl, err := NewSpeedLimiter(LimiterConfig{HasVelocityLimits: true, MinVelocity: ptr(-0.5), MaxVelocity: 1.0})
	test.That(t, err, test.ShouldBeNil)

	for desired := -5.0; desired <= 5.0; desired += 0.25 {
		v, _ := sl.Limit(desired, 0, 0, 10*time.Millisecond)
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, -0.5)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, 1.0)
	}

	v, scale := sl.Limit(2.0, 0, 0, 10*time.Millisecond)
	test.That(t, v, test.ShouldEqual, 1.0)
	test.That(t, scale, test.ShouldEqual, 0.5)

	v, scale = sl.Limit(0.3, 0, 0, 10*time.Millisecond)
	test.That(t, v, test.ShouldEqual, 0.3)
	test.That(t, scale, test.ShouldEqual, 1.0)
}

func TestLimitAcceleration(t *testing.T) {
	sl, err := NewSpeedLimiter(LimiterConfig{
		HasAccelerationLimits: true,
		MinAcceleration:       ptr(-2.0),
		MaxAcceleration:       1.0,
	})
	test.That(t, err, test.ShouldBeNil)

	dt := 100 * time.Millisecond
	for _, prev := range []float64{-1, 0, 0.5, 3} {
		for desired := -5.0; desired <= 5.0; desired += 0.5 {
			v, _ := sl.Limit(desired, prev, prev, dt)
			accel := (v - prev) / dt.Seconds()
			test.That(t, accel, test.ShouldBeLessThanOrEqualTo, 1.0+1e-9)
			test.That(t, accel, test.ShouldBeGreaterThanOrEqualTo, -2.0-1e-9)
		}
	}

	v, scale := sl.Limit(1.0, 0, 0, dt)
	test.That(t, v, test.ShouldAlmostEqual, 0.1, 1e-9)
	test.That(t, scale, test.ShouldAlmostEqual, 0.1, 1e-9)

	v, _ = sl.Limit(-1.0, 0, 0, dt)
	test.That(t, v, test.ShouldAlmostEqual, -0.2, 1e-9)
}

func TestLimitJerk(t *testing.T) {
	sl, err := NewSpeedLimiter(LimiterConfig{HasJerkLimits: true, MaxJerk: 5.0})
	test.That(t, err, test.ShouldBeNil)

	// At rest, the jerk envelope for a 0.1s step is 5*2*0.01 = 0.1 of velocity change.
	v, _ := sl.Limit(1.0, 0, 0, 100*time.Millisecond)
	test.That(t, v, test.ShouldAlmostEqual, 0.1, 1e-9)

	// Keeping the previous increment is always allowed.
	v, _ = sl.Limit(0.3, 0.2, 0.1, 100*time.Millisecond)
	test.That(t, v, test.ShouldAlmostEqual, 0.3, 1e-9)

	// Reversing an increment is bounded too.
	v, _ = sl.Limit(-1.0, 0.2, 0.1, 100*time.Millisecond)
	test.That(t, v, test.ShouldAlmostEqual, 0.2, 1e-9)
}

func TestLimitStageOrder(t *testing.T) {
	sl, err := NewSpeedLimiter(LimiterConfig{
		HasVelocityLimits:     true,
		MaxVelocity:           0.05,
		HasAccelerationLimits: true,
		MaxAcceleration:       1.0,
		HasJerkLimits:         true,
		MaxJerk:               100.0,
	})
	test.That(t, err, test.ShouldBeNil)

	// jerk allows 2.0, acceleration allows 0.1, velocity caps at 0.05
	v, _ := sl.Limit(10, 0, 0, 100*time.Millisecond)
	test.That(t, v, test.ShouldAlmostEqual, 0.05, 1e-9)
}

func TestLimitZeroElapsed(t *testing.T) {
	sl, err := NewSpeedLimiter(LimiterConfig{
		HasVelocityLimits:     true,
		MaxVelocity:           1.0,
		HasAccelerationLimits: true,
		MaxAcceleration:       0.1,
		HasJerkLimits:         true,
		MaxJerk:               0.1,
	})
	test.That(t, err, test.ShouldBeNil)

	for _, dt := range []time.Duration{0, -time.Second} {
		v, scale := sl.Limit(0.7, 0, 0, dt)
		test.That(t, v, test.ShouldEqual, 0.7)
		test.That(t, scale, test.ShouldEqual, 1.0)

		v, _ = sl.Limit(3, 0, 0, dt)
		test.That(t, v, test.ShouldEqual, 1.0)
		test.That(t, math.IsNaN(v), test.ShouldBeFalse)
	}
}

func TestLimitDisabled(t *testing.T) {
	sl, err := NewSpeedLimiter(LimiterConfig{})
	test.That(t, err, test.ShouldBeNil)
	v, scale := sl.Limit(42, -3, 7, time.Millisecond)
	test.That(t, v, test.ShouldEqual, 42.0)
	test.That(t, scale, test.ShouldEqual, 1.0)
}
