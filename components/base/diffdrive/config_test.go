package diffdrive

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func validConfig() Config {
	return Config{
		LeftWheelNames:  []string{"left"},
		RightWheelNames: []string{"right"},
		WheelSeparation: 0.5,
		WheelRadius:     0.1,
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	deps, err := cfg.Validate("path")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, deps, test.ShouldResemble, []string{"left", "right"})

	for _, tc := range []struct {
		name   string
		modify func(cfg *Config)
		errMsg string
	}{
		{"no left wheels", func(cfg *Config) { cfg.LeftWheelNames = nil }, `"left_wheel_names" is required`},
		{"no right wheels", func(cfg *Config) { cfg.RightWheelNames = nil }, `"right_wheel_names" is required`},
		{
			"mismatched wheels",
			func(cfg *Config) { cfg.LeftWheelNames = []string{"a", "b"} },
			"left and right need to have the same number of wheels, not 2 vs 1",
		},
		{"no separation", func(cfg *Config) { cfg.WheelSeparation = 0 }, `"wheel_separation" is required`},
		{"no radius", func(cfg *Config) { cfg.WheelRadius = 0 }, `"wheel_radius" is required`},
		{"negative radius", func(cfg *Config) { cfg.WheelRadius = -0.1 }, "wheel_radius must be a positive number"},
		{
			"negative multiplier",
			func(cfg *Config) { cfg.LeftWheelRadiusMultiplier = -1 },
			"left_wheel_radius_multiplier must be a positive number",
		},
		{"bad feedback", func(cfg *Config) { cfg.FeedbackType = "torque" }, "feedback_type must be"},
		{
			"short covariance",
			func(cfg *Config) { cfg.PoseCovarianceDiagonal = []float64{1, 2} },
			"pose_covariance_diagonal needs 6 values, got 2",
		},
		{"negative timeout", func(cfg *Config) { cfg.CmdVelTimeoutMS = -1 }, "cmd_vel_timeout_ms cannot be negative"},
		{
			"inverted limits",
			func(cfg *Config) {
				lo := 2.0
				cfg.Angular = limiterWithVelocity(&lo, 1)
			},
			"min_velocity (2) must not exceed max_velocity (1)",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(&cfg)
			_, err := cfg.Validate("path")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := validConfig()
	test.That(t, cfg.Geometry(), test.ShouldResemble, WheelGeometry{
		Separation:            0.5,
		Radius:                0.1,
		SeparationMultiplier:  1,
		LeftRadiusMultiplier:  1,
		RightRadiusMultiplier: 1,
	})
	test.That(t, cfg.CommandTimeout(), test.ShouldEqual, 500*time.Millisecond)
	test.That(t, cfg.Feedback(), test.ShouldEqual, FeedbackPosition)
	test.That(t, cfg.OdomTFEnabled(), test.ShouldBeTrue)
	odomFrame, baseFrame := cfg.Frames()
	test.That(t, odomFrame, test.ShouldEqual, "odom")
	test.That(t, baseFrame, test.ShouldEqual, "base_link")
	pose, twist := cfg.Covariances()
	test.That(t, pose.Diagonal(), test.ShouldResemble, [6]float64{})
	test.That(t, twist.Diagonal(), test.ShouldResemble, [6]float64{})

	disabled := false
	cfg.EnableOdomTF = &disabled
	cfg.CmdVelTimeoutMS = 250
	cfg.OdomFrameID = "world"
	cfg.FeedbackType = FeedbackVelocity
	test.That(t, cfg.OdomTFEnabled(), test.ShouldBeFalse)
	test.That(t, cfg.CommandTimeout(), test.ShouldEqual, 250*time.Millisecond)
	test.That(t, cfg.Feedback(), test.ShouldEqual, FeedbackVelocity)
	odomFrame, _ = cfg.Frames()
	test.That(t, odomFrame, test.ShouldEqual, "world")
}

func TestConfigFromAttributes(t *testing.T) {
	attrs := map[string]interface{}{
		"left_wheel_names":              []interface{}{"fl", "rl"},
		"right_wheel_names":             []interface{}{"fr", "rr"},
		"wheel_separation":              0.4,
		"wheel_radius":                  0.05,
		"left_wheel_radius_multiplier":  1.02,
		"open_loop":                     true,
		"enable_odom_tf":                false,
		"cmd_vel_timeout_ms":            200.0,
		"velocity_rolling_window_size":  5,
		"pose_covariance_diagonal":      []interface{}{0.001, 0.001, 1e6, 1e6, 1e6, 0.03},
		"right_wheel_radius_multiplier": 0.98,
		"linear": map[string]interface{}{
			"has_velocity_limits": true,
			"min_velocity":        -0.5,
			"max_velocity":        1.0,
		},
	}
	cfg, err := ConfigFromAttributes(attrs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.LeftWheelNames, test.ShouldResemble, []string{"fl", "rl"})
	test.That(t, cfg.WheelSeparation, test.ShouldEqual, 0.4)
	test.That(t, cfg.LeftWheelRadiusMultiplier, test.ShouldEqual, 1.02)
	test.That(t, cfg.OpenLoop, test.ShouldBeTrue)
	test.That(t, cfg.OdomTFEnabled(), test.ShouldBeFalse)
	test.That(t, cfg.CommandTimeout(), test.ShouldEqual, 200*time.Millisecond)
	test.That(t, cfg.VelocityRollingWindowSize, test.ShouldEqual, 5)
	test.That(t, len(cfg.PoseCovarianceDiagonal), test.ShouldEqual, 6)
	test.That(t, cfg.Linear.HasVelocityLimits, test.ShouldBeTrue)
	test.That(t, *cfg.Linear.MinVelocity, test.ShouldEqual, -0.5)
	test.That(t, cfg.Linear.MaxVelocity, test.ShouldEqual, 1.0)
	test.That(t, cfg.Angular.HasVelocityLimits, test.ShouldBeFalse)

	_, err = cfg.Validate("attrs")
	test.That(t, err, test.ShouldBeNil)

	_, err = ConfigFromAttributes(map[string]interface{}{"wheel_radius": "big"})
	test.That(t, err, test.ShouldNotBeNil)
}
