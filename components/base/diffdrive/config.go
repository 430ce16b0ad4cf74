package diffdrive

import (
	"fmt"
	"math"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/diffdrive/control"
	"go.viam.com/diffdrive/publisher"
)

// Feedback types read from the wheels in closed loop.
const (
	FeedbackPosition = "position"
	FeedbackVelocity = "velocity"
)

const (
	defaultCommandTimeout = 500 * time.Millisecond
	defaultOdomFrameID    = "odom"
	defaultBaseFrameID    = "base_link"
)

// Config is how you configure a differential drive controller.
type Config struct {
	LeftWheelNames  []string `json:"left_wheel_names" yaml:"left_wheel_names"`
	RightWheelNames []string `json:"right_wheel_names" yaml:"right_wheel_names"`

	WheelSeparation            float64 `json:"wheel_separation" yaml:"wheel_separation"`
	WheelRadius                float64 `json:"wheel_radius" yaml:"wheel_radius"`
	WheelSeparationMultiplier  float64 `json:"wheel_separation_multiplier,omitempty" yaml:"wheel_separation_multiplier,omitempty"`
	LeftWheelRadiusMultiplier  float64 `json:"left_wheel_radius_multiplier,omitempty" yaml:"left_wheel_radius_multiplier,omitempty"`
	RightWheelRadiusMultiplier float64 `json:"right_wheel_radius_multiplier,omitempty" yaml:"right_wheel_radius_multiplier,omitempty"`

	OpenLoop     bool   `json:"open_loop,omitempty" yaml:"open_loop,omitempty"`
	FeedbackType string `json:"feedback_type,omitempty" yaml:"feedback_type,omitempty"`

	EnableOdomTF            *bool     `json:"enable_odom_tf,omitempty" yaml:"enable_odom_tf,omitempty"`
	OdomFrameID             string    `json:"odom_frame_id,omitempty" yaml:"odom_frame_id,omitempty"`
	BaseFrameID             string    `json:"base_frame_id,omitempty" yaml:"base_frame_id,omitempty"`
	PoseCovarianceDiagonal  []float64 `json:"pose_covariance_diagonal,omitempty" yaml:"pose_covariance_diagonal,omitempty"`
	TwistCovarianceDiagonal []float64 `json:"twist_covariance_diagonal,omitempty" yaml:"twist_covariance_diagonal,omitempty"`

	CmdVelTimeoutMS           int  `json:"cmd_vel_timeout_ms,omitempty" yaml:"cmd_vel_timeout_ms,omitempty"`
	VelocityRollingWindowSize int  `json:"velocity_rolling_window_size,omitempty" yaml:"velocity_rolling_window_size,omitempty"`
	PublishLimitedVelocity    bool `json:"publish_limited_velocity,omitempty" yaml:"publish_limited_velocity,omitempty"`

	Linear  control.LimiterConfig `json:"linear" yaml:"linear"`
	Angular control.LimiterConfig `json:"angular" yaml:"angular"`
}

// Validate ensures all parts of the config are valid and returns the wheels it depends on.
func (cfg *Config) Validate(path string) ([]string, error) {
	var deps []string

	if len(cfg.LeftWheelNames) == 0 {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "left_wheel_names")
	}
	if len(cfg.RightWheelNames) == 0 {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "right_wheel_names")
	}
	if len(cfg.LeftWheelNames) != len(cfg.RightWheelNames) {
		return nil, utils.NewConfigValidationError(path,
			fmt.Errorf("left and right need to have the same number of wheels, not %d vs %d",
				len(cfg.LeftWheelNames), len(cfg.RightWheelNames)))
	}

	if cfg.WheelSeparation == 0 {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "wheel_separation")
	}
	if cfg.WheelRadius == 0 {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "wheel_radius")
	}
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"wheel_separation", cfg.WheelSeparation},
		{"wheel_radius", cfg.WheelRadius},
		{"wheel_separation_multiplier", cfg.WheelSeparationMultiplier},
		{"left_wheel_radius_multiplier", cfg.LeftWheelRadiusMultiplier},
		{"right_wheel_radius_multiplier", cfg.RightWheelRadiusMultiplier},
	} {
		// unset multipliers are zero and default to one
		if field.value < 0 || math.IsNaN(field.value) || math.IsInf(field.value, 0) {
			return nil, utils.NewConfigValidationError(path,
				errors.Errorf("%s must be a positive number, got %v", field.name, field.value))
		}
	}

	switch cfg.FeedbackType {
	case "", FeedbackPosition, FeedbackVelocity:
	default:
		return nil, utils.NewConfigValidationError(path,
			errors.Errorf("feedback_type must be %q or %q, got %q", FeedbackPosition, FeedbackVelocity, cfg.FeedbackType))
	}

	if n := len(cfg.PoseCovarianceDiagonal); n != 0 && n != 6 {
		return nil, utils.NewConfigValidationError(path,
			errors.Errorf("pose_covariance_diagonal needs 6 values, got %d", n))
	}
	if n := len(cfg.TwistCovarianceDiagonal); n != 0 && n != 6 {
		return nil, utils.NewConfigValidationError(path,
			errors.Errorf("twist_covariance_diagonal needs 6 values, got %d", n))
	}

	if cfg.CmdVelTimeoutMS < 0 {
		return nil, utils.NewConfigValidationError(path, errors.New("cmd_vel_timeout_ms cannot be negative"))
	}
	if cfg.VelocityRollingWindowSize < 0 {
		return nil, utils.NewConfigValidationError(path, errors.New("velocity_rolling_window_size cannot be negative"))
	}

	if err := cfg.Linear.Validate(path + ".linear"); err != nil {
		return nil, utils.NewConfigValidationError(path, err)
	}
	if err := cfg.Angular.Validate(path + ".angular"); err != nil {
		return nil, utils.NewConfigValidationError(path, err)
	}

	deps = append(deps, cfg.LeftWheelNames...)
	deps = append(deps, cfg.RightWheelNames...)
	return deps, nil
}

// Geometry returns the configured wheel geometry with unset multipliers defaulted to one.
func (cfg *Config) Geometry() WheelGeometry {
	return WheelGeometry{
		Separation:            cfg.WheelSeparation,
		Radius:                cfg.WheelRadius,
		SeparationMultiplier:  orDefault(cfg.WheelSeparationMultiplier, 1),
		LeftRadiusMultiplier:  orDefault(cfg.LeftWheelRadiusMultiplier, 1),
		RightRadiusMultiplier: orDefault(cfg.RightWheelRadiusMultiplier, 1),
	}
}

// CommandTimeout returns how old a command may get before it is replaced by a stop.
func (cfg *Config) CommandTimeout() time.Duration {
	if cfg.CmdVelTimeoutMS == 0 {
		return defaultCommandTimeout
	}
	return time.Duration(cfg.CmdVelTimeoutMS) * time.Millisecond
}

// Feedback returns the wheel feedback used in closed loop.
func (cfg *Config) Feedback() string {
	if cfg.FeedbackType == "" {
		return FeedbackPosition
	}
	return cfg.FeedbackType
}

// OdomTFEnabled returns whether a transform is published alongside odometry.
func (cfg *Config) OdomTFEnabled() bool {
	return cfg.EnableOdomTF == nil || *cfg.EnableOdomTF
}

// Frames returns the odometry and base frame ids.
func (cfg *Config) Frames() (odomFrame, baseFrame string) {
	odomFrame, baseFrame = cfg.OdomFrameID, cfg.BaseFrameID
	if odomFrame == "" {
		odomFrame = defaultOdomFrameID
	}
	if baseFrame == "" {
		baseFrame = defaultBaseFrameID
	}
	return odomFrame, baseFrame
}

// Covariances returns the configured pose and twist covariance matrices.
func (cfg *Config) Covariances() (pose, twist publisher.Covariance) {
	return covarianceFrom(cfg.PoseCovarianceDiagonal), covarianceFrom(cfg.TwistCovarianceDiagonal)
}

func covarianceFrom(diagonal []float64) publisher.Covariance {
	var diag [6]float64
	copy(diag[:], diagonal)
	return publisher.CovarianceFromDiagonal(diag)
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// ConfigFromAttributes decodes a generic attribute map, as found in a larger config file, into a Config.
func ConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	var conf Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &conf})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "failed to decode diff drive attributes")
	}
	return &conf, nil
}
