// Package config defines the structures to configure the drive program and its controller.
package config

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/diffdrive/components/base/diffdrive"
	"go.viam.com/diffdrive/control"
	"go.viam.com/diffdrive/logging"
	"go.viam.com/diffdrive/publisher"
)

// DefaultFrequency is the control loop rate used when none is configured, in Hz.
const DefaultFrequency = 50.0

// Config describes the whole program: how often to run the controller and how to build it.
type Config struct {
	ConfigFilePath string `json:"-" yaml:"-"`

	FrequencyHz float64          `json:"frequency_hz,omitempty" yaml:"frequency_hz,omitempty"`
	LogLevel    string           `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Controller  diffdrive.Config `json:"controller" yaml:"controller"`
	Simulation  Simulation       `json:"simulation" yaml:"simulation"`

	// Output, when set, sends published messages to a rotating file instead of stdout.
	Output *publisher.FileConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// Simulation configures the simulated wheels the program drives when no hardware is attached.
type Simulation struct {
	// UnavailableWheels start out unavailable, as if their hardware never came up.
	UnavailableWheels []string `json:"unavailable_wheels,omitempty" yaml:"unavailable_wheels,omitempty"`
}

// Loop returns the control loop configuration.
func (cfg *Config) Loop() control.LoopConfig {
	return control.LoopConfig{Frequency: cfg.FrequencyHz}
}

// Level returns the configured log level, defaulting to info.
func (cfg *Config) Level() (logging.Level, error) {
	if cfg.LogLevel == "" {
		return logging.INFO, nil
	}
	return logging.LevelFromString(cfg.LogLevel)
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if cfg.FrequencyHz <= 0 || cfg.FrequencyHz > control.MaxLoopFrequency {
		return utils.NewConfigValidationError("frequency_hz",
			errors.Errorf("must be in (0, %v], got %v", control.MaxLoopFrequency, cfg.FrequencyHz))
	}
	if _, err := cfg.Level(); err != nil {
		return utils.NewConfigValidationError("log_level", err)
	}
	if _, err := cfg.Controller.Validate("controller"); err != nil {
		return err
	}
	if cfg.Output != nil {
		if cfg.Output.Path == "" {
			return utils.NewConfigValidationFieldRequiredError("output", "path")
		}
		if cfg.Output.MaxSizeMB < 0 || cfg.Output.MaxBackups < 0 {
			return utils.NewConfigValidationError("output", errors.New("max_size_mb and max_backups cannot be negative"))
		}
	}
	configured := map[string]bool{}
	for _, name := range cfg.Controller.LeftWheelNames {
		configured[name] = true
	}
	for _, name := range cfg.Controller.RightWheelNames {
		configured[name] = true
	}
	for _, name := range cfg.Simulation.UnavailableWheels {
		if !configured[name] {
			return utils.NewConfigValidationError("simulation",
				errors.Errorf("unavailable wheel %q is not a configured wheel", name))
		}
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.FrequencyHz == 0 {
		cfg.FrequencyHz = DefaultFrequency
	}
}
