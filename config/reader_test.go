package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/diffdrive/logging"
)

const jsonConfig = `{
	"frequency_hz": 100,
	"controller": {
		"left_wheel_names": ["left"],
		"right_wheel_names": ["right"],
		"wheel_separation": 0.5,
		"wheel_radius": ${DIFFDRIVE_TEST_RADIUS},
		"linear": {"has_velocity_limits": true, "max_velocity": 1.5}
	}
}`

const yamlConfig = `
log_level: debug
controller:
  left_wheel_names: [front_left, rear_left]
  right_wheel_names: [front_right, rear_right]
  wheel_separation: 0.42
  wheel_radius: 0.07
  open_loop: true
  enable_odom_tf: false
  cmd_vel_timeout_ms: 250
  angular:
    has_acceleration_limits: true
    min_acceleration: -2
    max_acceleration: 3
simulation:
  unavailable_wheels: [rear_left]
`

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestReadJSON(t *testing.T) {
	t.Setenv("DIFFDRIVE_TEST_RADIUS", "0.1")
	logger := logging.NewTestLogger(t)
	path := writeFile(t, "robot.json", jsonConfig)

	cfg, err := Read(context.Background(), path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.FrequencyHz, test.ShouldEqual, 100.0)
	test.That(t, cfg.Loop().Frequency, test.ShouldEqual, 100.0)
	test.That(t, cfg.Controller.WheelRadius, test.ShouldEqual, 0.1)
	test.That(t, cfg.Controller.Linear.MaxVelocity, test.ShouldEqual, 1.5)
	test.That(t, cfg.Controller.OdomTFEnabled(), test.ShouldBeTrue)
	level, err := cfg.Level()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, logging.INFO)
}

func TestReadYAML(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := writeFile(t, "robot.yaml", yamlConfig)

	cfg, err := Read(context.Background(), path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.FrequencyHz, test.ShouldEqual, DefaultFrequency)
	test.That(t, cfg.Controller.LeftWheelNames, test.ShouldResemble, []string{"front_left", "rear_left"})
	test.That(t, cfg.Controller.OpenLoop, test.ShouldBeTrue)
	test.That(t, cfg.Controller.OdomTFEnabled(), test.ShouldBeFalse)
	test.That(t, cfg.Controller.CmdVelTimeoutMS, test.ShouldEqual, 250)
	test.That(t, *cfg.Controller.Angular.MinAcceleration, test.ShouldEqual, -2.0)
	test.That(t, cfg.Controller.Angular.MaxAcceleration, test.ShouldEqual, 3.0)
	test.That(t, cfg.Simulation.UnavailableWheels, test.ShouldResemble, []string{"rear_left"})
	level, err := cfg.Level()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, logging.DEBUG)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "nope.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromReaderValidate(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	_, err := FromReader(ctx, "somepath", strings.NewReader(""), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader(ctx, "somepath", strings.NewReader(`{"frequency_hz": "fast"}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode Config from json")

	_, err = FromReader(ctx, "somepath", strings.NewReader(`{}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"left_wheel_names" is required`)

	valid := `{"frequency_hz": %s, "controller": {"left_wheel_names": ["l"], "right_wheel_names": ["r"],
		"wheel_separation": 0.5, "wheel_radius": 0.1}%s}`
	fill := func(freq, extra string) string {
		return strings.Replace(strings.Replace(valid, "%s", freq, 1), "%s", extra, 1)
	}

	_, err = FromReader(ctx, "somepath", strings.NewReader(fill("2000", "")), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "frequency_hz")

	_, err = FromReader(ctx, "somepath", strings.NewReader(fill("-1", "")), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromReader(ctx, "somepath", strings.NewReader(fill("20", `, "log_level": "loud"`)), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "log_level")

	_, err = FromReader(ctx, "somepath", strings.NewReader(fill("20", `, "simulation": {"unavailable_wheels": ["x"]}`)), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unavailable wheel "x" is not a configured wheel`)

	_, err = FromReader(ctx, "somepath", strings.NewReader(fill("20", `, "output": {"max_size_mb": 5}`)), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"path" is required`)

	cfg, err := FromReader(ctx, "somepath", strings.NewReader(fill("20", `, "output": {"path": "/tmp/odom.jsonl"}`)), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Output.Path, test.ShouldEqual, "/tmp/odom.jsonl")

	cfg, err = FromReader(ctx, "somepath", strings.NewReader(fill("20", "")), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.FrequencyHz, test.ShouldEqual, 20.0)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "somepath")
}
