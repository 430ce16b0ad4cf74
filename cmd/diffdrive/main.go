// Package main runs a differential drive controller against simulated wheels. Commands are read
// as JSON lines from stdin and odometry is written as JSON lines to stdout. Logs go to stderr.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/diffdrive/components/base/diffdrive"
	"go.viam.com/diffdrive/components/wheel"
	"go.viam.com/diffdrive/components/wheel/fake"
	"go.viam.com/diffdrive/config"
	"go.viam.com/diffdrive/control"
	"go.viam.com/diffdrive/logging"
	"go.viam.com/diffdrive/odometry"
	"go.viam.com/diffdrive/publisher"
	"go.viam.com/diffdrive/utils"
)

const (
	// Flags.
	flagConfig   = "config"
	flagDebug    = "debug"
	flagDuration = "duration"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "diffdrive",
		Usage: "run a differential drive controller",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "drive simulated wheels from commands read on stdin",
				UsageText: `echo '{"linear": 0.5, "angular": 0.1}' | diffdrive run --config robot.json`,
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE`",
					},
					&cli.DurationFlag{
						Name:  flagDuration,
						Usage: "stop after this long; run until interrupted if unset",
					},
				},
				Action: runAction,
			},
			{
				Name:  "validate",
				Usage: "check a configuration file",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE`",
					},
				},
				Action: validateAction,
			},
		},
	}
}

// newLogger logs to the app's error writer so that stdout carries only published messages.
func newLogger(c *cli.Context) logging.Logger {
	level := logging.INFO
	if c.Bool(flagDebug) {
		level = logging.DEBUG
	}
	return logging.NewWriterLogger("diffdrive", level, c.App.ErrWriter)
}

func validateAction(c *cli.Context) error {
	logger := newLogger(c)
	if _, err := config.Read(c.Context, c.Path(flagConfig), logger); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "config ok")
	return nil
}

func runAction(c *cli.Context) error {
	logger := newLogger(c)
	//nolint:errcheck
	defer logger.Sync()
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Read(ctx, c.Path(flagConfig), logger)
	if err != nil {
		return err
	}
	if !c.Bool(flagDebug) {
		level, err := cfg.Level()
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}

	if d := c.Duration(flagDuration); d > 0 {
		var cancelTimeout func()
		ctx, cancelTimeout = context.WithTimeout(ctx, d)
		defer cancelTimeout()
	}
	return run(ctx, cfg, c.App.Reader, c.App.Writer, clock.New(), logger)
}

// run drives the controller until ctx is done, publishing to out unless a file output is
// configured. Input ending does not stop the controller; without fresh commands it brings the base
// to rest.
func run(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, clk clock.Clock, logger logging.Logger) (err error) {
	var sink publisher.Sink = publisher.NewJSONLinesSink(out)
	if cfg.Output != nil {
		file := publisher.NewFileSink(*cfg.Output)
		defer func() {
			err = multierr.Combine(err, file.Close())
		}()
		sink = file
	}
	pub := publisher.NewRealtime(logger.Sublogger("publisher"), sink)
	defer pub.Close()

	ctrl := diffdrive.NewController(logger.Sublogger("controller"), clk, pub)
	defer func() {
		err = multierr.Combine(err, ctrl.Shutdown(context.Background()))
	}()
	if err := ctrl.Configure(ctx, cfg.Controller); err != nil {
		return err
	}
	deps, err := simulatedWheels(cfg, clk, logger.Sublogger("wheels"))
	if err != nil {
		return err
	}
	if err := ctrl.Activate(ctx, deps); err != nil {
		return err
	}

	loop, err := control.NewLoop(logger.Sublogger("loop"), cfg.Loop(), ctrl, clk)
	if err != nil {
		return err
	}

	inputDone := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		defer close(inputDone)
		readCommands(ctx, in, ctrl, logger)
	})

	if err := loop.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	loop.Stop()

	estimate := ctrl.Estimate()
	logger.Infow("stopped",
		"cycles", loop.Cycles(),
		"failed_cycles", loop.FailedCycles(),
		"halts", ctrl.HaltCount(),
		"dropped_messages", pub.Dropped(),
		"x", estimate.Pose.X,
		"y", estimate.Pose.Y,
		"heading", estimate.Pose.Heading)

	select {
	case <-inputDone:
	default:
		logger.Debug("input still open, not waiting for it")
	}
	return nil
}

func simulatedWheels(cfg *config.Config, clk clock.Clock, logger logging.Logger) (wheel.Dependencies, error) {
	deps := wheel.Dependencies{}
	names := append(append([]string{}, cfg.Controller.LeftWheelNames...), cfg.Controller.RightWheelNames...)
	for _, name := range names {
		deps[name] = fake.NewWheel(name, clk, logger.Sublogger(name))
	}
	for _, name := range cfg.Simulation.UnavailableWheels {
		w, err := utils.AssertType[*fake.Wheel](deps[name])
		if err != nil {
			return nil, errors.Wrapf(err, "simulated wheel %q", name)
		}
		w.SetUnavailable(true)
	}
	return deps, nil
}

// inputCommand is one line of input. A line carrying a pose, an odometry reset or a halt does
// only that; any other line is a velocity command.
type inputCommand struct {
	Linear        float64          `json:"linear"`
	Angular       float64          `json:"angular"`
	Pose          *odometry.Pose2D `json:"pose,omitempty"`
	ResetOdometry bool             `json:"reset_odometry,omitempty"`
	Halt          bool             `json:"halt,omitempty"`
}

func readCommands(ctx context.Context, in io.Reader, ctrl *diffdrive.Controller, logger logging.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cmd inputCommand
		if err := json.Unmarshal(line, &cmd); err != nil {
			logger.CWarnw(ctx, "ignoring malformed command", "line", string(line), "error", err)
			continue
		}
		if err := applyCommand(ctx, ctrl, cmd); err != nil {
			logger.CWarnw(ctx, "command rejected", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.CWarnw(ctx, "failed reading commands", "error", err)
		return
	}
	logger.CDebug(ctx, "input closed")
}

func applyCommand(ctx context.Context, ctrl *diffdrive.Controller, cmd inputCommand) error {
	switch {
	case cmd.Halt:
		return errors.Wrap(ctrl.Halt(ctx), "halt")
	case cmd.ResetOdometry:
		ctrl.RequestOdometryReset()
		return nil
	case cmd.Pose != nil:
		ctrl.RequestPose(*cmd.Pose)
		return nil
	default:
		return ctrl.SetCommand(diffdrive.CommandTwist{Linear: cmd.Linear, Angular: cmd.Angular})
	}
}
