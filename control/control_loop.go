package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/diffdrive/logging"
	"go.viam.com/diffdrive/utils"
)

// MaxLoopFrequency is the highest cycle rate a Loop accepts, in Hz.
const MaxLoopFrequency = 1000.0

// Steppable is driven once per loop period. Update must not block; a returned error marks the
// cycle as failed but never stops the loop.
type Steppable interface {
	Update(ctx context.Context) error
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Frequency float64 `json:"frequency_hz" yaml:"frequency_hz"`
}

// Period returns the duration of one cycle.
func (cfg LoopConfig) Period() time.Duration {
	return time.Duration(float64(time.Second) / cfg.Frequency)
}

// Loop invokes a Steppable at a fixed period. Cycles never overlap: a cycle that overruns the
// period delays the next tick rather than running concurrently with it.
type Loop struct {
	cfg    LoopConfig
	dt     time.Duration
	target Steppable
	clock  clock.Clock
	logger logging.Logger

	mu      sync.Mutex
	workers utils.StoppableWorkers
	ticker  *clock.Ticker

	cycles atomic.Uint64
	failed atomic.Uint64
}

// NewLoop constructs a loop for the given target. A nil clock uses the wall clock.
func NewLoop(logger logging.Logger, cfg LoopConfig, target Steppable, clk clock.Clock) (*Loop, error) {
	if cfg.Frequency <= 0 || cfg.Frequency > MaxLoopFrequency {
		return nil, errors.Errorf("loop frequency must be in (0, %v]Hz, got %v", MaxLoopFrequency, cfg.Frequency)
	}
	if target == nil {
		return nil, errors.New("cannot create a control loop without a target")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		cfg:    cfg,
		dt:     cfg.Period(),
		target: target,
		clock:  clk,
		logger: logger,
	}, nil
}

// Start starts the loop.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers != nil {
		return errors.New("control loop already running")
	}
	l.logger.Infof("running loop at %1.4fHz (%v)", l.cfg.Frequency, l.dt)

	// The ticker is created before the worker starts so that a mock clock can be advanced
	// as soon as Start returns.
	l.ticker = l.clock.Ticker(l.dt)
	ticker := l.ticker
	l.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			l.step(ctx)
		}
	})
	return nil
}

func (l *Loop) step(ctx context.Context) {
	l.cycles.Inc()
	if err := l.target.Update(ctx); err != nil {
		l.failed.Inc()
		l.logger.CDebugw(ctx, "control cycle failed", "error", err, "cycle", l.cycles.Load())
	}
}

// Stop stops the loop and waits for the running cycle to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers == nil {
		return
	}
	l.logger.Debug("closing loop")
	l.ticker.Stop()
	l.workers.Stop()
	l.workers = nil
}

// Running reports whether the loop has been started and not stopped.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers != nil
}

// Cycles returns how many cycles have run.
func (l *Loop) Cycles() uint64 {
	return l.cycles.Load()
}

// FailedCycles returns how many cycles returned an error.
func (l *Loop) FailedCycles() uint64 {
	return l.failed.Load()
}

// Period returns the loop period.
func (l *Loop) Period() time.Duration {
	return l.dt
}
