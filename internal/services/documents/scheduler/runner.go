package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/louisbranch/docwatch/internal/platform/logging"
	"github.com/louisbranch/docwatch/internal/platform/timeouts"
)

const defaultInterval = time.Hour

var (
	// ErrTickInProgress indicates another tick holds the guard.
	ErrTickInProgress = errors.New("reminder tick already in progress")
	// ErrRunnerStopped indicates the runner is shutting down.
	ErrRunnerStopped = errors.New("reminder runner stopped")
)

// Ticker runs one reminder pass.
type Ticker interface {
	Tick(ctx context.Context) (TickReport, error)
}

// Guard is a lease shared by every process that may tick, such as a Redis
// lock. Acquire reports ok=false when another process holds it.
type Guard interface {
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// RunnerConfig controls the tick schedule.
type RunnerConfig struct {
	Interval   time.Duration
	RunOnStart bool
	// Guard is optional; the runner always applies an in-process guard.
	Guard Guard
}

// Runner drives a Ticker on a fixed interval and serves manual triggers.
// At most one tick runs at a time.
type Runner struct {
	ticker     Ticker
	interval   time.Duration
	runOnStart bool
	guard      Guard
	metrics    *Metrics
	log        logrus.FieldLogger

	running  atomic.Bool
	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

// NewRunner builds a Runner for ticker.
func NewRunner(ticker Ticker, cfg RunnerConfig, metrics *Metrics, log logrus.FieldLogger) (*Runner, error) {
	if ticker == nil {
		return nil, fmt.Errorf("ticker is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Runner{
		ticker:     ticker,
		interval:   cfg.Interval,
		runOnStart: cfg.RunOnStart,
		guard:      cfg.Guard,
		metrics:    metrics,
		log:        log,
	}, nil
}

// Run schedules ticks until ctx is done, then waits for the in-flight tick
// before returning.
func (r *Runner) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := cronLogger{log: r.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(cron.Every(r.interval), cron.FuncJob(r.scheduledTick))
	c.Start()
	r.log.WithField("interval", r.interval.String()).Info("reminder scheduler started")

	if r.runOnStart {
		go r.scheduledTick()
	}

	<-ctx.Done()
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	<-c.Stop().Done()
	r.inflight.Wait()
	r.log.Info("reminder scheduler stopped")
	return nil
}

// TriggerTick runs a tick now unless one is already running here or, with a
// Guard, anywhere else.
func (r *Runner) TriggerTick(ctx context.Context) (TickReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !r.begin() {
		return TickReport{}, ErrRunnerStopped
	}
	defer r.inflight.Done()

	if !r.running.CompareAndSwap(false, true) {
		r.metrics.observeTick(tickSkipped, 0)
		return TickReport{}, ErrTickInProgress
	}
	defer r.running.Store(false)

	if r.guard != nil {
		release, ok, err := r.guard.Acquire(ctx)
		if err != nil {
			return TickReport{}, fmt.Errorf("acquire tick guard: %w", err)
		}
		if !ok {
			r.metrics.observeTick(tickSkipped, 0)
			return TickReport{}, ErrTickInProgress
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Shutdown)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				r.log.WithError(err).Warn("release tick guard")
			}
		}()
	}
	return r.ticker.Tick(ctx)
}

func (r *Runner) scheduledTick() {
	_, err := r.TriggerTick(context.Background())
	switch {
	case err == nil:
	case errors.Is(err, ErrTickInProgress):
		r.log.Info("reminder tick skipped: another tick is running")
	case errors.Is(err, ErrRunnerStopped):
	default:
		r.log.WithError(err).Error("reminder tick failed")
	}
}

func (r *Runner) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.inflight.Add(1)
	return true
}
