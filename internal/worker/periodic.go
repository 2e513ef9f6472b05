package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-scheduler/internal/clock"
	"github.com/spec-kit/ticket-scheduler/internal/lock"
	"github.com/spec-kit/ticket-scheduler/internal/observability"
)

// leaseReleaseTimeout bounds the lease release issued after every tick.
const leaseReleaseTimeout = 5 * time.Second

var (
	// ErrTickInProgress is returned by RunOnce while another tick of the same
	// task is running in this process.
	ErrTickInProgress = errors.New("tick already in progress")
	// ErrLeaseHeld is returned by RunOnce when another replica holds the lease.
	ErrLeaseHeld = errors.New("scheduler lease held elsewhere")
)

// TickReport counts per-item outcomes of a single tick.
type TickReport struct {
	Warned   int `json:"warned"`
	Closed   int `json:"closed"`
	Released int `json:"released"`
	Deleted  int `json:"deleted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Succeeded is the number of items that took effect.
func (r TickReport) Succeeded() int {
	return r.Warned + r.Closed + r.Released + r.Deleted
}

// Task is one scheduler pass.
type Task interface {
	Name() string
	Tick(ctx context.Context) (TickReport, error)
}

// Syncer is implemented by tasks that reconcile their records with the
// platform once, before the first tick.
type Syncer interface {
	Sync(ctx context.Context) (TickReport, error)
}

// PeriodicOptions configures a Periodic.
type PeriodicOptions struct {
	Interval time.Duration
	Locker   lock.Locker
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Clock    clock.Clock
}

// Periodic runs a Task on a fixed interval. Ticks never overlap, and a tick
// already running when Stop is called completes before Stop returns.
type Periodic struct {
	task     Task
	interval time.Duration
	locker   lock.Locker
	metrics  *observability.Metrics
	logger   *zap.Logger
	clock    clock.Clock

	tickMu   sync.Mutex
	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPeriodic wraps task. A missing locker falls back to an in-process one.
func NewPeriodic(task Task, opts PeriodicOptions) *Periodic {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Periodic{
		task:     task,
		interval: interval,
		locker:   locker,
		metrics:  opts.Metrics,
		logger:   logger.Named("scheduler").With(zap.String("scheduler", task.Name())),
		clock:    clk,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name returns the wrapped task's name.
func (p *Periodic) Name() string {
	return p.task.Name()
}

// Interval returns the tick period.
func (p *Periodic) Interval() time.Duration {
	return p.interval
}

// Start launches the loop. A task implementing Syncer is synced first; the
// first tick then runs immediately. Calling Start more than once has no
// effect.
func (p *Periodic) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.loop(ctx)
}

// Stop ends the loop and waits for an in-flight tick to finish.
func (p *Periodic) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	if p.started.Load() {
		<-p.done
	}
}

func (p *Periodic) loop(ctx context.Context) {
	defer close(p.done)
	p.logger.Info("scheduler started", zap.Duration("interval", p.interval))
	defer p.logger.Info("scheduler stopped")

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	if syncer, ok := p.task.(Syncer); ok {
		p.startupSync(ctx, syncer)
	}
	p.scheduledTick(ctx)
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-p.stop:
				return
			default:
			}
			p.scheduledTick(ctx)
		}
	}
}

func (p *Periodic) startupSync(ctx context.Context, syncer Syncer) {
	report, err := p.exclusive(ctx, func(syncCtx context.Context) (TickReport, error) {
		return p.safeRun(syncCtx, syncer.Sync)
	})
	switch {
	case errors.Is(err, ErrTickInProgress), errors.Is(err, ErrLeaseHeld):
		p.logger.Debug("sync skipped", zap.Error(err))
	case err != nil:
		p.logger.Error("sync failed", zap.Error(err))
	default:
		p.logger.Info("sync completed",
			zap.Int("released", report.Released),
			zap.Int("kept", report.Skipped),
			zap.Int("failed", report.Failed))
	}
}

func (p *Periodic) scheduledTick(ctx context.Context) {
	report, err := p.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrTickInProgress), errors.Is(err, ErrLeaseHeld):
		p.logger.Debug("tick skipped", zap.Error(err))
	case err != nil:
		p.logger.Error("tick failed", zap.Error(err))
	default:
		p.logger.Info("tick completed",
			zap.Int("succeeded", report.Succeeded()),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed))
	}
}

// RunOnce executes a single tick now. The tick context is detached from ctx
// cancellation and bounded by the interval so that shutdown lets the batch
// finish.
func (p *Periodic) RunOnce(ctx context.Context) (TickReport, error) {
	return p.exclusive(ctx, func(tickCtx context.Context) (TickReport, error) {
		started := p.clock.Now()
		report, err := p.safeRun(tickCtx, p.task.Tick)
		p.metrics.RecordTick(p.task.Name(), started, p.clock.Now().Sub(started), report.Succeeded(), report.Failed, err)
		return report, err
	})
}

// exclusive runs fn under the in-process tick mutex and the task lease.
func (p *Periodic) exclusive(ctx context.Context, fn func(context.Context) (TickReport, error)) (TickReport, error) {
	if !p.tickMu.TryLock() {
		p.metrics.RecordSkippedTick(p.task.Name())
		return TickReport{}, ErrTickInProgress
	}
	defer p.tickMu.Unlock()

	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.interval)
	defer cancel()

	lease, ok, err := p.locker.TryAcquire(tickCtx, "scheduler:"+p.task.Name(), p.interval)
	if err != nil {
		return TickReport{}, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		p.metrics.RecordSkippedTick(p.task.Name())
		return TickReport{}, ErrLeaseHeld
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseReleaseTimeout)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			p.logger.Warn("release lease", zap.Error(err))
		}
	}()

	return fn(tickCtx)
}

func (p *Periodic) safeRun(ctx context.Context, fn func(context.Context) (TickReport, error)) (report TickReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("tick panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return fn(ctx)
}
