package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrRunnerNotRunning is returned when a runner is asked to act while
// stopped
var ErrRunnerNotRunning = errors.New("runner is not running")

// Task is a unit of periodic background work
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// PeriodicRunner invokes a task at a fixed interval until stopped. The
// expiration sweep and the reconciliation check both run under one of
// these.
type PeriodicRunner struct {
	task     Task
	interval time.Duration
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewPeriodicRunner creates a runner for task at the given interval
func NewPeriodicRunner(task Task, interval time.Duration, logger *zap.Logger) *PeriodicRunner {
	return &PeriodicRunner{
		task:     task,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the run loop
func (r *PeriodicRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.runLoop(ctx)

	r.logger.Info("periodic runner started",
		zap.String("task", r.task.Name()),
		zap.Duration("interval", r.interval),
	)
	return nil
}

// Stop halts the run loop, waiting for an in-flight run to finish
func (r *PeriodicRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("periodic runner stopped", zap.String("task", r.task.Name()))
		return nil
	case <-ctx.Done():
		r.logger.Warn("periodic runner stop timed out", zap.String("task", r.task.Name()))
		return ctx.Err()
	}
}

// RunOnce invokes the task immediately, outside the interval
func (r *PeriodicRunner) RunOnce(ctx context.Context) error {
	return r.task.Run(ctx)
}

func (r *PeriodicRunner) runLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.task.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("periodic task failed",
					zap.String("task", r.task.Name()),
					zap.Error(err),
				)
			}
		}
	}
}
