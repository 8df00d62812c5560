// Package scheduler runs a single task repeatedly on an interval or cron
// schedule, backing off after consecutive failures.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"grimm.is/originguard/internal/clock"
	"grimm.is/originguard/internal/logging"
)

// TaskFunc is a function that performs a scheduled task.
// It receives a context that will be cancelled when the loop stops.
type TaskFunc func(ctx context.Context) error

// Schedule defines when a task should run.
type Schedule interface {
	// Next returns the next time the task should run after the given time.
	Next(after time.Time) time.Time
}

// TaskStatus represents the current status of a loop.
type TaskStatus struct {
	Name         string        `json:"name"`
	Running      bool          `json:"running"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
	RunCount     int64         `json:"run_count"`
	ErrorCount   int64         `json:"error_count"`
	Failures     int           `json:"consecutive_failures"`
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Loop runs one task sequentially: a run never overlaps the previous one.
type Loop struct {
	name     string
	schedule Schedule
	fn       TaskFunc
	backoff  BackoffConfig
	timeout  time.Duration
	clock    clock.Clock
	logger   *logging.Logger
	sleep    Sleeper

	mu     sync.RWMutex
	status TaskStatus
}

// Option configures a Loop.
type Option func(*Loop)

// WithBackoff sets the retry policy used after failed runs.
func WithBackoff(cfg BackoffConfig) Option {
	return func(l *Loop) { l.backoff = cfg }
}

// WithTimeout bounds each run. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Loop) { l.timeout = d }
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = clock.Or(c) }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithSleeper replaces the function used to wait between runs.
func WithSleeper(s Sleeper) Option {
	return func(l *Loop) { l.sleep = s }
}

// NewLoop creates a loop running fn on schedule.
func NewLoop(name string, schedule Schedule, fn TaskFunc, opts ...Option) (*Loop, error) {
	if schedule == nil {
		return nil, fmt.Errorf("task schedule is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("task function is required")
	}

	l := &Loop{
		name:     name,
		schedule: schedule,
		fn:       fn,
		backoff:  DefaultBackoffConfig(),
		clock:    clock.Real{},
		sleep:    sleepContext,
		status:   TaskStatus{Name: name},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logging.WithComponent("scheduler")
	}
	return l, nil
}

// Run executes the task immediately and then according to the schedule
// until ctx is cancelled. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.setRunning(true)
	defer l.setRunning(false)

	l.logger.Info("loop started", "name", l.name)
	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("loop stopped", "name", l.name)
			return err
		}

		failures := l.execute(ctx)

		now := l.clock.Now()
		wait := l.schedule.Next(now).Sub(now)
		if failures > 0 {
			if d := l.backoff.Delay(failures - 1); d < wait {
				wait = d
			}
		}

		l.mu.Lock()
		l.status.NextRun = now.Add(wait)
		l.mu.Unlock()

		l.logger.Debug("next run scheduled", "name", l.name, "in", wait, "failures", failures)
		if err := l.sleep(ctx, wait); err != nil {
			l.logger.Info("loop stopped", "name", l.name)
			return err
		}
	}
}

// execute performs one run and returns the consecutive failure count.
func (l *Loop) execute(ctx context.Context) int {
	runCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := l.clock.Now()
	err := l.fn(runCtx)
	duration := l.clock.Since(start)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.status.LastRun = start
	l.status.LastDuration = duration
	l.status.RunCount++

	if err != nil {
		l.status.LastError = err.Error()
		l.status.ErrorCount++
		l.status.Failures++
		l.logger.Error("task failed", "name", l.name, "error", err, "duration", duration, "failures", l.status.Failures)
	} else {
		l.status.LastError = ""
		l.status.Failures = 0
		l.logger.Debug("task completed", "name", l.name, "duration", duration)
	}
	return l.status.Failures
}

func (l *Loop) setRunning(v bool) {
	l.mu.Lock()
	l.status.Running = v
	l.mu.Unlock()
}

// Status returns a snapshot of the loop status.
func (l *Loop) Status() TaskStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}
