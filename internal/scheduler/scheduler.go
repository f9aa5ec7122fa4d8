// Package scheduler runs a job periodically and logs the outcome of every run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/robfig/cron/v3"
)

// DefaultInterval is how often the job runs when no schedule is configured.
const DefaultInterval = 30 * time.Second

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Options configures a Scheduler. Spec takes precedence over Interval and
// accepts standard five-field cron expressions and descriptors such as
// "@daily".
type Options struct {
	Job      Job
	Logger   *slog.Logger
	Name     string
	Spec     string
	Interval time.Duration
}

// Scheduler fires a single job on a fixed schedule. Runs are not
// serialized: a slow run may overlap with the next one.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	job    Job
	name   string
	spec   string
	mu     sync.Mutex
	runs   int
}

// New validates the schedule and creates a stopped scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Job == nil {
		return nil, fmt.Errorf("%w: scheduler job is nil", common.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "job"
	}

	spec := opts.Spec
	if spec == "" {
		interval := opts.Interval
		if interval == 0 {
			interval = DefaultInterval
		}
		if interval < 0 {
			return nil, fmt.Errorf("%w: schedule interval cannot be negative", common.ErrInvalidConfig)
		}
		spec = "@every " + interval.String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		job:    opts.Job,
		name:   opts.Name,
		spec:   spec,
	}
	s.cron = cron.New(cron.WithLogger(cronLogger{logger: opts.Logger}))
	if _, err := s.cron.AddFunc(spec, func() { _ = s.RunNow(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: schedule %q: %w", common.ErrInvalidConfig, spec, err)
	}
	return s, nil
}

// Spec returns the effective cron expression.
func (s *Scheduler) Spec() string {
	return s.spec
}

// Start begins firing the job in the background.
func (s *Scheduler) Start() {
	s.logger.Info("Scheduler starting", "job", s.name, "schedule", s.spec)
	s.cron.Start()
}

// Stop prevents further runs, cancels the context of in-flight runs and
// waits for them to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("Scheduler stopping", "job", s.name)
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running job: %w", ctx.Err())
	}
}

// Runs returns the number of completed runs.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// RunNow executes the job once on the caller's goroutine and logs whether
// it succeeded. A panicking job is reported as a failure.
func (s *Scheduler) RunNow(ctx context.Context) (err error) {
	started := time.Now()
	s.logger.Info("Job started", "job", s.name, "started_at", started.Format(time.RFC3339))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		s.mu.Lock()
		s.runs++
		s.mu.Unlock()

		elapsed := time.Since(started)
		if err != nil {
			s.logger.Error("Job failed", "job", s.name, "duration", elapsed, "error", err)
			return
		}
		s.logger.Info("Job succeeded", "job", s.name, "duration", elapsed)
	}()

	return s.job(ctx)
}

// cronLogger forwards cron's internal logging to slog at debug level.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	if errors.Is(err, context.Canceled) {
		return
	}
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
