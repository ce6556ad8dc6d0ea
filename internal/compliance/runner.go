package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep every 15 minutes.
const DefaultSchedule = "*/15 * * * *"

// Runner triggers Scheduler ticks on a cron schedule.
type Runner struct {
	cron      *cron.Cron
	scheduler *Scheduler
	logger    *slog.Logger
	schedule  string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewRunner registers the scheduler under schedule (standard five-field cron, UTC).
// Overlapping invocations are skipped.
func NewRunner(schedule string, scheduler *Scheduler, logger *slog.Logger) (*Runner, error) {
	if scheduler == nil {
		return nil, errors.New("compliance: scheduler required")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger.With(slog.String("job", JobName))}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{cron: c, scheduler: scheduler, logger: logger, schedule: schedule, ctx: ctx, cancel: cancel}
	if _, err := c.AddFunc(schedule, r.run); err != nil {
		cancel()
		return nil, fmt.Errorf("compliance: schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start arms the monitor and begins scheduling.
func (r *Runner) Start() {
	r.scheduler.State().SetArmed(true)
	r.cron.Start()
	r.logger.Info("sla monitor armed", slog.String("schedule", r.schedule))
}

// Stop disarms the monitor, cancels an in-flight tick and waits for it to return.
func (r *Runner) Stop() {
	r.scheduler.State().SetArmed(false)
	stopped := r.cron.Stop()
	r.cancel()
	<-stopped.Done()
	r.logger.Info("sla monitor stopped")
}

func (r *Runner) run() {
	if _, err := r.scheduler.Tick(r.ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
		r.logger.Error("sla tick", slog.Any("error", err))
	}
}

// ValidateSchedule reports whether schedule is a valid five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := cron.ParseStandard(schedule)
	return err
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron "+msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
