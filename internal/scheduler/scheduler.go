package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/nimbus/internal/refresh"
	"github.com/i474232898/nimbus/internal/weather"
)

// Runner performs one background refresh. refresh.Trigger implements it.
type Runner interface {
	Run(ctx context.Context, category weather.Category, loc weather.Location) refresh.Outcome
}

// Summary counts the outcomes of one category run.
type Summary struct {
	Succeeded int
	Failed    int
}

// Scheduler periodically refreshes every configured location, one job per category.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	locations []weather.Location
	intervals map[weather.Category]time.Duration
	logger    logrus.FieldLogger
}

// New creates a new Scheduler. Categories without a positive interval are not scheduled.
func New(locations []weather.Location, intervals map[weather.Category]time.Duration, runner Runner, logger logrus.FieldLogger) *Scheduler {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		locations: locations,
		intervals: intervals,
		logger:    logger,
	}
}

// Start schedules the periodic jobs and starts the underlying scheduler.
// Jobs first fire one interval after Start; use RunOnce for an immediate pass.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.logger.Info("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	for _, c := range weather.Categories() {
		interval := s.intervals[c]
		if interval <= 0 {
			s.logger.WithField("category", c).Info("scheduler: category disabled")
			continue
		}
		_, err := s.scheduler.Every(interval).
			WaitForSchedule().
			SingletonMode().
			Tag(c.Lower()).
			Do(func() { s.RunCategory(context.Background(), c) })
		if err != nil {
			return err
		}
		s.logger.WithFields(logrus.Fields{"category": c, "interval": interval}).Info("scheduler: job scheduled")
	}

	s.scheduler.StartAsync()
	return nil
}

// RunCategory refreshes every location for category concurrently.
func (s *Scheduler) RunCategory(ctx context.Context, category weather.Category) Summary {
	log := s.logger.WithField("category", category)
	log.Debug("scheduler: running refresh job")

	var (
		g         errgroup.Group
		succeeded atomic.Int64
		failed    atomic.Int64
	)
	for _, loc := range s.locations {
		g.Go(func() error {
			if s.runner.Run(ctx, category, loc) == refresh.Success {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Succeeded: int(succeeded.Load()), Failed: int(failed.Load())}
	log.WithFields(logrus.Fields{"succeeded": sum.Succeeded, "failed": sum.Failed}).Info("scheduler: completed refresh job")
	return sum
}

// RunOnce refreshes every category immediately, one after another.
func (s *Scheduler) RunOnce(ctx context.Context) map[weather.Category]Summary {
	out := make(map[weather.Category]Summary, len(weather.Categories()))
	for _, c := range weather.Categories() {
		if ctx.Err() != nil {
			break
		}
		out[c] = s.RunCategory(ctx, c)
	}
	return out
}

// Jobs returns how many jobs are scheduled.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
