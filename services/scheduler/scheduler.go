// Package scheduler fires the daily sweep and quota retry on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Triggers are the pipeline entry points the scheduler drives.
type Triggers interface {
	TriggerSweep(ctx context.Context) (*models.ScrapeJob, error)
	RetryPausedVideos(ctx context.Context) (int, error)
}

const (
	JobSweep      = "sweep"
	JobQuotaRetry = "quota_retry"
)

type Scheduler struct {
	cron     *cron.Cron
	triggers Triggers
	entries  map[string]cron.EntryID
	timeout  time.Duration
	logger   *logrus.Logger
}

func New(cfg config.SchedulerConfig, triggers Triggers, logger *logrus.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	cronLogger := cron.PrintfLogger(logger)
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		triggers: triggers,
		entries:  make(map[string]cron.EntryID),
		timeout:  time.Minute,
		logger:   logger,
	}

	if err := s.add(JobSweep, cfg.SweepSpec, s.sweep); err != nil {
		return nil, err
	}
	if err := s.add(JobQuotaRetry, cfg.QuotaRetrySpec, s.quotaRetry); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, fn func()) error {
	if spec == "" {
		s.logger.WithField("job", name).Info("Scheduled job disabled")
		return nil
	}
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
	}
	s.entries[name] = id
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for name, next := range s.NextRuns() {
		s.logger.WithFields(logrus.Fields{
			"job":      name,
			"next_run": next,
		}).Info("Scheduled job registered")
	}
}

// Stop prevents new runs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRuns returns the next fire time of each registered job. Times are
// zero until the scheduler is started.
func (s *Scheduler) NextRuns() map[string]time.Time {
	runs := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		runs[name] = s.cron.Entry(id).Next
	}
	return runs
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	job, err := s.triggers.TriggerSweep(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled sweep failed to start")
		return
	}
	s.logger.WithField("job_id", job.ID).Info("Scheduled sweep started")
}

func (s *Scheduler) quotaRetry() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	retried, err := s.triggers.RetryPausedVideos(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled quota retry failed")
		return
	}
	s.logger.WithField("retried", retried).Info("Scheduled quota retry finished")
}
