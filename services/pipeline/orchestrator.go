// Package pipeline coordinates scraping, selection, composition and
// publishing of videos.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/repository"
	"github.com/nijaru/reelflow/services/composer"
	"github.com/nijaru/reelflow/services/publisher"
	"github.com/nijaru/reelflow/services/scorer"
	"github.com/nijaru/reelflow/services/scraper"
	"github.com/nijaru/reelflow/services/settings"
	"github.com/sirupsen/logrus"
)

// SweepAccount is the account label recorded on sweep scrape jobs.
const SweepAccount = "*"

// MetadataGenerator derives publish metadata from a caption.
type MetadataGenerator interface {
	Generate(ctx context.Context, caption string) models.Metadata
}

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Store     repository.JobStore
	Scraper   scraper.SourceScraper
	Scorer    scorer.ContentScorer
	Composer  composer.MediaComposer
	Metadata  MetadataGenerator
	Publisher publisher.Publisher
	Settings  settings.Store
}

type Orchestrator struct {
	store     repository.JobStore
	scraper   scraper.SourceScraper
	scorer    scorer.ContentScorer
	composer  composer.MediaComposer
	metadata  MetadataGenerator
	publisher publisher.Publisher
	settings  settings.Store

	queue    *TaskQueue
	dispatch Dispatcher
	cfg      config.PipelineConfig
	loc      *time.Location
	now      func() time.Time
	logger   *logrus.Logger
}

func New(deps Deps, cfg *config.Config, logger *logrus.Logger) (*Orchestrator, error) {
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Scheduler.Timezone, err)
	}

	queue := NewTaskQueue(QueueConfig{
		Workers:       cfg.Pipeline.Workers,
		QueueSize:     cfg.Pipeline.QueueSize,
		RetryBackoff:  cfg.Pipeline.RetryBackoff,
		HungThreshold: cfg.Pipeline.HungTaskThreshold,
	}, logger)

	return &Orchestrator{
		store:     deps.Store,
		scraper:   deps.Scraper,
		scorer:    deps.Scorer,
		composer:  deps.Composer,
		metadata:  deps.Metadata,
		publisher: deps.Publisher,
		settings:  deps.Settings,
		queue:     queue,
		dispatch:  queue,
		cfg:       cfg.Pipeline,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}, nil
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	o.queue.Start(o.handle)
	o.logger.WithField("workers", o.cfg.Workers).Info("Pipeline started")
}

// Stop cancels running tasks and waits for workers until ctx is done.
func (o *Orchestrator) Stop(ctx context.Context) error {
	return o.queue.Close(ctx)
}

// SubmitScrape records an on-demand scrape job and enqueues it. The job id
// is returned immediately; the outcome is observed through the job row.
func (o *Orchestrator) SubmitScrape(ctx context.Context, handle string, minScore *int) (*models.ScrapeJob, error) {
	const op = "Orchestrator.SubmitScrape"

	score := o.cfg.DefaultMinScore
	if minScore != nil {
		score = *minScore
	}
	if score < 0 || score > 100 {
		return nil, errors.InvalidInput(op, nil, "min_score must be between 0 and 100")
	}

	job := &models.ScrapeJob{
		ID:            newID(),
		SourceAccount: handle,
		MinScore:      score,
		Status:        models.ScrapePending,
	}
	if err := o.store.CreateScrapeJob(ctx, job); err != nil {
		return nil, err
	}

	if err := o.dispatch.Submit(NewTask(TaskScrape, job.ID, o.cfg.MaxAttempts)); err != nil {
		job.Status = models.ScrapeFailed
		job.Error = err.Error()
		if updateErr := o.store.UpdateScrapeJob(ctx, job); updateErr != nil {
			o.logger.WithError(updateErr).WithField("job_id", job.ID).Error("Failed to record rejected job")
		}
		return nil, errors.Internal(op, err, "Failed to enqueue scrape job")
	}

	o.logger.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"account":   handle,
		"min_score": score,
	}).Info("Scrape job submitted")
	return job, nil
}

// TriggerSweep records a cross-account sweep job and enqueues it.
func (o *Orchestrator) TriggerSweep(ctx context.Context) (*models.ScrapeJob, error) {
	const op = "Orchestrator.TriggerSweep"

	job := &models.ScrapeJob{
		ID:            newID(),
		SourceAccount: SweepAccount,
		Sweep:         true,
		Status:        models.ScrapePending,
	}
	if err := o.store.CreateScrapeJob(ctx, job); err != nil {
		return nil, err
	}

	if err := o.dispatch.Submit(NewTask(TaskSweep, job.ID, o.cfg.MaxAttempts)); err != nil {
		job.Status = models.ScrapeFailed
		job.Error = err.Error()
		if updateErr := o.store.UpdateScrapeJob(ctx, job); updateErr != nil {
			o.logger.WithError(updateErr).WithField("job_id", job.ID).Error("Failed to record rejected sweep")
		}
		return nil, errors.Internal(op, err, "Failed to enqueue sweep")
	}

	o.logger.WithField("job_id", job.ID).Info("Sweep triggered")
	return job, nil
}

// RetryPausedVideos moves every quota-paused video to retrying and
// re-enters it into publishing. Each move is a compare-and-set, so
// concurrent sweeps never publish a video twice.
func (o *Orchestrator) RetryPausedVideos(ctx context.Context) (int, error) {
	paused, err := o.store.ListVideosByStatus(ctx, models.VideoPausedQuota)
	if err != nil {
		return 0, err
	}

	t, err := nextTransition(models.VideoPausedQuota, EventQuotaRetry)
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, video := range paused {
		ok, err := o.store.TransitionVideo(ctx, video.ID, models.VideoPausedQuota, t.next)
		if err != nil {
			o.logger.WithError(err).WithField("video_id", video.ID).Error("Failed to mark video retrying")
			continue
		}
		if !ok {
			continue
		}
		o.act(video.ID, t.action, models.Settings{})
		retried++
	}

	o.logger.WithFields(logrus.Fields{
		"paused":  len(paused),
		"retried": retried,
	}).Info("Quota retry sweep finished")
	return retried, nil
}

func (o *Orchestrator) handle(ctx context.Context, task *Task) Result {
	switch task.Kind {
	case TaskScrape:
		return o.runScrape(ctx, task)
	case TaskSweep:
		return o.runSweep(ctx, task)
	case TaskProcess:
		return o.processVideo(ctx, task)
	case TaskPublish:
		return o.publishVideo(ctx, task)
	}
	return Result{Outcome: Fatal, Err: fmt.Errorf("unknown task kind %q", task.Kind)}
}

// advance applies event to video through the transition table, persists
// the new status and returns the follow-up action.
func (o *Orchestrator) advance(ctx context.Context, video *models.Video, event Event) (Action, error) {
	t, err := nextTransition(video.Status, event)
	if err != nil {
		return ActionNone, errors.Conflict("Orchestrator.advance", err, "Invalid video transition")
	}

	from := video.Status
	video.Status = t.next
	if err := o.store.UpdateVideo(ctx, video); err != nil {
		video.Status = from
		return ActionNone, err
	}

	o.logger.WithFields(logrus.Fields{
		"video_id": video.ID,
		"from":     from,
		"to":       t.next,
		"event":    event,
	}).Debug("Video transition")
	return t.action, nil
}

// act starts the work an action names.
func (o *Orchestrator) act(videoID string, action Action, s models.Settings) {
	switch action {
	case ActionProcess:
		o.dispatch.Schedule(NewTask(TaskProcess, videoID, o.cfg.MaxAttempts))
	case ActionPublishNow:
		o.dispatch.Schedule(NewTask(TaskPublish, videoID, o.cfg.MaxAttempts))
	case ActionPublishInWindow:
		now := o.now().In(o.loc)
		at := NextPublishTime(s, now)
		task := NewTask(TaskPublish, videoID, o.cfg.MaxAttempts)
		if at.After(now) {
			task.After(at)
			o.logger.WithFields(logrus.Fields{
				"video_id":   videoID,
				"publish_at": at,
			}).Info("Publish deferred to window")
		}
		o.dispatch.Schedule(task)
	}
}

// currentSettings never fails; a broken settings store means defaults.
func (o *Orchestrator) currentSettings(ctx context.Context) models.Settings {
	s, err := o.settings.Get(ctx)
	if err != nil {
		o.logger.WithError(err).Warn("Failed to load settings, using defaults")
		return models.DefaultSettings()
	}
	return s
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func newID() string {
	return uuid.New().String()
}
