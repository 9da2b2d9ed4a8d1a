package pipeline

import (
	"context"

	"github.com/nijaru/reelflow/models"
	"github.com/sirupsen/logrus"
)

const interruptedMessage = "interrupted by restart"

// RecoverStale reconciles the store with a freshly started process. Work
// that was running when the process died is failed; nothing in flight is
// resumed. Queued work that never started is enqueued again, and videos
// waiting to publish get their publish task back.
func (o *Orchestrator) RecoverStale(ctx context.Context) error {
	failedScrapes, err := o.recoverScrapeJobs(ctx)
	if err != nil {
		return err
	}
	failedPipelines, err := o.recoverPipelineJobs(ctx)
	if err != nil {
		return err
	}
	publishes, err := o.recoverPublishes(ctx)
	if err != nil {
		return err
	}

	o.logger.WithFields(logrus.Fields{
		"failed_scrape_jobs":   failedScrapes,
		"failed_pipeline_jobs": failedPipelines,
		"publishes_scheduled":  publishes,
	}).Info("Recovered pipeline state")
	return nil
}

func (o *Orchestrator) recoverScrapeJobs(ctx context.Context) (int, error) {
	running, err := o.store.ListScrapeJobsByStatus(ctx, models.ScrapeRunning)
	if err != nil {
		return 0, err
	}
	for _, job := range running {
		job.Status = models.ScrapeFailed
		job.Error = interruptedMessage
		if err := o.store.UpdateScrapeJob(ctx, job); err != nil {
			o.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to fail interrupted scrape job")
		}
	}

	pending, err := o.store.ListScrapeJobsByStatus(ctx, models.ScrapePending)
	if err != nil {
		return 0, err
	}
	for _, job := range pending {
		kind := TaskScrape
		if job.Sweep {
			kind = TaskSweep
		}
		o.dispatch.Schedule(NewTask(kind, job.ID, o.cfg.MaxAttempts))
	}
	return len(running), nil
}

func (o *Orchestrator) recoverPipelineJobs(ctx context.Context) (int, error) {
	running, err := o.store.ListPipelineJobsByStatus(ctx, models.PipelineRunning)
	if err != nil {
		return 0, err
	}
	for _, job := range running {
		job.Status = models.PipelineFailed
		job.Error = interruptedMessage
		if err := o.store.UpdatePipelineJob(ctx, job); err != nil {
			o.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to fail interrupted pipeline job")
			continue
		}

		video, err := o.store.GetVideo(ctx, job.VideoID)
		if err != nil {
			o.logger.WithError(err).WithField("video_id", job.VideoID).Error("Failed to load interrupted video")
			continue
		}
		if !CanTransition(video.Status, EventFailed) {
			continue
		}
		video.Error = interruptedMessage
		if _, err := o.advance(ctx, video, EventFailed); err != nil {
			o.logger.WithError(err).WithField("video_id", video.ID).Error("Failed to mark interrupted video")
		}
	}

	pending, err := o.store.ListPipelineJobsByStatus(ctx, models.PipelinePending)
	if err != nil {
		return 0, err
	}
	for _, job := range pending {
		o.act(job.VideoID, ActionProcess, models.Settings{})
	}
	return len(running), nil
}

// recoverPublishes returns interrupted quota retries to paused_quota and
// reschedules publishes for ready videos.
func (o *Orchestrator) recoverPublishes(ctx context.Context) (int, error) {
	retrying, err := o.store.ListVideosByStatus(ctx, models.VideoRetrying)
	if err != nil {
		return 0, err
	}
	t, err := nextTransition(models.VideoRetrying, EventInterrupted)
	if err != nil {
		return 0, err
	}
	for _, video := range retrying {
		if _, err := o.store.TransitionVideo(ctx, video.ID, models.VideoRetrying, t.next); err != nil {
			o.logger.WithError(err).WithField("video_id", video.ID).Error("Failed to pause interrupted retry")
		}
	}

	ready, err := o.store.ListVideosByStatus(ctx, models.VideoReady)
	if err != nil {
		return 0, err
	}
	settings := o.currentSettings(ctx)
	for _, video := range ready {
		o.act(video.ID, ActionPublishInWindow, settings)
	}
	return len(ready), nil
}
