package pipeline

import (
	"context"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/sirupsen/logrus"
)

const noChannelMessage = "no destination channel connected"

// publishVideo uploads a ready or retrying video to the first connected
// channel. Quota exhaustion pauses the video instead of failing it, and is
// never retried here; only the quota-retry sweep resumes it.
func (o *Orchestrator) publishVideo(ctx context.Context, task *Task) Result {
	video, err := o.store.GetVideo(ctx, task.EntityID)
	if err != nil {
		if errors.IsNotFound(err) {
			return Result{Outcome: Skip, Err: err}
		}
		return Result{Outcome: Retry, Err: err}
	}
	if !CanTransition(video.Status, EventPublished) {
		o.logger.WithFields(logrus.Fields{
			"video_id": video.ID,
			"status":   video.Status,
		}).Info("Video not publishable, skipping")
		return Result{Outcome: Skip}
	}

	logger := o.logger.WithFields(logrus.Fields{
		"video_id": video.ID,
		"status":   video.Status,
		"attempt":  task.Attempt,
	})

	channels, err := o.store.ListChannels(ctx)
	if err != nil {
		return o.failPublish(ctx, task, video, err)
	}
	if len(channels) == 0 {
		return o.abortPublish(ctx, video, errors.Publish("Orchestrator.publishVideo", nil, noChannelMessage))
	}
	channel := channels[0]

	if video.Title == "" {
		mdCtx, cancel := withTimeout(ctx, o.cfg.MetadataTimeout)
		md := o.metadata.Generate(mdCtx, video.Caption)
		cancel()
		video.Title, video.Description, video.Tags = md.Title, md.Description, md.Tags
	}

	url, err := o.publisher.Publish(ctx, video, channel)
	if err != nil {
		if errors.IsQuotaExceeded(err) {
			video.Error = err.Error()
			if _, advErr := o.advance(context.WithoutCancel(ctx), video, EventQuotaExceeded); advErr != nil {
				logger.WithError(advErr).Error("Failed to pause video for quota")
				return Result{Outcome: Fatal, Err: advErr}
			}
			logger.WithError(err).Warn("Quota exhausted, video paused until the next quota retry")
			return Result{Outcome: Skip, Err: err}
		}
		return o.failPublish(ctx, task, video, err)
	}

	// The upload happened. From here on nothing is retried so the video is
	// never uploaded twice.
	ctx = context.WithoutCancel(ctx)
	video.DestinationURL = url
	video.Error = ""
	if _, err := o.advance(ctx, video, EventPublished); err != nil {
		logger.WithError(err).WithField("url", url).Error("Published but failed to record it")
		return Result{Outcome: Fatal, Err: err}
	}

	if video.ComposedFilePath != "" {
		removeFile(logger, video.ComposedFilePath, "composed file")
	}
	o.markLatestJob(ctx, video.ID, models.PipelineCompleted, models.StepPublished, "")

	logger.WithFields(logrus.Fields{
		"url":     url,
		"channel": channel.DisplayName,
	}).Info("Video published")
	return Result{Outcome: Success}
}

// failPublish keeps the video in its current state while attempts remain
// and moves it to error on the last one.
func (o *Orchestrator) failPublish(ctx context.Context, task *Task, video *models.Video, err error) Result {
	if task.Final() {
		return o.abortPublish(ctx, video, err)
	}

	video.Error = err.Error()
	if updateErr := o.store.UpdateVideo(context.WithoutCancel(ctx), video); updateErr != nil {
		o.logger.WithError(updateErr).WithField("video_id", video.ID).Error("Failed to record publish error")
	}
	return Result{Outcome: Retry, Err: err}
}

func (o *Orchestrator) abortPublish(ctx context.Context, video *models.Video, err error) Result {
	ctx = context.WithoutCancel(ctx)
	video.Error = err.Error()
	if _, advErr := o.advance(ctx, video, EventFailed); advErr != nil {
		o.logger.WithError(advErr).WithField("video_id", video.ID).Error("Failed to mark video as error")
	}
	o.markLatestJob(ctx, video.ID, models.PipelineFailed, "", err.Error())
	return Result{Outcome: Fatal, Err: err}
}

// markLatestJob updates the most recent pipeline job of a video. An empty
// step keeps the current label.
func (o *Orchestrator) markLatestJob(ctx context.Context, videoID string, status models.PipelineJobStatus, step, message string) {
	jobs, err := o.store.ListPipelineJobs(ctx, videoID)
	if err != nil || len(jobs) == 0 {
		if err != nil {
			o.logger.WithError(err).WithField("video_id", videoID).Warn("Failed to load pipeline job")
		}
		return
	}

	job := jobs[0]
	job.Status = status
	if step != "" {
		job.CurrentStep = step
	}
	job.Error = message
	if err := o.store.UpdatePipelineJob(ctx, job); err != nil {
		o.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to update pipeline job")
	}
}
