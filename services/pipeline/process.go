package pipeline

import (
	"context"
	"os"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/services/composer"
	"github.com/sirupsen/logrus"
)

// processVideo downloads the source clip, composes the hooked version and
// generates publish metadata. Each step is committed before the next one
// starts.
func (o *Orchestrator) processVideo(ctx context.Context, task *Task) Result {
	video, err := o.store.GetVideo(ctx, task.EntityID)
	if err != nil {
		if errors.IsNotFound(err) {
			return Result{Outcome: Skip, Err: err}
		}
		return Result{Outcome: Retry, Err: err}
	}
	if !CanTransition(video.Status, EventProcessStarted) {
		o.logger.WithFields(logrus.Fields{
			"video_id": video.ID,
			"status":   video.Status,
		}).Info("Video not processable, skipping")
		return Result{Outcome: Skip}
	}

	job, err := o.store.ActivePipelineJob(ctx, video.ID)
	if err != nil {
		if errors.IsNotFound(err) {
			return Result{Outcome: Skip, Err: err}
		}
		return Result{Outcome: Retry, Err: err}
	}

	logger := o.logger.WithFields(logrus.Fields{
		"video_id": video.ID,
		"job_id":   job.ID,
		"attempt":  task.Attempt,
	})

	if _, err := o.advance(ctx, video, EventProcessStarted); err != nil {
		return o.failProcess(ctx, task, video, job, err)
	}
	job.Status = models.PipelineRunning
	job.CurrentStep = models.StepDownload
	job.Error = ""
	if err := o.store.UpdatePipelineJob(ctx, job); err != nil {
		return o.failProcess(ctx, task, video, job, err)
	}

	raw, err := o.composer.Download(ctx, video.SourceURL)
	if err != nil {
		return o.failProcess(ctx, task, video, job, err)
	}
	defer removeFile(logger, raw, "raw download")

	video.RawFilePath = raw
	if err := o.store.UpdateVideo(ctx, video); err != nil {
		return o.failProcess(ctx, task, video, job, err)
	}
	job.CurrentStep = models.StepDownloadHook
	if err := o.store.UpdatePipelineJob(ctx, job); err != nil {
		return o.failProcess(ctx, task, video, job, err)
	}

	settings := o.currentSettings(ctx)
	result, err := o.composer.Compose(ctx, composer.Request{
		VideoID:  video.ID,
		RawPath:  raw,
		Caption:  video.Caption,
		Settings: settings,
	})
	if err != nil {
		return o.failProcess(ctx, task, video, job, err)
	}

	mdCtx, cancel := withTimeout(ctx, o.cfg.MetadataTimeout)
	md := o.metadata.Generate(mdCtx, video.Caption)
	cancel()

	video.RawFilePath = ""
	video.ComposedFilePath = result.Path
	video.HookText = result.HookText
	video.Title = md.Title
	video.Description = md.Description
	video.Tags = md.Tags
	video.Error = ""

	action, err := o.advance(ctx, video, EventComposed)
	if err != nil {
		removeFile(logger, result.Path, "composed file")
		return o.failProcess(ctx, task, video, job, err)
	}

	job.Status = models.PipelineCompleted
	job.CurrentStep = models.StepReady
	if err := o.store.UpdatePipelineJob(ctx, job); err != nil {
		logger.WithError(err).Error("Failed to complete pipeline job")
	}

	logger.WithFields(logrus.Fields{
		"mode":  result.Mode,
		"title": video.Title,
	}).Info("Video ready")

	o.act(video.ID, action, settings)
	return Result{Outcome: Success}
}

// failProcess records err on the video and its job. While attempts remain
// the job returns to pending and the video stays in processing for the
// retry; the last attempt moves the video to error.
func (o *Orchestrator) failProcess(ctx context.Context, task *Task, video *models.Video, job *models.PipelineJob, err error) Result {
	ctx = context.WithoutCancel(ctx)
	logger := o.logger.WithFields(logrus.Fields{
		"video_id": video.ID,
		"job_id":   job.ID,
		"step":     job.CurrentStep,
	})

	video.Error = err.Error()
	video.RawFilePath = ""
	job.Error = err.Error()

	outcome := Retry
	job.Status = models.PipelinePending
	if task.Final() {
		outcome = Fatal
		job.Status = models.PipelineFailed
		if _, advErr := o.advance(ctx, video, EventFailed); advErr != nil {
			logger.WithError(advErr).Error("Failed to mark video as error")
		}
	} else if updateErr := o.store.UpdateVideo(ctx, video); updateErr != nil {
		logger.WithError(updateErr).Error("Failed to record video error")
	}

	if updateErr := o.store.UpdatePipelineJob(ctx, job); updateErr != nil {
		logger.WithError(updateErr).Error("Failed to record pipeline job failure")
	}
	return Result{Outcome: outcome, Err: err}
}

// removeFile deletes a staging file. A file that is already gone is fine.
func removeFile(logger *logrus.Entry, path, what string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).WithField("path", path).Warnf("Failed to remove %s", what)
	}
}
