package pipeline

import (
	"context"
	"fmt"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/sirupsen/logrus"
)

// winner is the candidate a run selected.
type winner struct {
	candidate models.Candidate
	account   string
	score     *int
}

// runScrape is the on-demand run: fetch one account, drop known clips,
// score the rest and keep the best one that clears the job's threshold.
func (o *Orchestrator) runScrape(ctx context.Context, task *Task) Result {
	job, res, ok := o.startScrapeJob(ctx, task)
	if !ok {
		return res
	}
	logger := o.logger.WithFields(logrus.Fields{"job_id": job.ID, "account": job.SourceAccount})

	scrapeCtx, cancel := withTimeout(ctx, o.cfg.ScrapeTimeout)
	candidates, err := o.scraper.FetchRecent(scrapeCtx, job.SourceAccount, o.cfg.ScrapeLimit)
	cancel()
	if err != nil {
		return o.failScrape(ctx, task, job, err)
	}

	best, err := o.selectByScore(ctx, candidates, job.MinScore)
	if err != nil {
		return o.failScrape(ctx, task, job, err)
	}
	if best == nil {
		logger.WithField("candidates", len(candidates)).Info("No candidate cleared the threshold")
		return o.completeScrape(ctx, job, 0)
	}
	best.account = job.SourceAccount

	found, err := o.createWinner(ctx, best)
	if err != nil {
		return o.failScrape(ctx, task, job, err)
	}
	return o.completeScrape(ctx, job, found)
}

// runSweep selects the most viewed unseen clip across all monitored
// accounts. A failing account contributes nothing and does not stop the
// sweep.
func (o *Orchestrator) runSweep(ctx context.Context, task *Task) Result {
	job, res, ok := o.startScrapeJob(ctx, task)
	if !ok {
		return res
	}
	logger := o.logger.WithField("job_id", job.ID)

	accounts, err := o.store.ListSourceAccounts(ctx)
	if err != nil {
		return o.failScrape(ctx, task, job, err)
	}
	if len(accounts) == 0 {
		logger.Info("No source accounts to sweep")
		return o.completeScrape(ctx, job, 0)
	}

	var best *winner
	for _, account := range accounts {
		accountLogger := logger.WithField("account", account.Handle)

		scrapeCtx, cancel := withTimeout(ctx, o.cfg.ScrapeTimeout)
		candidates, err := o.scraper.FetchRecent(scrapeCtx, account.Handle, o.cfg.SweepLimit)
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.failScrape(ctx, task, job, fmt.Errorf("sweep interrupted: %w", ctxErr))
		}
		if err != nil {
			accountLogger.WithError(err).Error("Sweep scrape failed for account")
			continue
		}

		fresh, err := o.unseen(ctx, candidates)
		if err != nil {
			return o.failScrape(ctx, task, job, err)
		}
		for _, c := range fresh {
			if best == nil || c.ViewCount > best.candidate.ViewCount {
				best = &winner{candidate: c, account: account.Handle}
			}
		}
	}

	if best == nil {
		logger.Info("No new clips found across monitored accounts")
		return o.completeScrape(ctx, job, 0)
	}

	logger.WithFields(logrus.Fields{
		"source_id": best.candidate.SourceID,
		"account":   best.account,
		"views":     best.candidate.ViewCount,
	}).Info("Sweep winner selected")

	found, err := o.createWinner(ctx, best)
	if err != nil {
		return o.failScrape(ctx, task, job, err)
	}
	return o.completeScrape(ctx, job, found)
}

// selectByScore evaluates candidates in recency order. Only a strictly
// higher score replaces the current best, so the earliest wins ties.
// Candidates the scorer cannot rate are skipped unless ctx is done.
func (o *Orchestrator) selectByScore(ctx context.Context, candidates []models.Candidate, minScore int) (*winner, error) {
	fresh, err := o.unseen(ctx, candidates)
	if err != nil {
		return nil, err
	}

	var best *winner
	for _, c := range fresh {
		score, err := o.scorer.Score(ctx, c.Caption)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("scoring interrupted: %w", ctxErr)
		}
		if err != nil {
			if errors.IsKind(err, errors.KindScoring) {
				o.logger.WithError(err).WithField("source_id", c.SourceID).Warn("Skipping unscored candidate")
				continue
			}
			return nil, err
		}

		o.logger.WithFields(logrus.Fields{
			"source_id": c.SourceID,
			"score":     score,
			"min_score": minScore,
		}).Info("Scored candidate")

		if score >= minScore && (best == nil || score > *best.score) {
			s := score
			best = &winner{candidate: c, score: &s}
		}
	}
	return best, nil
}

// unseen drops candidates whose source id is already stored.
func (o *Orchestrator) unseen(ctx context.Context, candidates []models.Candidate) ([]models.Candidate, error) {
	fresh := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		exists, err := o.store.SourceVideoExists(ctx, c.SourceID)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		fresh = append(fresh, c)
	}
	return fresh, nil
}

// createWinner stores the selected video with a pending pipeline job and
// starts processing. A concurrent run that stored the same clip first
// wins; this run then reports zero videos.
func (o *Orchestrator) createWinner(ctx context.Context, w *winner) (int, error) {
	t, err := nextTransition("", EventSelected)
	if err != nil {
		return 0, err
	}

	video := &models.Video{
		ID:            newID(),
		SourceVideoID: w.candidate.SourceID,
		SourceURL:     w.candidate.URL,
		SourceAccount: w.account,
		Caption:       w.candidate.Caption,
		ViewCount:     w.candidate.ViewCount,
		Score:         w.score,
		Status:        t.next,
	}
	pj := &models.PipelineJob{
		ID:          newID(),
		VideoID:     video.ID,
		Status:      models.PipelinePending,
		CurrentStep: models.StepDownload,
	}
	if err := o.store.CreateVideoWithJob(ctx, video, pj); err != nil {
		if errors.Is(err, errors.ErrDuplicate) {
			o.logger.WithField("source_id", video.SourceVideoID).Info("Clip already stored by a concurrent run")
			return 0, nil
		}
		return 0, err
	}

	o.logger.WithFields(logrus.Fields{
		"video_id":  video.ID,
		"source_id": video.SourceVideoID,
		"account":   video.SourceAccount,
	}).Info("Video selected")

	o.act(video.ID, t.action, models.Settings{})
	return 1, nil
}

// startScrapeJob loads the task's job and marks it running. ok is false
// when the task should stop with res.
func (o *Orchestrator) startScrapeJob(ctx context.Context, task *Task) (job *models.ScrapeJob, res Result, ok bool) {
	job, err := o.store.GetScrapeJob(ctx, task.EntityID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, Result{Outcome: Skip, Err: err}, false
		}
		return nil, Result{Outcome: Retry, Err: err}, false
	}
	if job.Status.Terminal() {
		return nil, Result{Outcome: Skip}, false
	}

	job.Status = models.ScrapeRunning
	if err := o.store.UpdateScrapeJob(ctx, job); err != nil {
		if task.Final() {
			return nil, Result{Outcome: Fatal, Err: err}, false
		}
		return nil, Result{Outcome: Retry, Err: err}, false
	}
	return job, Result{}, true
}

func (o *Orchestrator) completeScrape(ctx context.Context, job *models.ScrapeJob, found int) Result {
	job.Status = models.ScrapeCompleted
	job.VideosFound = found
	job.Error = ""
	if err := o.store.UpdateScrapeJob(context.WithoutCancel(ctx), job); err != nil {
		return Result{Outcome: Fatal, Err: fmt.Errorf("complete scrape job: %w", err)}
	}

	o.logger.WithFields(logrus.Fields{
		"job_id":       job.ID,
		"videos_found": found,
	}).Info("Scrape job completed")
	return Result{Outcome: Success}
}

// failScrape records err on the job. The job returns to pending while
// attempts remain and is failed on the last one.
func (o *Orchestrator) failScrape(ctx context.Context, task *Task, job *models.ScrapeJob, err error) Result {
	job.Error = err.Error()
	outcome := Retry
	job.Status = models.ScrapePending
	if task.Final() {
		outcome = Fatal
		job.Status = models.ScrapeFailed
	}

	if updateErr := o.store.UpdateScrapeJob(context.WithoutCancel(ctx), job); updateErr != nil {
		o.logger.WithError(updateErr).WithField("job_id", job.ID).Error("Failed to record scrape failure")
	}
	return Result{Outcome: outcome, Err: err}
}
