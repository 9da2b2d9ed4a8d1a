package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/logger"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/repository/sqlstore"
	"github.com/nijaru/reelflow/services/composer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	candidates map[string][]models.Candidate
	errs       map[string]error
	onFetch    func()
	calls      []string
}

func (f *fakeScraper) FetchRecent(ctx context.Context, handle string, limit int) ([]models.Candidate, error) {
	f.calls = append(f.calls, handle)
	if f.onFetch != nil {
		f.onFetch()
	}
	if err := f.errs[handle]; err != nil {
		return nil, err
	}
	return f.candidates[handle], nil
}

type fakeScorer struct {
	scores map[string]int
	scored []string
}

func (f *fakeScorer) Score(ctx context.Context, caption string) (int, error) {
	f.scored = append(f.scored, caption)
	score, ok := f.scores[caption]
	if !ok {
		return 0, errors.Scoring("fakeScorer.Score", nil, "no score")
	}
	return score, nil
}

type fakeComposer struct {
	dir         string
	downloadErr error
	composeErr  error
	raws        []string
}

func (f *fakeComposer) Download(ctx context.Context, sourceURL string) (string, error) {
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	path := filepath.Join(f.dir, uuid.New().String()+".mp4")
	if err := os.WriteFile(path, []byte("raw"), 0644); err != nil {
		return "", err
	}
	f.raws = append(f.raws, path)
	return path, nil
}

func (f *fakeComposer) Compose(ctx context.Context, req composer.Request) (*composer.Result, error) {
	if f.composeErr != nil {
		return nil, f.composeErr
	}
	path := filepath.Join(f.dir, req.VideoID+".mp4")
	if err := os.WriteFile(path, []byte("composed"), 0644); err != nil {
		return nil, err
	}
	return &composer.Result{
		Path:     path,
		Mode:     models.HookAIText,
		HookText: "Wait for it...",
		Width:    1080,
		Height:   1920,
	}, nil
}

type fakeMetadata struct{}

func (fakeMetadata) Generate(ctx context.Context, caption string) models.Metadata {
	return models.Metadata{
		Title:       "Title: " + caption,
		Description: caption + " #shorts",
		Tags:        []string{"shorts"},
	}
}

type fakePublisher struct {
	errs  []error
	calls int
}

func (f *fakePublisher) Publish(ctx context.Context, video *models.Video, channel *models.DestinationChannel) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "https://youtube.com/shorts/yt" + video.SourceVideoID, nil
}

type fakeSettings struct {
	settings models.Settings
}

func (f *fakeSettings) Get(ctx context.Context) (models.Settings, error) {
	return f.settings, nil
}

func (f *fakeSettings) Set(ctx context.Context, s models.Settings) error {
	f.settings = s
	return nil
}

// recorder captures tasks instead of running them.
type recorder struct {
	mu    sync.Mutex
	full  bool
	tasks []*Task
}

func (r *recorder) Submit(task *Task) error {
	if r.full {
		return ErrQueueFull
	}
	r.Schedule(task)
	return nil
}

func (r *recorder) Schedule(task *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
}

// take returns and clears the recorded tasks.
func (r *recorder) take() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	tasks := r.tasks
	r.tasks = nil
	return tasks
}

type harness struct {
	o         *Orchestrator
	store     *sqlstore.Store
	scraper   *fakeScraper
	scorer    *fakeScorer
	composer  *fakeComposer
	publisher *fakePublisher
	settings  *fakeSettings
	tasks     *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := sqlstore.Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "pipeline.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:     store,
		scraper:   &fakeScraper{candidates: map[string][]models.Candidate{}, errs: map[string]error{}},
		scorer:    &fakeScorer{scores: map[string]int{}},
		composer:  &fakeComposer{dir: t.TempDir()},
		publisher: &fakePublisher{},
		settings:  &fakeSettings{settings: models.Settings{HookMode: models.HookAIText}},
		tasks:     &recorder{},
	}

	cfg := &config.Config{
		Pipeline: config.PipelineConfig{
			Workers:         1,
			QueueSize:       10,
			MaxAttempts:     3,
			DefaultMinScore: 70,
			ScrapeLimit:     12,
			SweepLimit:      12,
		},
		Scheduler: config.SchedulerConfig{Timezone: "UTC"},
	}

	o, err := New(Deps{
		Store:     store,
		Scraper:   h.scraper,
		Scorer:    h.scorer,
		Composer:  h.composer,
		Metadata:  fakeMetadata{},
		Publisher: h.publisher,
		Settings:  h.settings,
	}, cfg, logger.Discard())
	require.NoError(t, err)
	o.dispatch = h.tasks
	h.o = o
	return h
}

func candidate(id string, views int64) models.Candidate {
	return models.Candidate{
		SourceID:  id,
		URL:       "https://www.instagram.com/reel/" + id + "/",
		ViewCount: views,
		Caption:   "caption " + id,
	}
}

func attempt(kind TaskKind, id string, n int) *Task {
	task := NewTask(kind, id, 3)
	task.Attempt = n
	return task
}

// onlyTask asserts exactly one task of kind was recorded and returns it.
func (h *harness) onlyTask(t *testing.T, kind TaskKind) *Task {
	t.Helper()
	tasks := h.tasks.take()
	require.Len(t, tasks, 1)
	require.Equal(t, kind, tasks[0].Kind)
	return tasks[0]
}

func (h *harness) submit(t *testing.T, handle string, minScore int) *models.ScrapeJob {
	t.Helper()
	job, err := h.o.SubmitScrape(context.Background(), handle, &minScore)
	require.NoError(t, err)
	h.onlyTask(t, TaskScrape)
	return job
}

func (h *harness) seedVideo(t *testing.T, sourceID string, status models.VideoStatus) *models.Video {
	t.Helper()
	video := &models.Video{
		ID:            uuid.New().String(),
		SourceVideoID: sourceID,
		SourceURL:     "https://www.instagram.com/reel/" + sourceID + "/",
		SourceAccount: "creator",
		Caption:       "caption " + sourceID,
		Status:        status,
	}
	require.NoError(t, h.store.CreateVideo(context.Background(), video))
	return video
}

func (h *harness) seedChannel(t *testing.T) {
	t.Helper()
	require.NoError(t, h.store.UpsertChannel(context.Background(), &models.DestinationChannel{
		ID:          uuid.New().String(),
		ChannelID:   "UC123",
		DisplayName: "Main",
	}, 5))
}

func (h *harness) video(t *testing.T, id string) *models.Video {
	t.Helper()
	video, err := h.store.GetVideo(context.Background(), id)
	require.NoError(t, err)
	return video
}

func TestRunScrapeSelectsBestUnseenCandidate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.seedVideo(t, "seen", models.VideoPublished)
	h.scraper.candidates["creator"] = []models.Candidate{
		candidate("low", 10), candidate("first", 20), candidate("tie", 30), candidate("seen", 40),
	}
	h.scorer.scores = map[string]int{
		"caption low":   60,
		"caption first": 85,
		"caption tie":   85,
		"caption seen":  99,
	}

	job := h.submit(t, "creator", 70)
	res := h.o.handle(ctx, attempt(TaskScrape, job.ID, 1))
	require.Equal(t, Success, res.Outcome)

	assert.NotContains(t, h.scorer.scored, "caption seen", "known clips are not scored")

	got, err := h.store.GetScrapeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapeCompleted, got.Status)
	assert.Equal(t, 1, got.VideosFound)

	videos, err := h.store.ListVideosByStatus(ctx, models.VideoDiscovered)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "first", videos[0].SourceVideoID)
	assert.Equal(t, "creator", videos[0].SourceAccount)
	require.NotNil(t, videos[0].Score)
	assert.Equal(t, 85, *videos[0].Score)

	pj, err := h.store.ActivePipelineJob(ctx, videos[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PipelinePending, pj.Status)
	assert.Equal(t, models.StepDownload, pj.CurrentStep)

	task := h.onlyTask(t, TaskProcess)
	assert.Equal(t, videos[0].ID, task.EntityID)
}

func TestRunScrapeNoWinner(t *testing.T) {
	tests := []struct {
		name       string
		candidates []models.Candidate
		scores     map[string]int
	}{
		{
			name: "below threshold",
			candidates: []models.Candidate{
				candidate("a", 1), candidate("b", 2),
			},
			scores: map[string]int{"caption a": 40, "caption b": 69},
		},
		{
			name:       "scoring failures are skipped",
			candidates: []models.Candidate{candidate("a", 1)},
			scores:     map[string]int{},
		},
		{
			name: "no candidates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			h.scraper.candidates["creator"] = tt.candidates
			h.scorer.scores = tt.scores

			job := h.submit(t, "creator", 70)
			res := h.o.handle(ctx, attempt(TaskScrape, job.ID, 1))
			assert.Equal(t, Success, res.Outcome)

			got, err := h.store.GetScrapeJob(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ScrapeCompleted, got.Status)
			assert.Equal(t, 0, got.VideosFound)
			assert.Empty(t, h.tasks.take())
		})
	}
}

func TestRunScrapeFailureRetriesThenFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.scraper.errs["creator"] = errors.Scrape("fake", nil, "profile unavailable")

	job := h.submit(t, "creator", 70)

	res := h.o.handle(ctx, attempt(TaskScrape, job.ID, 1))
	assert.Equal(t, Retry, res.Outcome)
	assert.True(t, errors.IsKind(res.Err, errors.KindScrape))

	got, err := h.store.GetScrapeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePending, got.Status)
	assert.Contains(t, got.Error, "profile unavailable")

	res = h.o.handle(ctx, attempt(TaskScrape, job.ID, 3))
	assert.Equal(t, Fatal, res.Outcome)

	got, err = h.store.GetScrapeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapeFailed, got.Status)

	// a finished job is never run again
	res = h.o.handle(ctx, attempt(TaskScrape, job.ID, 1))
	assert.Equal(t, Skip, res.Outcome)
}

// clashingStore makes the next pipeline job insert collide with an
// existing job id so the video insert has to be rolled back.
type clashingStore struct {
	*sqlstore.Store
	clashID string
	clashes int
}

func (s *clashingStore) CreateVideoWithJob(ctx context.Context, video *models.Video, job *models.PipelineJob) error {
	if s.clashes > 0 {
		s.clashes--
		job.ID = s.clashID
	}
	return s.Store.CreateVideoWithJob(ctx, video, job)
}

func TestRunScrapeJobInsertFailureKeepsSingleWinner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	old := h.seedVideo(t, "old", models.VideoPublished)
	existing := &models.PipelineJob{
		ID:          uuid.New().String(),
		VideoID:     old.ID,
		Status:      models.PipelineCompleted,
		CurrentStep: models.StepPublished,
	}
	require.NoError(t, h.store.CreatePipelineJob(ctx, existing))
	h.o.store = &clashingStore{Store: h.store, clashID: existing.ID, clashes: 1}

	h.scraper.candidates["creator"] = []models.Candidate{candidate("a", 1), candidate("b", 2)}
	h.scorer.scores = map[string]int{"caption a": 90, "caption b": 80}

	job := h.submit(t, "creator", 70)

	res := h.o.handle(ctx, attempt(TaskScrape, job.ID, 1))
	require.Equal(t, Retry, res.Outcome)

	exists, err := h.store.SourceVideoExists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists, "failed job insert must not leave the video behind")
	assert.Empty(t, h.tasks.take())

	res = h.o.handle(ctx, attempt(TaskScrape, job.ID, 2))
	require.Equal(t, Success, res.Outcome)

	videos, err := h.store.ListVideosByStatus(ctx, models.VideoDiscovered)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "a", videos[0].SourceVideoID)

	_, err = h.store.ActivePipelineJob(ctx, videos[0].ID)
	require.NoError(t, err)

	got, err := h.store.GetScrapeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapeCompleted, got.Status)
	assert.Equal(t, 1, got.VideosFound)
	h.onlyTask(t, TaskProcess)
}

// cancellingScorer simulates shutdown arriving while a caption is scored.
type cancellingScorer struct {
	cancel context.CancelFunc
}

func (s *cancellingScorer) Score(ctx context.Context, caption string) (int, error) {
	s.cancel()
	return 0, errors.Scoring("cancellingScorer.Score", ctx.Err(), "scoring aborted")
}

func TestRunScrapeCancelledDuringScoring(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		status  models.ScrapeJobStatus
		outcome Outcome
	}{
		{name: "attempts remain", attempt: 1, status: models.ScrapePending, outcome: Retry},
		{name: "last attempt", attempt: 3, status: models.ScrapeFailed, outcome: Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.scraper.candidates["creator"] = []models.Candidate{candidate("a", 1), candidate("b", 2)}

			job := h.submit(t, "creator", 70)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			h.o.scorer = &cancellingScorer{cancel: cancel}

			res := h.o.handle(ctx, attempt(TaskScrape, job.ID, tt.attempt))
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.ErrorIs(t, res.Err, context.Canceled)

			got, err := h.store.GetScrapeJob(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, 0, got.VideosFound)
			assert.Contains(t, got.Error, "context canceled")
		})
	}
}

func TestRunSweepCancelledDuringFetch(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.AddSourceAccount(context.Background(), &models.SourceAccount{
		ID:     uuid.New().String(),
		Handle: "creator",
	}, 5))

	job, err := h.o.TriggerSweep(context.Background())
	require.NoError(t, err)
	h.onlyTask(t, TaskSweep)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.scraper.onFetch = cancel
	h.scraper.errs["creator"] = errors.Scrape("fakeScraper.FetchRecent", context.Canceled, "request aborted")

	res := h.o.handle(ctx, attempt(TaskSweep, job.ID, 1))
	assert.Equal(t, Retry, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)

	got, err := h.store.GetScrapeJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapePending, got.Status)
	assert.Contains(t, got.Error, "sweep interrupted")
}

func TestSubmitScrape(t *testing.T) {
	ctx := context.Background()

	t.Run("default min score", func(t *testing.T) {
		h := newHarness(t)
		job, err := h.o.SubmitScrape(ctx, "creator", nil)
		require.NoError(t, err)
		assert.Equal(t, 70, job.MinScore)
		assert.Equal(t, models.ScrapePending, job.Status)
	})

	t.Run("min score out of range", func(t *testing.T) {
		h := newHarness(t)
		score := 101
		_, err := h.o.SubmitScrape(ctx, "creator", &score)
		require.Error(t, err)
		assert.Empty(t, h.tasks.take())
	})

	t.Run("queue full fails the job", func(t *testing.T) {
		h := newHarness(t)
		h.tasks.full = true
		_, err := h.o.SubmitScrape(ctx, "creator", nil)
		require.Error(t, err)

		failed, err := h.store.ListScrapeJobsByStatus(ctx, models.ScrapeFailed)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Contains(t, failed[0].Error, "full")
	})
}

func TestRunSweepPicksMostViewed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i, handle := range []string{"alpha", "broken", "gamma"} {
		require.NoError(t, h.store.AddSourceAccount(ctx, &models.SourceAccount{
			ID:        uuid.New().String(),
			Handle:    handle,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}, 5))
	}
	h.seedVideo(t, "viral", models.VideoPublished)
	h.scraper.candidates["alpha"] = []models.Candidate{candidate("a1", 500), candidate("viral", 9000)}
	h.scraper.errs["broken"] = errors.Scrape("fake", nil, "rate limited")
	h.scraper.candidates["gamma"] = []models.Candidate{candidate("g1", 900), candidate("g2", 900)}

	job, err := h.o.TriggerSweep(ctx)
	require.NoError(t, err)
	assert.True(t, job.Sweep)
	assert.Equal(t, SweepAccount, job.SourceAccount)
	h.onlyTask(t, TaskSweep)

	res := h.o.handle(ctx, attempt(TaskSweep, job.ID, 1))
	require.Equal(t, Success, res.Outcome)
	assert.Equal(t, []string{"alpha", "broken", "gamma"}, h.scraper.calls)
	assert.Empty(t, h.scorer.scored, "sweeps rank by views")

	got, err := h.store.GetScrapeJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapeCompleted, got.Status)
	assert.Equal(t, 1, got.VideosFound)

	videos, err := h.store.ListVideosByStatus(ctx, models.VideoDiscovered)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "g1", videos[0].SourceVideoID)
	assert.Equal(t, "gamma", videos[0].SourceAccount)
	assert.Nil(t, videos[0].Score)

	h.onlyTask(t, TaskProcess)
}

func TestProcessAndPublish(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedChannel(t)

	h.scraper.candidates["creator"] = []models.Candidate{candidate("win", 100)}
	h.scorer.scores = map[string]int{"caption win": 90}

	job := h.submit(t, "creator", 70)
	require.Equal(t, Success, h.o.handle(ctx, attempt(TaskScrape, job.ID, 1)).Outcome)
	process := h.onlyTask(t, TaskProcess)

	require.Equal(t, Success, h.o.handle(ctx, process).Outcome)

	video := h.video(t, process.EntityID)
	assert.Equal(t, models.VideoReady, video.Status)
	assert.Equal(t, "Title: caption win", video.Title)
	assert.Equal(t, "Wait for it...", video.HookText)
	assert.Empty(t, video.RawFilePath)
	assert.FileExists(t, video.ComposedFilePath)
	for _, raw := range h.composer.raws {
		assert.NoFileExists(t, raw)
	}

	jobs, err := h.store.ListPipelineJobs(ctx, video.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.PipelineCompleted, jobs[0].Status)
	assert.Equal(t, models.StepReady, jobs[0].CurrentStep)

	publish := h.onlyTask(t, TaskPublish)
	assert.True(t, publish.NotBefore.IsZero(), "an unset window publishes immediately")

	require.Equal(t, Success, h.o.handle(ctx, publish).Outcome)

	video = h.video(t, video.ID)
	assert.Equal(t, models.VideoPublished, video.Status)
	assert.Equal(t, "https://youtube.com/shorts/ytwin", video.DestinationURL)
	assert.NoFileExists(t, video.ComposedFilePath)

	jobs, err = h.store.ListPipelineJobs(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepPublished, jobs[0].CurrentStep)

	// a duplicate publish task is a no-op
	assert.Equal(t, Skip, h.o.handle(ctx, publish).Outcome)
	assert.Equal(t, 1, h.publisher.calls)
}

func TestProcessDefersPublishToWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.settings.settings.PublishTimeStart = "09:00"
	h.settings.settings.PublishTimeEnd = "21:00"
	h.o.now = func() time.Time { return time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC) }

	video := h.seedVideo(t, "late", models.VideoDiscovered)
	require.NoError(t, h.store.CreatePipelineJob(ctx, &models.PipelineJob{
		ID:      uuid.New().String(),
		VideoID: video.ID,
		Status:  models.PipelinePending,
	}))

	require.Equal(t, Success, h.o.handle(ctx, attempt(TaskProcess, video.ID, 1)).Outcome)

	publish := h.onlyTask(t, TaskPublish)
	assert.Equal(t, time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), publish.NotBefore)
}

func TestProcessFailureRetriesThenErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.composer.composeErr = errors.Composition("fake", nil, "encode")

	video := h.seedVideo(t, "broken", models.VideoDiscovered)
	pj := &models.PipelineJob{
		ID:          uuid.New().String(),
		VideoID:     video.ID,
		Status:      models.PipelinePending,
		CurrentStep: models.StepDownload,
	}
	require.NoError(t, h.store.CreatePipelineJob(ctx, pj))

	res := h.o.handle(ctx, attempt(TaskProcess, video.ID, 1))
	assert.Equal(t, Retry, res.Outcome)
	assert.True(t, errors.IsKind(res.Err, errors.KindComposition))

	got := h.video(t, video.ID)
	assert.Equal(t, models.VideoProcessing, got.Status)
	assert.Contains(t, got.Error, "encode")

	active, err := h.store.ActivePipelineJob(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PipelinePending, active.Status)
	assert.Equal(t, models.StepDownloadHook, active.CurrentStep)

	res = h.o.handle(ctx, attempt(TaskProcess, video.ID, 3))
	assert.Equal(t, Fatal, res.Outcome)

	got = h.video(t, video.ID)
	assert.Equal(t, models.VideoError, got.Status)

	jobs, err := h.store.ListPipelineJobs(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PipelineFailed, jobs[0].Status)

	for _, raw := range h.composer.raws {
		assert.NoFileExists(t, raw)
	}
	assert.Empty(t, h.tasks.take())
}

func TestQuotaPauseAndRetry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedChannel(t)
	h.publisher.errs = []error{errors.QuotaExceeded("fake", nil, "quotaExceeded")}

	video := h.seedVideo(t, "quota", models.VideoReady)

	res := h.o.handle(ctx, attempt(TaskPublish, video.ID, 1))
	assert.Equal(t, Skip, res.Outcome, "quota failures are not retried by the queue")
	assert.True(t, errors.IsQuotaExceeded(res.Err))
	assert.Equal(t, models.VideoPausedQuota, h.video(t, video.ID).Status)

	retried, err := h.o.RetryPausedVideos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)
	assert.Equal(t, models.VideoRetrying, h.video(t, video.ID).Status)

	// a second sweep finds nothing to move
	retried, err = h.o.RetryPausedVideos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, retried)

	publish := h.onlyTask(t, TaskPublish)
	assert.True(t, publish.NotBefore.IsZero(), "quota retries ignore the window")

	require.Equal(t, Success, h.o.handle(ctx, publish).Outcome)
	got := h.video(t, video.ID)
	assert.Equal(t, models.VideoPublished, got.Status)
	assert.Empty(t, got.Error)
	assert.Equal(t, 2, h.publisher.calls)
}

func TestPublishFailures(t *testing.T) {
	tests := []struct {
		name    string
		channel bool
		errs    []error
		attempt int
		outcome Outcome
		status  models.VideoStatus
		message string
	}{
		{
			name:    "no channel connected",
			attempt: 1,
			outcome: Fatal,
			status:  models.VideoError,
			message: noChannelMessage,
		},
		{
			name:    "retryable upload failure",
			channel: true,
			errs:    []error{errors.Publish("fake", fmt.Errorf("connection reset"), "upload")},
			attempt: 1,
			outcome: Retry,
			status:  models.VideoReady,
			message: "connection reset",
		},
		{
			name:    "last attempt",
			channel: true,
			errs:    []error{errors.Publish("fake", fmt.Errorf("connection reset"), "upload")},
			attempt: 3,
			outcome: Fatal,
			status:  models.VideoError,
			message: "connection reset",
		},
		{
			name:    "quota on last attempt",
			channel: true,
			errs:    []error{errors.QuotaExceeded("fake", nil, "dailyLimitExceeded")},
			attempt: 3,
			outcome: Skip,
			status:  models.VideoPausedQuota,
			message: "quota exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			if tt.channel {
				h.seedChannel(t)
			}
			h.publisher.errs = tt.errs

			video := h.seedVideo(t, "v", models.VideoReady)
			res := h.o.handle(ctx, attempt(TaskPublish, video.ID, tt.attempt))
			assert.Equal(t, tt.outcome, res.Outcome)

			got := h.video(t, video.ID)
			assert.Equal(t, tt.status, got.Status)
			assert.Contains(t, got.Error, tt.message)
			assert.Empty(t, got.DestinationURL)
		})
	}
}

func TestRecoverStale(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	running := &models.ScrapeJob{ID: uuid.New().String(), SourceAccount: "creator", Status: models.ScrapePending}
	require.NoError(t, h.store.CreateScrapeJob(ctx, running))
	running.Status = models.ScrapeRunning
	require.NoError(t, h.store.UpdateScrapeJob(ctx, running))

	queued := &models.ScrapeJob{ID: uuid.New().String(), SourceAccount: SweepAccount, Sweep: true, Status: models.ScrapePending}
	require.NoError(t, h.store.CreateScrapeJob(ctx, queued))

	processing := h.seedVideo(t, "processing", models.VideoProcessing)
	require.NoError(t, h.store.CreatePipelineJob(ctx, &models.PipelineJob{
		ID:          uuid.New().String(),
		VideoID:     processing.ID,
		Status:      models.PipelineRunning,
		CurrentStep: models.StepDownloadHook,
	}))
	retrying := h.seedVideo(t, "retrying", models.VideoRetrying)
	ready := h.seedVideo(t, "ready", models.VideoReady)

	require.NoError(t, h.o.RecoverStale(ctx))

	got, err := h.store.GetScrapeJob(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScrapeFailed, got.Status)
	assert.Equal(t, interruptedMessage, got.Error)

	video := h.video(t, processing.ID)
	assert.Equal(t, models.VideoError, video.Status)
	assert.Equal(t, interruptedMessage, video.Error)

	jobs, err := h.store.ListPipelineJobs(ctx, processing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PipelineFailed, jobs[0].Status)
	assert.Equal(t, models.StepDownloadHook, jobs[0].CurrentStep, "the interrupted step is kept")

	assert.Equal(t, models.VideoPausedQuota, h.video(t, retrying.ID).Status)

	byKind := map[TaskKind][]string{}
	for _, task := range h.tasks.take() {
		byKind[task.Kind] = append(byKind[task.Kind], task.EntityID)
	}
	assert.Equal(t, []string{queued.ID}, byKind[TaskSweep])
	assert.Equal(t, []string{ready.ID}, byKind[TaskPublish])
	assert.Empty(t, byKind[TaskProcess])
}
