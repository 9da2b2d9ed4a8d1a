package api

import (
	"context"
	"net/http"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/repository"
	"github.com/nijaru/reelflow/validation"
	"github.com/sirupsen/logrus"
)

const (
	jobListLimit   = 10
	videoListLimit = 20
)

// Pipeline is the part of the orchestrator the API triggers.
type Pipeline interface {
	SubmitScrape(ctx context.Context, handle string, minScore *int) (*models.ScrapeJob, error)
	TriggerSweep(ctx context.Context) (*models.ScrapeJob, error)
	RetryPausedVideos(ctx context.Context) (int, error)
}

type JobHandler struct {
	pipeline  Pipeline
	store     repository.JobStore
	validator *validation.Validator
	logger    *logrus.Logger
}

func NewJobHandler(pipeline Pipeline, store repository.JobStore, validator *validation.Validator, logger *logrus.Logger) *JobHandler {
	return &JobHandler{
		pipeline:  pipeline,
		store:     store,
		validator: validator,
		logger:    logger,
	}
}

// HandleSubmitScrape handles POST /api/jobs/scrape
func (h *JobHandler) HandleSubmitScrape(w http.ResponseWriter, r *http.Request) {
	if err := h.validator.ValidateRequest(r, validation.RequestValidationOpts{
		MaxContentLength: maxJSONBody,
		RequireJSON:      true,
	}); err != nil {
		respondError(w, r, err)
		return
	}

	var req models.ScrapeRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(w, r, err)
		return
	}

	job, err := h.pipeline.SubmitScrape(r.Context(), req.SourceAccountHandle, req.MinScore)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusAccepted, models.ScrapeResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// HandleListJobs handles GET /api/jobs
func (h *JobHandler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.store.ListScrapeJobs(r.Context(), jobListLimit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*models.ScrapeJob{}
	}
	respondJSON(w, r, http.StatusOK, jobs)
}

// HandleSweep handles POST /api/sweep
func (h *JobHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	job, err := h.pipeline.TriggerSweep(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusAccepted, models.ScrapeResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// HandleQuotaRetry handles POST /api/quota-retry
func (h *JobHandler) HandleQuotaRetry(w http.ResponseWriter, r *http.Request) {
	retried, err := h.pipeline.RetryPausedVideos(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]int{"retried": retried})
}

// HandleListPipelineJobs handles GET /api/pipeline-jobs?video_id=
func (h *JobHandler) HandleListPipelineJobs(w http.ResponseWriter, r *http.Request) {
	const op = "JobHandler.HandleListPipelineJobs"

	videoID := r.URL.Query().Get("video_id")
	if videoID == "" {
		respondError(w, r, errors.InvalidInput(op, nil, "video_id is required"))
		return
	}

	jobs, err := h.store.ListPipelineJobs(r.Context(), videoID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*models.PipelineJob{}
	}
	respondJSON(w, r, http.StatusOK, jobs)
}

// HandleListVideos handles GET /api/videos
func (h *JobHandler) HandleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.store.ListVideos(r.Context(), videoListLimit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := make([]*models.VideoResponse, 0, len(videos))
	for _, v := range videos {
		resp = append(resp, models.NewVideoResponse(v))
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// HandleGetVideo handles GET /api/videos/{id}
func (h *JobHandler) HandleGetVideo(w http.ResponseWriter, r *http.Request) {
	video, err := h.store.GetVideo(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, models.NewVideoResponse(video))
}

// HandleVideoStats handles GET /api/videos/stats
func (h *JobHandler) HandleVideoStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.VideoStats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, stats)
}
