package repository

import (
	"context"

	"github.com/nijaru/reelflow/models"
)

type ScrapeJobRepository interface {
	CreateScrapeJob(ctx context.Context, job *models.ScrapeJob) error
	GetScrapeJob(ctx context.Context, id string) (*models.ScrapeJob, error)
	// UpdateScrapeJob persists status, count and error. Terminal jobs are
	// not modified and yield a conflict error.
	UpdateScrapeJob(ctx context.Context, job *models.ScrapeJob) error
	ListScrapeJobs(ctx context.Context, limit int) ([]*models.ScrapeJob, error)
	ListScrapeJobsByStatus(ctx context.Context, status models.ScrapeJobStatus) ([]*models.ScrapeJob, error)
}

type VideoRepository interface {
	// CreateVideo inserts a new video. It returns errors.ErrDuplicate when a
	// video with the same source video id already exists.
	CreateVideo(ctx context.Context, video *models.Video) error
	// CreateVideoWithJob inserts a video together with its first pipeline
	// job atomically. Duplicates yield errors.ErrDuplicate.
	CreateVideoWithJob(ctx context.Context, video *models.Video, job *models.PipelineJob) error
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	SourceVideoExists(ctx context.Context, sourceVideoID string) (bool, error)
	UpdateVideo(ctx context.Context, video *models.Video) error
	// TransitionVideo moves a video from one status to another atomically.
	// It reports false when the video was not in the expected status.
	TransitionVideo(ctx context.Context, id string, from, to models.VideoStatus) (bool, error)
	ListVideos(ctx context.Context, limit int) ([]*models.Video, error)
	ListVideosByStatus(ctx context.Context, status models.VideoStatus) ([]*models.Video, error)
	VideoStats(ctx context.Context) (*models.VideoStats, error)
}

type PipelineJobRepository interface {
	// CreatePipelineJob fails with a conflict error when the video already
	// has an active job.
	CreatePipelineJob(ctx context.Context, job *models.PipelineJob) error
	UpdatePipelineJob(ctx context.Context, job *models.PipelineJob) error
	ActivePipelineJob(ctx context.Context, videoID string) (*models.PipelineJob, error)
	ListPipelineJobs(ctx context.Context, videoID string) ([]*models.PipelineJob, error)
	ListPipelineJobsByStatus(ctx context.Context, status models.PipelineJobStatus) ([]*models.PipelineJob, error)
}

type AccountRepository interface {
	// AddSourceAccount fails with a conflict error when the handle exists or
	// max accounts are already stored.
	AddSourceAccount(ctx context.Context, account *models.SourceAccount, max int) error
	ListSourceAccounts(ctx context.Context) ([]*models.SourceAccount, error)
	DeleteSourceAccount(ctx context.Context, handle string) error
}

type ChannelRepository interface {
	// UpsertChannel inserts or updates by destination channel id. New rows
	// fail with a conflict error when max channels are already stored.
	UpsertChannel(ctx context.Context, channel *models.DestinationChannel, max int) error
	GetChannel(ctx context.Context, id string) (*models.DestinationChannel, error)
	ListChannels(ctx context.Context) ([]*models.DestinationChannel, error)
	UpdateChannelTokens(ctx context.Context, channel *models.DestinationChannel) error
	DeleteChannel(ctx context.Context, id string) error
	CountChannels(ctx context.Context) (int, error)
}

// JobStore is the durable record of the pipeline.
type JobStore interface {
	ScrapeJobRepository
	VideoRepository
	PipelineJobRepository
	AccountRepository
	ChannelRepository
	Close() error
}
