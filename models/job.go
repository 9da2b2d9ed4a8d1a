package models

import "time"

type ScrapeJobStatus string

const (
	ScrapePending   ScrapeJobStatus = "pending"
	ScrapeRunning   ScrapeJobStatus = "running"
	ScrapeCompleted ScrapeJobStatus = "completed"
	ScrapeFailed    ScrapeJobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s ScrapeJobStatus) Terminal() bool {
	return s == ScrapeCompleted || s == ScrapeFailed
}

// ScrapeJob is one on-demand or scheduled scrape invocation.
type ScrapeJob struct {
	ID            string          `json:"id"`
	SourceAccount string          `json:"source_account"`
	MinScore      int             `json:"min_score"`
	Sweep         bool            `json:"sweep"`
	Status        ScrapeJobStatus `json:"status"`
	VideosFound   int             `json:"videos_found"`
	Error         string          `json:"error_message,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type PipelineJobStatus string

const (
	PipelinePending   PipelineJobStatus = "pending"
	PipelineRunning   PipelineJobStatus = "running"
	PipelineCompleted PipelineJobStatus = "completed"
	PipelineFailed    PipelineJobStatus = "failed"
)

// Active reports whether a job with this status still owns its video.
func (s PipelineJobStatus) Active() bool {
	return s == PipelinePending || s == PipelineRunning
}

// Step labels recorded on a pipeline job.
const (
	StepDownload     = "download"
	StepDownloadHook = "download & hook"
	StepReady        = "ready"
	StepPublished    = "published"
)

// PipelineJob tracks processing progress for one Video.
type PipelineJob struct {
	ID          string            `json:"id"`
	VideoID     string            `json:"video_id"`
	Status      PipelineJobStatus `json:"status"`
	CurrentStep string            `json:"current_step"`
	Error       string            `json:"error_message,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
