package models

// ScrapeRequest is the body of a job submission.
type ScrapeRequest struct {
	SourceAccountHandle string `json:"source_account_handle" validate:"required,handle"`
	MinScore            *int   `json:"min_score,omitempty" validate:"omitempty,min=0,max=100"`
}

type ScrapeResponse struct {
	JobID  string          `json:"job_id"`
	Status ScrapeJobStatus `json:"status"`
}

type AccountRequest struct {
	Handle string `json:"handle" validate:"required,handle"`
}

type AuthCallbackRequest struct {
	Code        string `json:"code" validate:"required"`
	RedirectURI string `json:"redirect_uri" validate:"omitempty,url"`
}

// VideoResponse represents the API view of a video
type VideoResponse struct {
	ID             string      `json:"id"`
	SourceVideoID  string      `json:"source_video_id"`
	SourceURL      string      `json:"source_url"`
	SourceAccount  string      `json:"source_account"`
	Caption        string      `json:"caption"`
	ViewCount      int64       `json:"view_count"`
	Score          *int        `json:"score,omitempty"`
	Status         VideoStatus `json:"status"`
	Title          string      `json:"title,omitempty"`
	Description    string      `json:"description,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	DestinationURL string      `json:"destination_url,omitempty"`
	Error          string      `json:"error_message,omitempty"`
	CreatedAt      string      `json:"created_at"`
}

// NewVideoResponse creates a response from a video model
func NewVideoResponse(v *Video) *VideoResponse {
	return &VideoResponse{
		ID:             v.ID,
		SourceVideoID:  v.SourceVideoID,
		SourceURL:      v.SourceURL,
		SourceAccount:  v.SourceAccount,
		Caption:        v.Caption,
		ViewCount:      v.ViewCount,
		Score:          v.Score,
		Status:         v.Status,
		Title:          v.Title,
		Description:    v.Description,
		Tags:           v.Tags,
		DestinationURL: v.DestinationURL,
		Error:          v.Error,
		CreatedAt:      v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

type ChannelStatusResponse struct {
	Connected bool                `json:"connected"`
	Channel   *DestinationChannel `json:"channel,omitempty"`
}

type AnalyticsResponse struct {
	Channels []*ChannelAnalytics `json:"channels"`
}
