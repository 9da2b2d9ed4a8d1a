package models

import (
	"time"
)

type VideoStatus string

const (
	VideoDiscovered  VideoStatus = "discovered"
	VideoProcessing  VideoStatus = "processing"
	VideoReady       VideoStatus = "ready"
	VideoPublished   VideoStatus = "published"
	VideoPausedQuota VideoStatus = "paused_quota"
	VideoRetrying    VideoStatus = "retrying"
	VideoError       VideoStatus = "error"
)

// Valid reports whether s is one of the known video statuses.
func (s VideoStatus) Valid() bool {
	switch s {
	case VideoDiscovered, VideoProcessing, VideoReady, VideoPublished,
		VideoPausedQuota, VideoRetrying, VideoError:
		return true
	}
	return false
}

type Video struct {
	ID               string      `json:"id"`
	SourceVideoID    string      `json:"source_video_id"`
	SourceURL        string      `json:"source_url"`
	SourceAccount    string      `json:"source_account"`
	Caption          string      `json:"caption"`
	ViewCount        int64       `json:"view_count"`
	Score            *int        `json:"score,omitempty"`
	Status           VideoStatus `json:"status"`
	RawFilePath      string      `json:"raw_file_path,omitempty"`
	ComposedFilePath string      `json:"composed_file_path,omitempty"`
	HookText         string      `json:"hook_text,omitempty"`
	Title            string      `json:"title,omitempty"`
	Description      string      `json:"description,omitempty"`
	Tags             []string    `json:"tags,omitempty"`
	DestinationURL   string      `json:"destination_url,omitempty"`
	Error            string      `json:"error_message,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Status check methods
func (v *Video) IsPublished() bool   { return v.Status == VideoPublished }
func (v *Video) IsPausedQuota() bool { return v.Status == VideoPausedQuota }
func (v *Video) IsFailed() bool      { return v.Status == VideoError }

// InPipeline reports whether the video is still moving through processing.
func (v *Video) InPipeline() bool {
	switch v.Status {
	case VideoProcessing, VideoReady, VideoRetrying:
		return true
	}
	return false
}

// VideoStats summarises the video table for the dashboard.
type VideoStats struct {
	Total          int `json:"total"`
	InPipeline     int `json:"in_pipeline"`
	Published      int `json:"published"`
	PausedQuota    int `json:"paused_quota"`
	Errored        int `json:"errored"`
	Channels       int `json:"channels"`
	SourceAccounts int `json:"source_accounts"`
}

// ChannelAnalytics is a destination channel's public statistics with its
// most recent uploads.
type ChannelAnalytics struct {
	ID              string           `json:"id"`
	ChannelID       string           `json:"channel_id"`
	ChannelName     string           `json:"channel_name"`
	SubscriberCount uint64           `json:"subscriber_count"`
	ViewCount       uint64           `json:"view_count"`
	VideoCount      uint64           `json:"video_count"`
	Thumbnail       string           `json:"thumbnail,omitempty"`
	RecentVideos    []VideoAnalytics `json:"recent_videos"`
}

type VideoAnalytics struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	PublishedAt  string `json:"published_at"`
	ViewCount    uint64 `json:"view_count"`
	LikeCount    uint64 `json:"like_count"`
	CommentCount uint64 `json:"comment_count"`
}
