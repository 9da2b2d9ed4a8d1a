package publisher

import (
	"context"

	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"google.golang.org/api/youtube/v3"
)

// recentUploads is how many of a channel's latest uploads Analytics reports.
const recentUploads = 5

// Analytics returns the channel's statistics and its most recent uploads.
// Refreshed tokens are persisted like during publishing.
func (p *YouTube) Analytics(ctx context.Context, channel *models.DestinationChannel) (*models.ChannelAnalytics, error) {
	const op = "YouTube.Analytics"

	svc, err := p.service(ctx, p.channelClient(ctx, channel))
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to create YouTube client")
	}

	stats, err := channelAnalytics(ctx, svc, recentUploads)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to load channel analytics")
	}
	if stats == nil {
		return nil, errors.NotFound(op, nil, "YouTube channel not found")
	}

	stats.ID = channel.ID
	return stats, nil
}

// channelAnalytics reads the authenticated channel and the statistics of
// its latest uploads. It returns nil when the account has no channel.
func channelAnalytics(ctx context.Context, svc *youtube.Service, limit int64) (*models.ChannelAnalytics, error) {
	res, err := svc.Channels.List([]string{"snippet", "statistics", "contentDetails"}).
		Mine(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, nil
	}

	item := res.Items[0]
	stats := &models.ChannelAnalytics{
		ChannelID:    item.Id,
		RecentVideos: []models.VideoAnalytics{},
	}
	if item.Snippet != nil {
		stats.ChannelName = item.Snippet.Title
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Default != nil {
			stats.Thumbnail = item.Snippet.Thumbnails.Default.Url
		}
	}
	if item.Statistics != nil {
		stats.SubscriberCount = item.Statistics.SubscriberCount
		stats.ViewCount = item.Statistics.ViewCount
		stats.VideoCount = item.Statistics.VideoCount
	}

	if item.ContentDetails == nil || item.ContentDetails.RelatedPlaylists == nil ||
		item.ContentDetails.RelatedPlaylists.Uploads == "" {
		return stats, nil
	}

	recent, err := recentVideoStats(ctx, svc, item.ContentDetails.RelatedPlaylists.Uploads, limit)
	if err != nil {
		return nil, err
	}
	stats.RecentVideos = recent
	return stats, nil
}

func recentVideoStats(ctx context.Context, svc *youtube.Service, playlistID string, limit int64) ([]models.VideoAnalytics, error) {
	items, err := svc.PlaylistItems.List([]string{"snippet"}).
		PlaylistId(playlistID).
		MaxResults(limit).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items.Items))
	for _, item := range items.Items {
		if item.Snippet != nil && item.Snippet.ResourceId != nil && item.Snippet.ResourceId.VideoId != "" {
			ids = append(ids, item.Snippet.ResourceId.VideoId)
		}
	}
	if len(ids) == 0 {
		return []models.VideoAnalytics{}, nil
	}

	res, err := svc.Videos.List([]string{"snippet", "statistics"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	videos := make([]models.VideoAnalytics, 0, len(res.Items))
	for _, item := range res.Items {
		v := models.VideoAnalytics{ID: item.Id}
		if item.Snippet != nil {
			v.Title = item.Snippet.Title
			v.PublishedAt = item.Snippet.PublishedAt
		}
		if item.Statistics != nil {
			v.ViewCount = item.Statistics.ViewCount
			v.LikeCount = item.Statistics.LikeCount
			v.CommentCount = item.Statistics.CommentCount
		}
		videos = append(videos, v)
	}
	return videos, nil
}
