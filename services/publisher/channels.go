package publisher

import (
	"context"

	"github.com/nijaru/reelflow/models"
	"google.golang.org/api/youtube/v3"
)

// lookupChannel returns the authenticated user's channel, or nil when the
// account has none.
func lookupChannel(ctx context.Context, svc *youtube.Service) (*models.DestinationChannel, error) {
	res, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, nil
	}

	item := res.Items[0]
	channel := &models.DestinationChannel{ChannelID: item.Id}
	if item.Snippet != nil {
		channel.DisplayName = item.Snippet.Title
	}
	return channel, nil
}
