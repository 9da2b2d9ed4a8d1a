// Package publisher uploads composed videos to YouTube.
package publisher

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Publisher uploads a composed video and returns its public URL. Quota
// exhaustion is reported as *errors.QuotaExceededError, any other failure
// as a publish StepError.
type Publisher interface {
	Publish(ctx context.Context, video *models.Video, channel *models.DestinationChannel) (string, error)
}

// quotaReasons are googleapi error reasons that mean the channel is out of
// upload quota rather than the request being bad.
var quotaReasons = map[string]bool{
	"quotaExceeded":       true,
	"uploadLimitExceeded": true,
	"dailyLimitExceeded":  true,
	"rateLimitExceeded":   true,
}

type YouTube struct {
	oauth    *oauth2.Config
	channels repository.ChannelRepository
	cfg      config.YouTubeConfig
	// serviceOpts are appended when building API clients.
	serviceOpts []option.ClientOption
	logger      *logrus.Logger
}

func NewYouTube(cfg config.YouTubeConfig, channels repository.ChannelRepository, logger *logrus.Logger) *YouTube {
	return &YouTube{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
		},
		channels: channels,
		cfg:      cfg,
		logger:   logger,
	}
}

func (p *YouTube) Publish(ctx context.Context, video *models.Video, channel *models.DestinationChannel) (string, error) {
	const op = "YouTube.Publish"
	logger := p.logger.WithFields(logrus.Fields{
		"video_id":   video.ID,
		"channel_id": channel.ChannelID,
	})

	if p.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.UploadTimeout)
		defer cancel()
	}

	f, err := os.Open(video.ComposedFilePath)
	if err != nil {
		return "", errors.Publish(op, err, "open composed file")
	}
	defer f.Close()

	var size int64
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}

	svc, err := p.service(ctx, p.channelClient(ctx, channel))
	if err != nil {
		return "", errors.Publish(op, err, "create YouTube client")
	}

	upload := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       video.Title,
			Description: video.Description,
			Tags:        video.Tags,
			CategoryId:  p.cfg.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           p.cfg.PrivacyStatus,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	logger.WithField("size_mb", float64(size)/1024/1024).Info("Uploading video")

	start := time.Now()
	lastStep := -1
	res, err := svc.Videos.Insert([]string{"snippet", "status"}, upload).
		Media(f, googleapi.ChunkSize(p.cfg.ChunkSize)).
		ProgressUpdater(func(current, total int64) {
			if total <= 0 {
				total = size
			}
			if total <= 0 {
				return
			}
			pct := int(current * 100 / total)
			if step := pct / 25; step > lastStep {
				lastStep = step
				logger.WithField("progress", pct).Info("Upload progress")
			}
		}).
		Context(ctx).
		Do()
	if err != nil {
		classified := classify(op, err)
		logger.WithError(err).Warn("Upload failed")
		return "", classified
	}

	url := ShortsURL(res.Id)
	logger.WithFields(logrus.Fields{
		"url":      url,
		"duration": time.Since(start),
	}).Info("Video published")
	return url, nil
}

// ShortsURL is the public URL of an uploaded short.
func ShortsURL(id string) string {
	return fmt.Sprintf("https://youtube.com/shorts/%s", id)
}

// classify separates quota exhaustion from other upload failures.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, item := range apiErr.Errors {
			if quotaReasons[item.Reason] {
				return errors.QuotaExceeded(op, err, item.Reason)
			}
		}
		if apiErr.Code == http.StatusTooManyRequests {
			return errors.QuotaExceeded(op, err, "rateLimitExceeded")
		}
	}
	return errors.Publish(op, err, "upload failed")
}

func (p *YouTube) service(ctx context.Context, client *http.Client) (*youtube.Service, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, p.serviceOpts...)
	return youtube.NewService(ctx, opts...)
}
