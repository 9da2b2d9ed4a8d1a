package publisher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/logger"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantQuota  bool
		wantReason string
	}{
		{
			name:       "quota exceeded reason",
			err:        &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}}},
			wantQuota:  true,
			wantReason: "quotaExceeded",
		},
		{
			name:       "upload limit",
			err:        &googleapi.Error{Code: 400, Errors: []googleapi.ErrorItem{{Reason: "uploadLimitExceeded"}}},
			wantQuota:  true,
			wantReason: "uploadLimitExceeded",
		},
		{
			name:       "wrapped too many requests",
			err:        fmt.Errorf("upload: %w", &googleapi.Error{Code: 429}),
			wantQuota:  true,
			wantReason: "rateLimitExceeded",
		},
		{
			name: "forbidden for other reason",
			err:  &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "forbidden"}}},
		},
		{
			name: "message mentioning quota is not enough",
			err:  fmt.Errorf("quota service unavailable"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("test", tt.err)
			assert.Equal(t, tt.wantQuota, errors.IsQuotaExceeded(got))
			if tt.wantQuota {
				var quotaErr *errors.QuotaExceededError
				require.True(t, errors.As(got, &quotaErr))
				assert.Equal(t, tt.wantReason, quotaErr.Reason)
				assert.False(t, errors.IsKind(got, errors.KindPublish))
			} else {
				assert.True(t, errors.IsKind(got, errors.KindPublish))
			}
		})
	}
}

func TestShortsURL(t *testing.T) {
	assert.Equal(t, "https://youtube.com/shorts/abc123", ShortsURL("abc123"))
}

type tokenRecorder struct {
	repository.ChannelRepository
	updated []models.DestinationChannel
}

func (r *tokenRecorder) UpdateChannelTokens(ctx context.Context, channel *models.DestinationChannel) error {
	r.updated = append(r.updated, *channel)
	return nil
}

type sequenceSource struct {
	tokens []*oauth2.Token
	i      int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	token := s.tokens[s.i]
	if s.i < len(s.tokens)-1 {
		s.i++
	}
	return token, nil
}

func TestPersistingTokenSource(t *testing.T) {
	recorder := &tokenRecorder{}
	channel := &models.DestinationChannel{ChannelID: "UC1", AccessToken: "old", RefreshToken: "refresh"}
	expiry := time.Now().Add(time.Hour)

	source := &persistingTokenSource{
		base: &sequenceSource{tokens: []*oauth2.Token{
			{AccessToken: "old"},
			{AccessToken: "new", Expiry: expiry},
			{AccessToken: "new", Expiry: expiry},
		}},
		channel:  channel,
		channels: recorder,
		last:     channel.AccessToken,
		logger:   logger.Discard(),
	}

	for i := 0; i < 3; i++ {
		_, err := source.Token()
		require.NoError(t, err)
	}

	require.Len(t, recorder.updated, 1)
	assert.Equal(t, "new", recorder.updated[0].AccessToken)
	assert.Equal(t, "refresh", recorder.updated[0].RefreshToken, "refresh token kept when not rotated")
	assert.Equal(t, "new", channel.AccessToken)
}

func TestLookupChannel(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantNil  bool
		wantName string
	}{
		{"found", `{"items":[{"id":"UC123","snippet":{"title":"Main Channel"}}]}`, false, "Main Channel"},
		{"no channel", `{"items":[]}`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Contains(t, r.URL.Path, "channels")
				assert.Equal(t, "true", r.URL.Query().Get("mine"))
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			svc, err := youtube.NewService(context.Background(),
				option.WithHTTPClient(server.Client()),
				option.WithEndpoint(server.URL+"/"),
			)
			require.NoError(t, err)

			channel, err := lookupChannel(context.Background(), svc)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, channel)
				return
			}
			require.NotNil(t, channel)
			assert.Equal(t, "UC123", channel.ChannelID)
			assert.Equal(t, tt.wantName, channel.DisplayName)
		})
	}
}

func TestPublishMissingFile(t *testing.T) {
	p := NewYouTube(config.YouTubeConfig{ChunkSize: 1024}, &tokenRecorder{}, logger.Discard())

	_, err := p.Publish(context.Background(), &models.Video{
		ID:               "v1",
		ComposedFilePath: filepath.Join(t.TempDir(), "missing.mp4"),
	}, &models.DestinationChannel{ChannelID: "UC1"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindPublish))
	assert.False(t, errors.IsQuotaExceeded(err))
}

func TestAuthURL(t *testing.T) {
	p := NewYouTube(config.YouTubeConfig{ClientID: "client", RedirectURL: "http://default/cb"}, &tokenRecorder{}, logger.Discard())

	url := p.AuthURL("http://localhost:3000/callback")
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "prompt=consent")
	assert.Contains(t, url, "client_id=client")
	assert.Contains(t, url, "redirect_uri=http%3A%2F%2Flocalhost%3A3000%2Fcallback")
	assert.Contains(t, url, "youtube.upload")
}

func TestChannelAnalytics(t *testing.T) {
	tests := []struct {
		name       string
		channels   string
		wantNil    bool
		wantRecent []models.VideoAnalytics
	}{
		{
			name: "channel with uploads",
			channels: `{"items":[{"id":"UC123",
				"snippet":{"title":"Main Channel","thumbnails":{"default":{"url":"https://img/ch.jpg"}}},
				"statistics":{"subscriberCount":"120","viewCount":"4500","videoCount":"7"},
				"contentDetails":{"relatedPlaylists":{"uploads":"UU123"}}}]}`,
			wantRecent: []models.VideoAnalytics{
				{ID: "v1", Title: "First", PublishedAt: "2024-05-01T10:00:00Z", ViewCount: 300, LikeCount: 12, CommentCount: 3},
				{ID: "v2", Title: "Second", PublishedAt: "2024-04-30T10:00:00Z", ViewCount: 90},
			},
		},
		{
			name:       "channel without uploads playlist",
			channels:   `{"items":[{"id":"UC123","snippet":{"title":"Main Channel"},"statistics":{"subscriberCount":"120","viewCount":"4500","videoCount":"7"}}]}`,
			wantRecent: []models.VideoAnalytics{},
		},
		{
			name:     "no channel",
			channels: `{"items":[]}`,
			wantNil:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				switch {
				case strings.HasSuffix(r.URL.Path, "/channels"):
					assert.Equal(t, "true", r.URL.Query().Get("mine"))
					fmt.Fprint(w, tt.channels)
				case strings.HasSuffix(r.URL.Path, "/playlistItems"):
					assert.Equal(t, "UU123", r.URL.Query().Get("playlistId"))
					assert.Equal(t, "5", r.URL.Query().Get("maxResults"))
					fmt.Fprint(w, `{"items":[
						{"snippet":{"resourceId":{"videoId":"v1"}}},
						{"snippet":{"resourceId":{"videoId":"v2"}}}]}`)
				case strings.HasSuffix(r.URL.Path, "/videos"):
					assert.Equal(t, "v1,v2", r.URL.Query().Get("id"))
					fmt.Fprint(w, `{"items":[
						{"id":"v1","snippet":{"title":"First","publishedAt":"2024-05-01T10:00:00Z"},
						 "statistics":{"viewCount":"300","likeCount":"12","commentCount":"3"}},
						{"id":"v2","snippet":{"title":"Second","publishedAt":"2024-04-30T10:00:00Z"},
						 "statistics":{"viewCount":"90"}}]}`)
				default:
					t.Errorf("unexpected request %s", r.URL.Path)
					http.NotFound(w, r)
				}
			}))
			defer server.Close()

			svc, err := youtube.NewService(context.Background(),
				option.WithHTTPClient(server.Client()),
				option.WithEndpoint(server.URL+"/"),
			)
			require.NoError(t, err)

			stats, err := channelAnalytics(context.Background(), svc, recentUploads)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, stats)
				return
			}
			require.NotNil(t, stats)
			assert.Equal(t, "UC123", stats.ChannelID)
			assert.Equal(t, "Main Channel", stats.ChannelName)
			assert.Equal(t, uint64(120), stats.SubscriberCount)
			assert.Equal(t, uint64(4500), stats.ViewCount)
			assert.Equal(t, uint64(7), stats.VideoCount)
			assert.Equal(t, tt.wantRecent, stats.RecentVideos)
		})
	}
}
