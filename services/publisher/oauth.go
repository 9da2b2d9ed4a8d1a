package publisher

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// AuthURL returns the consent page URL for connecting a channel.
func (p *YouTube) AuthURL(redirectURL string) string {
	return p.config(redirectURL).AuthCodeURL("reelflow",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Connect exchanges an authorization code and looks up the caller's
// channel. The returned channel is not persisted.
func (p *YouTube) Connect(ctx context.Context, code, redirectURL string) (*models.DestinationChannel, error) {
	const op = "YouTube.Connect"

	token, err := p.config(redirectURL).Exchange(ctx, code)
	if err != nil {
		return nil, errors.InvalidInput(op, err, "Failed to exchange authorization code")
	}

	client := p.config(redirectURL).Client(ctx, token)
	svc, err := p.service(ctx, client)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to create YouTube client")
	}

	channel, err := lookupChannel(ctx, svc)
	if err != nil {
		return nil, errors.Internal(op, err, "Failed to look up channel")
	}
	if channel == nil {
		return nil, errors.InvalidInput(op, nil, "No YouTube channel found for this account")
	}

	channel.ID = uuid.New().String()
	channel.AccessToken = token.AccessToken
	channel.RefreshToken = token.RefreshToken
	channel.TokenExpiry = token.Expiry
	return channel, nil
}

func (p *YouTube) config(redirectURL string) *oauth2.Config {
	cfg := *p.oauth
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return &cfg
}

// channelClient returns an HTTP client that refreshes the channel's token
// when expired and writes refreshed tokens back to the store.
func (p *YouTube) channelClient(ctx context.Context, channel *models.DestinationChannel) *http.Client {
	token := &oauth2.Token{
		AccessToken:  channel.AccessToken,
		RefreshToken: channel.RefreshToken,
		Expiry:       channel.TokenExpiry,
	}
	source := &persistingTokenSource{
		base:     p.oauth.TokenSource(ctx, token),
		channel:  channel,
		channels: p.channels,
		last:     channel.AccessToken,
		logger:   p.logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, source))
}

type persistingTokenSource struct {
	mu       sync.Mutex
	base     oauth2.TokenSource
	channel  *models.DestinationChannel
	channels repository.ChannelRepository
	last     string
	logger   *logrus.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken == s.last {
		return token, nil
	}
	s.last = token.AccessToken

	s.channel.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.channel.RefreshToken = token.RefreshToken
	}
	s.channel.TokenExpiry = token.Expiry

	if err := s.channels.UpdateChannelTokens(context.Background(), s.channel); err != nil {
		s.logger.WithError(err).WithField("channel_id", s.channel.ChannelID).Warn("Failed to persist refreshed token")
	} else {
		s.logger.WithField("channel_id", s.channel.ChannelID).Info("Refreshed channel token")
	}
	return token, nil
}
