package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/repository"
	"github.com/nijaru/reelflow/validation"
	"github.com/sirupsen/logrus"
)

// ChannelConnector runs the destination platform's OAuth flow and reads
// connected channels' statistics.
type ChannelConnector interface {
	AuthURL(redirectURL string) string
	Connect(ctx context.Context, code, redirectURL string) (*models.DestinationChannel, error)
	Analytics(ctx context.Context, channel *models.DestinationChannel) (*models.ChannelAnalytics, error)
}

type ChannelHandler struct {
	channels  repository.ChannelRepository
	connector ChannelConnector
	validator *validation.Validator
	max       int
	logger    *logrus.Logger
}

func NewChannelHandler(
	channels repository.ChannelRepository,
	connector ChannelConnector,
	validator *validation.Validator,
	cfg *config.Config,
	logger *logrus.Logger,
) *ChannelHandler {
	return &ChannelHandler{
		channels:  channels,
		connector: connector,
		validator: validator,
		max:       cfg.Pipeline.MaxChannels,
		logger:    logger,
	}
}

// HandleListChannels handles GET /api/channels
func (h *ChannelHandler) HandleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.ListChannels(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if channels == nil {
		channels = []*models.DestinationChannel{}
	}
	respondJSON(w, r, http.StatusOK, channels)
}

// HandleDeleteChannel handles DELETE /api/channels/{id}
func (h *ChannelHandler) HandleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.channels.DeleteChannel(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	h.logger.WithField("channel_id", id).Info("Channel disconnected")
	respondJSON(w, r, http.StatusOK, map[string]string{"deleted": id})
}

// HandleAuthURL handles GET /api/youtube/auth-url?redirect_uri=
func (h *ChannelHandler) HandleAuthURL(w http.ResponseWriter, r *http.Request) {
	url := h.connector.AuthURL(r.URL.Query().Get("redirect_uri"))
	respondJSON(w, r, http.StatusOK, map[string]string{"url": url})
}

// HandleCallback handles POST /api/youtube/callback
func (h *ChannelHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	const op = "ChannelHandler.HandleCallback"

	var req models.AuthCallbackRequest
	if err := readJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(w, r, err)
		return
	}

	count, err := h.channels.CountChannels(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if count >= h.max {
		respondError(w, r, errors.Conflict(op, nil, fmt.Sprintf("Maximum of %d destination channels allowed", h.max)))
		return
	}

	channel, err := h.connector.Connect(r.Context(), req.Code, req.RedirectURI)
	if err != nil {
		respondError(w, r, errors.InvalidInput(op, err, "Failed to connect channel"))
		return
	}
	if channel.ID == "" {
		channel.ID = uuid.New().String()
	}

	if err := h.channels.UpsertChannel(r.Context(), channel, h.max); err != nil {
		respondError(w, r, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"channel_id": channel.ChannelID,
		"name":       channel.DisplayName,
	}).Info("Channel connected")
	respondJSON(w, r, http.StatusOK, map[string]string{
		"status":       "success",
		"channel_name": channel.DisplayName,
	})
}

// HandleStatus handles GET /api/youtube/status. The reported channel is the
// one videos are published to.
func (h *ChannelHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.ListChannels(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	status := models.ChannelStatusResponse{}
	if len(channels) > 0 {
		status.Connected = true
		status.Channel = channels[0]
	}
	respondJSON(w, r, http.StatusOK, status)
}

// HandleAnalytics handles GET /api/youtube/analytics
func (h *ChannelHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.ListChannels(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	analytics := make([]*models.ChannelAnalytics, 0, len(channels))
	for _, channel := range channels {
		stats, err := h.connector.Analytics(r.Context(), channel)
		if err != nil {
			if errors.IsNotFound(err) {
				h.logger.WithField("channel_id", channel.ChannelID).Warn("Connected channel no longer exists")
				continue
			}
			respondError(w, r, err)
			return
		}
		analytics = append(analytics, stats)
	}
	respondJSON(w, r, http.StatusOK, models.AnalyticsResponse{Channels: analytics})
}
