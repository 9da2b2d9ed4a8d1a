// Package scraper fetches recent clips from the source platform.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// SourceScraper returns recent candidates for an account, newest first.
type SourceScraper interface {
	FetchRecent(ctx context.Context, handle string, limit int) ([]models.Candidate, error)
}

// Instagram reads the public web profile endpoint. Outbound requests are
// paced by a shared limiter.
type Instagram struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     config.ScraperConfig
	logger  *logrus.Logger
}

func NewInstagram(cfg config.ScraperConfig, logger *logrus.Logger) *Instagram {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	return &Instagram{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		cfg:     cfg,
		logger:  logger,
	}
}

type profileResponse struct {
	Data struct {
		User *struct {
			Timeline struct {
				Edges []timelineEdge `json:"edges"`
			} `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"data"`
}

type timelineEdge struct {
	Node mediaNode `json:"node"`
}

type mediaNode struct {
	Shortcode      string `json:"shortcode"`
	IsVideo        bool   `json:"is_video"`
	VideoViewCount int64  `json:"video_view_count"`
	Caption        struct {
		Edges []struct {
			Node struct {
				Text string `json:"text"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"edge_media_to_caption"`
}

func (n mediaNode) caption() string {
	if len(n.Caption.Edges) == 0 {
		return ""
	}
	return n.Caption.Edges[0].Node.Text
}

// FetchRecent inspects at most 3*limit items and returns up to limit
// videos. Failures are returned as scrape errors and are not retried here.
func (s *Instagram) FetchRecent(ctx context.Context, handle string, limit int) ([]models.Candidate, error) {
	const op = "Instagram.FetchRecent"
	logger := s.logger.WithFields(logrus.Fields{"account": handle, "limit": limit})

	if limit <= 0 {
		return nil, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.Scrape(op, err, "rate limiter wait")
	}

	profile, err := s.fetchProfile(ctx, handle)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch profile")
		return nil, errors.Scrape(op, err, fmt.Sprintf("fetch profile %s", handle))
	}
	if profile.Data.User == nil {
		return nil, errors.Scrape(op, nil, fmt.Sprintf("profile %s not found", handle))
	}

	candidates := collect(profile.Data.User.Timeline.Edges, limit)
	logger.WithField("found", len(candidates)).Info("Fetched recent clips")
	return candidates, nil
}

func collect(edges []timelineEdge, limit int) []models.Candidate {
	var candidates []models.Candidate
	for i, edge := range edges {
		if i >= limit*3 {
			break
		}
		node := edge.Node
		if !node.IsVideo || node.Shortcode == "" {
			continue
		}
		candidates = append(candidates, models.Candidate{
			SourceID:  node.Shortcode,
			URL:       ReelURL(node.Shortcode),
			ViewCount: node.VideoViewCount,
			Caption:   node.caption(),
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates
}

// ReelURL is the canonical public URL of a clip.
func ReelURL(shortcode string) string {
	return fmt.Sprintf("https://www.instagram.com/reel/%s/", shortcode)
}

func (s *Instagram) fetchProfile(ctx context.Context, handle string) (*profileResponse, error) {
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") +
		"/api/v1/users/web_profile_info/?username=" + url.QueryEscape(handle)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("x-ig-app-id", s.cfg.AppID)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var profile profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}
