// Package ai wraps the chat completion providers used for scoring,
// metadata and hook text.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nijaru/reelflow/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ModelSize selects between the configured large and small models.
type ModelSize int

const (
	Large ModelSize = iota
	Small
)

type Request struct {
	System      string
	Prompt      string
	Model       ModelSize
	Temperature float32
	MaxTokens   int
	// JSON asks the provider for a JSON object response when supported.
	JSON bool
}

// Completer returns the text of a single chat completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

const defaultMaxTokens = 512

// NewCompleter builds the provider named by cfg.Provider.
func NewCompleter(ctx context.Context, cfg config.AIConfig, logger *logrus.Logger) (Completer, error) {
	var (
		provider Completer
		err      error
	)

	switch strings.ToLower(cfg.Provider) {
	case "groq", "openai":
		provider = newOpenAIProvider(cfg)
	case "anthropic":
		provider = newAnthropicProvider(cfg)
	case "gemini":
		provider, err = newGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return &timeoutCompleter{
		next:    provider,
		timeout: cfg.Timeout,
		name:    strings.ToLower(cfg.Provider),
		logger:  logger,
	}, nil
}

// timeoutCompleter bounds each call by the configured timeout.
type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
	name    string
	logger  *logrus.Logger
}

func (c *timeoutCompleter) Complete(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.next.Complete(ctx, req)
	if err != nil {
		c.logger.WithError(err).WithField("provider", c.name).Debug("Completion failed")
		return "", errors.Wrapf(err, "%s completion", c.name)
	}

	c.logger.WithFields(logrus.Fields{
		"provider": c.name,
		"duration": time.Since(start),
	}).Debug("Completion finished")
	return strings.TrimSpace(text), nil
}

func modelFor(cfg config.AIConfig, size ModelSize) string {
	if size == Small && cfg.SmallModel != "" {
		return cfg.SmallModel
	}
	return cfg.LargeModel
}

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}
