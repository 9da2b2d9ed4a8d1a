// Package scorer rates a caption's viral potential on a 0..100 scale.
package scorer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
	"github.com/nijaru/reelflow/services/ai"
	"github.com/sirupsen/logrus"
)

const systemPrompt = "You are a viral video analyzer. Rate the following video caption for viral potential " +
	"from 0 to 100. Return only the integer score and nothing else."

var digitRun = regexp.MustCompile(`[0-9]+`)

// ContentScorer returns a score in [0,100] or a scoring error.
type ContentScorer interface {
	Score(ctx context.Context, caption string) (int, error)
}

type Scorer struct {
	completer ai.Completer
	attempts  int
	retryBase time.Duration
	retryMax  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *logrus.Logger
}

func New(completer ai.Completer, cfg config.AIConfig, logger *logrus.Logger) *Scorer {
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	return &Scorer{
		completer: completer,
		attempts:  attempts,
		retryBase: cfg.RetryBase,
		retryMax:  cfg.RetryMax,
		sleep:     ai.Sleep,
		logger:    logger,
	}
}

// Score asks the model for a rating. Each failed call or unparseable reply
// is retried with exponential backoff; exhausting attempts yields a
// scoring error.
func (s *Scorer) Score(ctx context.Context, caption string) (int, error) {
	const op = "Scorer.Score"

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		score, err := s.scoreOnce(ctx, caption)
		if err == nil {
			return score, nil
		}
		lastErr = err

		if attempt == s.attempts {
			break
		}

		delay := ai.Backoff(attempt, s.retryBase, s.retryMax)
		s.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": delay,
		}).Warn("Scoring failed, retrying")

		if err := s.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	return 0, errors.Scoring(op, lastErr, fmt.Sprintf("scoring failed after %d attempts", s.attempts))
}

func (s *Scorer) scoreOnce(ctx context.Context, caption string) (int, error) {
	reply, err := s.completer.Complete(ctx, ai.Request{
		System:      systemPrompt,
		Prompt:      caption,
		Model:       ai.Small,
		Temperature: 0.1,
		MaxTokens:   16,
	})
	if err != nil {
		return 0, err
	}
	return ParseScore(reply)
}

// ParseScore extracts the first contiguous digit run of reply and clamps
// it to [0,100].
func ParseScore(reply string) (int, error) {
	run := digitRun.FindString(reply)
	if run == "" {
		return 0, fmt.Errorf("no score in reply %q", reply)
	}

	score, err := strconv.Atoi(run)
	if err != nil {
		// overflow: the run is all digits, so it is far above 100
		return 100, nil
	}
	return clamp(score), nil
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
