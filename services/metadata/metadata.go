// Package metadata produces publish metadata and hook text from a caption.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/models"
	"github.com/nijaru/reelflow/services/ai"
	"github.com/sirupsen/logrus"
)

const (
	maxTitleRunes = 55
	maxHookWords  = 7
	defaultHook   = "Wait for it..."
)

const metadataPrompt = "You are an elite YouTube Shorts growth strategist running a faceless channel. " +
	"Given the original caption of a short video, repackage it for YouTube Shorts:\n\n" +
	"1. TITLE: a punchy, curiosity-inducing title under 55 characters that opens an information gap. No clickbait.\n" +
	"2. DESCRIPTION: a natural 1-2 sentence description in a conversational tone. " +
	"It MUST end with exactly 5 visible #hashtags separated by spaces.\n" +
	"3. TAGS: exactly 5 keyword tags. The first 2 are general ('shorts', 'viral', 'fyp'); " +
	"the last 3 are specific search tags for the video's subject.\n\n" +
	"Respond strictly as a JSON object with keys 'title' (string), 'description' (string) and 'tags' (array of strings)."

const hookPrompt = "You are a YouTube Shorts expert. Write a punchy 3-7 word text hook to overlay on the " +
	"first 2 seconds of this video, based on its caption. Return ONLY the text of the hook, " +
	"no quotes, no conversational filler."

// Generator turns captions into metadata and hook text. Neither operation
// fails: when the model cannot be used a caption-derived fallback is
// returned.
type Generator struct {
	completer ai.Completer
	attempts  int
	retryBase time.Duration
	retryMax  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *logrus.Logger
}

func NewGenerator(completer ai.Completer, cfg config.AIConfig, logger *logrus.Logger) *Generator {
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	return &Generator{
		completer: completer,
		attempts:  attempts,
		retryBase: cfg.RetryBase,
		retryMax:  cfg.RetryMax,
		sleep:     ai.Sleep,
		logger:    logger,
	}
}

// Generate returns title, description and tags for caption.
func (g *Generator) Generate(ctx context.Context, caption string) models.Metadata {
	var meta models.Metadata
	err := g.retry(ctx, "metadata", func() error {
		reply, err := g.completer.Complete(ctx, ai.Request{
			System:      metadataPrompt,
			Prompt:      fmt.Sprintf("Original Caption: %s", caption),
			Model:       ai.Large,
			Temperature: 0.7,
			MaxTokens:   1024,
			JSON:        true,
		})
		if err != nil {
			return err
		}
		meta, err = ParseMetadata(reply)
		return err
	})
	if err != nil {
		g.logger.WithError(err).Warn("Metadata generation failed, using caption fallback")
		return FallbackMetadata(caption)
	}
	return meta
}

// HookText returns a short overlay line for caption.
func (g *Generator) HookText(ctx context.Context, caption string) string {
	var hook string
	err := g.retry(ctx, "hook text", func() error {
		reply, err := g.completer.Complete(ctx, ai.Request{
			System:      hookPrompt,
			Prompt:      caption,
			Model:       ai.Small,
			Temperature: 0.7,
			MaxTokens:   32,
		})
		if err != nil {
			return err
		}
		hook = cleanHook(reply)
		if hook == "" {
			return fmt.Errorf("empty hook")
		}
		return nil
	})
	if err != nil {
		g.logger.WithError(err).Warn("Hook generation failed, using caption fallback")
		return FallbackHook(caption)
	}
	return hook
}

func (g *Generator) retry(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == g.attempts {
			break
		}

		delay := ai.Backoff(attempt, g.retryBase, g.retryMax)
		g.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": delay,
		}).Debugf("Retrying %s", what)
		if sleepErr := g.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

// ParseMetadata decodes a model reply, tolerating markdown code fences.
func ParseMetadata(reply string) (models.Metadata, error) {
	var meta models.Metadata
	if err := json.Unmarshal([]byte(stripFences(reply)), &meta); err != nil {
		return models.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}

	meta.Title = truncateRunes(strings.TrimSpace(meta.Title), maxTitleRunes)
	meta.Description = strings.TrimSpace(meta.Description)
	if meta.Title == "" {
		return models.Metadata{}, fmt.Errorf("metadata has no title")
	}

	tags := meta.Tags[:0]
	for _, tag := range meta.Tags {
		if tag = strings.TrimSpace(strings.TrimPrefix(tag, "#")); tag != "" {
			tags = append(tags, tag)
		}
	}
	meta.Tags = tags
	return meta, nil
}

// FallbackMetadata derives metadata from the caption alone.
func FallbackMetadata(caption string) models.Metadata {
	caption = strings.TrimSpace(caption)
	title := truncateRunes(firstLine(caption), maxTitleRunes)
	if title == "" {
		title = "You need to see this"
	}
	return models.Metadata{
		Title:       title,
		Description: caption,
		Tags:        []string{},
	}
}

// FallbackHook uses the first words of the caption.
func FallbackHook(caption string) string {
	words := strings.Fields(caption)
	if len(words) == 0 {
		return defaultHook
	}
	if len(words) > maxHookWords {
		words = words[:maxHookWords]
	}
	return strings.Join(words, " ")
}

func cleanHook(reply string) string {
	hook := strings.ReplaceAll(strings.TrimSpace(reply), `"`, "")
	return strings.TrimSpace(firstLine(hook))
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
