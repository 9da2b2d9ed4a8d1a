package ai

import (
	"context"
	"fmt"

	"github.com/nijaru/reelflow/config"
	"github.com/sashabaranov/go-openai"
)

// openAIProvider talks to any OpenAI-compatible endpoint, Groq by default.
type openAIProvider struct {
	client *openai.Client
	cfg    config.AIConfig
}

func newOpenAIProvider(cfg config.AIConfig) *openAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openAIProvider{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

func (p *openAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	request := openai.ChatCompletionRequest{
		Model:       modelFor(p.cfg, req.Model),
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens(req),
	}
	if req.JSON {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
