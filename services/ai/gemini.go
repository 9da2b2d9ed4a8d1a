package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/nijaru/reelflow/config"
	"google.golang.org/genai"
)

type geminiProvider struct {
	client *genai.Client
	cfg    config.AIConfig
}

func newGeminiProvider(ctx context.Context, cfg config.AIConfig) (*geminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiProvider{client: client, cfg: cfg}, nil
}

func (p *geminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(maxTokens(req)),
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		genCfg.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, modelFor(p.cfg, req.Model), []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}, genCfg)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				text.WriteString(part.Text)
			}
			if text.Len() > 0 {
				break
			}
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no response generated")
	}
	return text.String(), nil
}
