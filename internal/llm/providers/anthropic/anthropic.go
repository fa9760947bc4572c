package anthropic

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
)

// Provider implements llm.Provider on top of the Anthropic Messages API.
type Provider struct {
	name   string
	client *sdk.Client
}

// NewProvider constructs a Provider. baseURL is optional and supports
// Anthropic-compatible gateways.
func NewProvider(name, baseURL, apiKey string) *Provider {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := sdk.NewClient(opts...)
	return &Provider{name: name, client: &client}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Complete sends a single user prompt and returns the concatenated text blocks.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if req.Model == "" {
		return llm.CompletionResponse{}, fmt.Errorf("model is required")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, fmt.Errorf("anthropic: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	return llm.CompletionResponse{
		Text:         strings.TrimSpace(text.String()),
		FinishReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}
