package orchestrator

import (
	"context"
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/tool"
)

// AnthropicClient adapts the Anthropic Messages API to the TurnClient
// boundary. One client is shared by all runs.
type AnthropicClient struct {
	client *sdk.Client
}

// NewAnthropicClient builds a client. baseURL is optional and supports
// proxy/gateway setups.
func NewAnthropicClient(baseURL, apiKey string) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := sdk.NewClient(opts...)
	return &AnthropicClient{client: &client}
}

func (a *AnthropicClient) CreateTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	resp, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: sdk.Float(req.Temperature),
		System:      []sdk.TextBlockParam{{Text: req.System}},
		Tools:       convertTools(req.Tools),
		Messages:    convertMessages(req.Messages),
	})
	if err != nil {
		return TurnResponse{}, err
	}
	return TurnResponse{
		Content:    convertContent(resp.Content),
		StopReason: string(resp.StopReason),
	}, nil
}

func convertTools(schemas []tool.Schema) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		props := make(map[string]interface{}, len(s.Fields))
		for _, f := range s.Fields {
			p := map[string]interface{}{
				"type":        f.Type,
				"description": f.Description,
			}
			if len(f.Enum) > 0 {
				p["enum"] = f.Enum
			}
			props[f.Name] = p
		}
		out = append(out, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        s.Name,
				Description: sdk.String(s.Description),
				InputSchema: sdk.ToolInputSchemaParam{Properties: props},
			},
		})
	}
	return out
}

func convertMessages(messages []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfText: &sdk.TextBlockParam{Text: b.Text},
				})
			case BlockToolUse:
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolUse: &sdk.ToolUseBlockParam{
						ID:    b.ID,
						Name:  b.Name,
						Input: b.Input,
					},
				})
			case BlockToolResult:
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolResult: &sdk.ToolResultBlockParam{
						ToolUseID: b.ToolUseID,
						IsError:   sdk.Bool(b.IsError),
						Content: []sdk.ToolResultBlockParamContentUnion{
							{OfText: &sdk.TextBlockParam{Text: b.Content}},
						},
					},
				})
			}
		}
		if m.Role == RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(blocks...))
		} else {
			out = append(out, sdk.NewUserMessage(blocks...))
		}
	}
	return out
}

func convertContent(blocks []sdk.ContentBlockUnion) []ContentBlock {
	out := make([]ContentBlock, 0, len(blocks))
	for _, block := range blocks {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			out = append(out, TextBlock(b.Text))
		case sdk.ToolUseBlock:
			var input map[string]interface{}
			raw, _ := json.Marshal(b.Input)
			_ = json.Unmarshal(raw, &input)
			out = append(out, ToolUseBlock(b.ID, b.Name, input))
		}
	}
	return out
}
