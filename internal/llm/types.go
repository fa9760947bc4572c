package llm

import "context"

// CompletionRequest is the input for completion providers. The evaluation
// pipelines and the call_model capability both speak this contract: a single
// prompt in, raw text out.
type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Usage captures token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	Text         string
	FinishReason string
	Usage        Usage
	ProviderName string
	Model        string
}

// Provider defines the contract for LLM providers.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
