package orchestrator

import (
	"context"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/tool"
)

// Stop reasons reported by the orchestrating model.
const (
	StopToolUse = "tool_use"
)

// TurnRequest is one round-trip request to the orchestrating model: the
// full conversation so far plus the system instruction and the advertised
// tool schemas.
type TurnRequest struct {
	Model       string
	System      string
	MaxTokens   int
	Temperature float64
	Tools       []tool.Schema
	Messages    []Message
}

// TurnResponse is the orchestrating model's reply for one turn.
type TurnResponse struct {
	Content    []ContentBlock
	StopReason string
}

// TurnClient is the boundary to the orchestrating model. The production
// implementation wraps the Anthropic SDK; tests script it.
type TurnClient interface {
	CreateTurn(ctx context.Context, req TurnRequest) (TurnResponse, error)
}
