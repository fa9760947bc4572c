package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm/mock"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/tool"
)

// scriptedClient plays back a fixed sequence of turn responses and records
// every request it receives.
type scriptedClient struct {
	responses []TurnResponse
	errs      []error
	requests  []TurnRequest
}

func (s *scriptedClient) CreateTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return TurnResponse{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return TurnResponse{Content: []ContentBlock{TextBlock("no script left")}, StopReason: "end_turn"}, nil
}

func newTestOrchestrator(client TurnClient, cfg Config) *Orchestrator {
	provider := &mock.Provider{CompleteFn: func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Text: "execution model says: " + req.Prompt}, nil
	}}
	return New(client, tool.NewRegistry(), provider, llm.ModelRoute{Model: "exec-model", MaxTokens: 2000}, cfg, zap.NewNop())
}

func validRequest() RunRequest {
	return RunRequest{
		Query:               "What color is the sky?",
		Context:             "The sky is blue. Dogs bark loudly.",
		WorkflowDescription: "Answer from the context, then decide.",
	}
}

func decisionResponse(id, decision, output string) TurnResponse {
	return TurnResponse{
		StopReason: StopToolUse,
		Content: []ContentBlock{
			ToolUseBlock(id, tool.NameMakeDecision, map[string]interface{}{
				"decision": decision,
				"output":   output,
			}),
		},
	}
}

func TestRunImmediateDecision(t *testing.T) {
	client := &scriptedClient{responses: []TurnResponse{
		{
			StopReason: StopToolUse,
			Content: []ContentBlock{
				TextBlock("The context answers the question directly."),
				ToolUseBlock("tu_1", tool.NameMakeDecision, map[string]interface{}{
					"decision": "answer",
					"output":   "X",
				}),
			},
		},
	}}

	result, err := newTestOrchestrator(client, Config{MaxTurns: 5}).Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, "answer", result.FinalDecision)
	require.Equal(t, "X", result.FinalOutput)
	require.Equal(t, StateTerminatedByDecision, result.Termination)
	require.Equal(t, 1, result.Turns)

	require.Len(t, result.Trace, 2)
	require.Equal(t, StepReasoning, result.Trace[0].Step)
	require.Equal(t, StepDecision, result.Trace[1].Step)
	require.Equal(t, "answer", result.Trace[1].Decision)
}

func TestRunExhaustionForcesRefuse(t *testing.T) {
	loop := TurnResponse{
		StopReason: StopToolUse,
		Content: []ContentBlock{
			ToolUseBlock("tu_cmp", tool.NameCompareTexts, map[string]interface{}{
				"text_a": "a", "text_b": "a",
			}),
		},
	}
	client := &scriptedClient{responses: []TurnResponse{loop, loop, loop, loop, loop}}

	result, err := newTestOrchestrator(client, Config{MaxTurns: 3}).Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, "refuse", result.FinalDecision)
	require.Equal(t, defaultNoDecisionOutput, result.FinalOutput)
	require.Equal(t, StateTerminatedByExhaustion, result.Termination)
	require.Equal(t, 3, result.Turns)
	require.Len(t, client.requests, 3)

	last := result.Trace[len(result.Trace)-1]
	require.Equal(t, StepDecision, last.Step)
	require.Equal(t, "refuse", last.Decision)
}

func TestRunModelStopCapturesText(t *testing.T) {
	client := &scriptedClient{responses: []TurnResponse{
		{
			StopReason: "end_turn",
			Content:    []ContentBlock{TextBlock("I believe the answer is blue.")},
		},
	}}

	result, err := newTestOrchestrator(client, Config{MaxTurns: 5}).Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, StateTerminatedByModelStop, result.Termination)
	require.Equal(t, "I believe the answer is blue.", result.FinalOutput)
	require.Equal(t, "refuse", result.FinalDecision, "model stop without make_decision keeps the refuse default")

	require.Equal(t, StepReasoning, result.Trace[0].Step)
	require.Equal(t, StepDecision, result.Trace[len(result.Trace)-1].Step)
}

func TestRunAPIErrorTerminates(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("upstream 500")}}

	result, err := newTestOrchestrator(client, Config{MaxTurns: 5}).Run(context.Background(), validRequest())
	require.NoError(t, err, "transport failures never escape as run errors")
	require.Equal(t, StateTerminatedByError, result.Termination)
	require.Equal(t, "refuse", result.FinalDecision)
	require.Equal(t, defaultNoDecisionOutput, result.FinalOutput)

	require.Len(t, result.Trace, 2)
	require.Equal(t, StepError, result.Trace[0].Step)
	require.Contains(t, result.Trace[0].Output, "upstream 500")
	require.Equal(t, StepDecision, result.Trace[1].Step)
}

func TestRunUnknownToolIsRecoverable(t *testing.T) {
	client := &scriptedClient{responses: []TurnResponse{
		{
			StopReason: StopToolUse,
			Content: []ContentBlock{
				ToolUseBlock("tu_x", "summon_oracle", map[string]interface{}{}),
			},
		},
		decisionResponse("tu_d", "refuse", "cannot verify"),
	}}

	result, err := newTestOrchestrator(client, Config{MaxTurns: 5}).Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, StateTerminatedByDecision, result.Termination)
	require.Equal(t, 2, result.Turns)

	require.Equal(t, "summon_oracle", result.Trace[0].Step)
	require.Contains(t, result.Trace[0].Output, "Unknown tool")

	// The failed call was still acknowledged with an error-flagged result.
	secondTurn := client.requests[1].Messages
	toolResults := secondTurn[len(secondTurn)-1].Content
	require.Len(t, toolResults, 1)
	require.Equal(t, BlockToolResult, toolResults[0].Type)
	require.Equal(t, "tu_x", toolResults[0].ToolUseID)
	require.True(t, toolResults[0].IsError)
}

func TestRunToolErrorIsRecoverable(t *testing.T) {
	client := &scriptedClient{responses: []TurnResponse{
		{
			StopReason: StopToolUse,
			Content: []ContentBlock{
				// Missing required text_b triggers a validation error.
				ToolUseBlock("tu_bad", tool.NameCompareTexts, map[string]interface{}{
					"text_a": "only one",
				}),
			},
		},
		decisionResponse("tu_d", "answer", "recovered"),
	}}

	result, err := newTestOrchestrator(client, Config{MaxTurns: 5}).Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, "answer", result.FinalDecision)
	require.Contains(t, result.Trace[0].Output, "Tool execution error")
}

func TestRunProcessesAllBlocksBeforeTerminating(t *testing.T) {
	client := &scriptedClient{responses: []TurnResponse{
		{
			StopReason: StopToolUse,
			Content: []ContentBlock{
				ToolUseBlock("tu_1", tool.NameMakeDecision, map[string]interface{}{
					"decision": "answer",
					"output":   "final",
				}),
				ToolUseBlock("tu_2", tool.NameCompareTexts, map[string]interface{}{
					"text_a": "a", "text_b": "a",
				}),
			},
		},
	}}

	result, err := newTestOrchestrator(client, Config{MaxTurns: 5}).Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, StateTerminatedByDecision, result.Termination)
	require.Equal(t, "final", result.FinalOutput)

	// Both tool uses were executed and traced, in emission order.
	require.Equal(t, StepDecision, result.Trace[0].Step)
	require.Equal(t, tool.NameCompareTexts, result.Trace[1].Step)
}

func TestRunDecisionFieldDefaults(t *testing.T) {
	client := &scriptedClient{responses: []TurnResponse{
		{
			StopReason: StopToolUse,
			Content: []ContentBlock{
				ToolUseBlock("tu_1", tool.NameMakeDecision, map[string]interface{}{
					"decision": "escalate",
				}),
			},
		},
	}}

	result, err := newTestOrchestrator(client, Config{MaxTurns: 5}).Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.Equal(t, "refuse", result.FinalDecision, "invalid decision values default to refuse")
	require.Equal(t, defaultRefuseOutput, result.FinalOutput)
}

func TestRunEchoesPromptAndTemperature(t *testing.T) {
	client := &scriptedClient{responses: []TurnResponse{
		{
			StopReason: StopToolUse,
			Content: []ContentBlock{
				ToolUseBlock("tu_1", tool.NameCallModel, map[string]interface{}{
					"prompt":      "say hi",
					"temperature": 0.7,
				}),
			},
		},
		decisionResponse("tu_d", "answer", "hi"),
	}}

	result, err := newTestOrchestrator(client, Config{MaxTurns: 5}).Run(context.Background(), validRequest())
	require.NoError(t, err)

	step := result.Trace[0]
	require.Equal(t, tool.NameCallModel, step.Step)
	require.Equal(t, "execution model says: say hi", step.Output)
	require.Equal(t, "say hi", step.Prompt)
	require.NotNil(t, step.Temperature)
	require.Equal(t, 0.7, *step.Temperature)
}

func TestRunProtocolCompleteness(t *testing.T) {
	client := &scriptedClient{responses: []TurnResponse{
		{
			StopReason: StopToolUse,
			Content: []ContentBlock{
				ToolUseBlock("tu_a", tool.NameExtractQuote, map[string]interface{}{
					"text": "The sky is blue.", "query": "What color is the sky?",
				}),
				ToolUseBlock("tu_b", tool.NameCompareTexts, map[string]interface{}{
					"text_a": "x", "text_b": "x",
				}),
			},
		},
		decisionResponse("tu_d", "answer", "done"),
	}}

	_, err := newTestOrchestrator(client, Config{MaxTurns: 5}).Run(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, client.requests, 2)

	// Before turn two began, every ToolUse from turn one had a matching
	// ToolResult in the conversation.
	msgs := client.requests[1].Messages
	require.Len(t, msgs, 3)
	require.Equal(t, RoleAssistant, msgs[1].Role)
	require.Equal(t, RoleUser, msgs[2].Role)

	ids := make(map[string]bool)
	for _, b := range msgs[2].Content {
		require.Equal(t, BlockToolResult, b.Type)
		ids[b.ToolUseID] = true
	}
	require.True(t, ids["tu_a"])
	require.True(t, ids["tu_b"])
}

func TestRunObserverStreamsTrace(t *testing.T) {
	client := &scriptedClient{responses: []TurnResponse{
		decisionResponse("tu_1", "answer", "streamed"),
	}}

	var seen []string
	req := validRequest()
	req.Observer = func(e TraceEntry) { seen = append(seen, e.Step) }

	result, err := newTestOrchestrator(client, Config{MaxTurns: 5}).Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, seen, len(result.Trace))
	require.Equal(t, StepDecision, seen[len(seen)-1])
}

func TestRunValidatesRequest(t *testing.T) {
	o := newTestOrchestrator(&scriptedClient{}, Config{})

	_, err := o.Run(context.Background(), RunRequest{Context: "c", WorkflowDescription: "w"})
	require.EqualError(t, err, "query is required")

	_, err = o.Run(context.Background(), RunRequest{Query: "q", WorkflowDescription: "w", Context: "   "})
	require.EqualError(t, err, "context is required")

	_, err = o.Run(context.Background(), RunRequest{Query: "q", Context: "c"})
	require.EqualError(t, err, "workflow_description is required")
}

func TestRunSendsSystemPromptAndSchemas(t *testing.T) {
	client := &scriptedClient{responses: []TurnResponse{
		decisionResponse("tu_1", "refuse", "n/a"),
	}}

	_, err := newTestOrchestrator(client, Config{Model: "claude-sonnet", MaxTurns: 7}).Run(context.Background(), validRequest())
	require.NoError(t, err)

	req := client.requests[0]
	require.Equal(t, "claude-sonnet", req.Model)
	require.Contains(t, req.System, "7 turns")
	require.Len(t, req.Tools, 4)
	require.Contains(t, req.Messages[0].Content[0].Text, "PERTURBED QUERY")
}
