package orchestrator

import "strings"

// Block types carried in conversation messages.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Roles in the conversation log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentBlock is one element of a message, discriminated by Type.
// Exactly one variant's fields are populated.
type ContentBlock struct {
	Type string `json:"type"`

	// Text variant.
	Text string `json:"text,omitempty"`

	// ToolUse variant.
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// ToolResult variant.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// TextBlock builds a Text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock builds a ToolUse content block.
func ToolUseBlock(id, name string, input map[string]interface{}) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a ToolResult content block.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Message is one turn in the conversation with the orchestrating model.
// The log is append-only within a run; messages are never mutated once
// appended.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Trace step markers. Tool invocations use the tool name itself as the step.
const (
	StepReasoning = "reasoning"
	StepDecision  = "decision"
	StepError     = "error"
)

// TraceEntry is one record in the run's audit trail, independent of the
// conversation wire format.
type TraceEntry struct {
	Step        string   `json:"step"`
	Output      string   `json:"output"`
	Decision    string   `json:"decision,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// State identifies where the loop's state machine ended up.
type State string

const (
	StateRunning                State = "running"
	StateTerminatedByDecision   State = "terminated_by_decision"
	StateTerminatedByModelStop  State = "terminated_by_model_stop"
	StateTerminatedByError      State = "terminated_by_error"
	StateTerminatedByExhaustion State = "terminated_by_exhaustion"
)

// RunRequest carries the inputs for one workflow run. Query, Context and
// WorkflowDescription are required; ReferenceAnswer and WorkflowID ride
// along for the caller's scoring and persistence.
type RunRequest struct {
	Query               string `json:"query"`
	Context             string `json:"context"`
	WorkflowDescription string `json:"workflow_description"`
	ReferenceAnswer     string `json:"reference_answer,omitempty"`
	WorkflowID          string `json:"workflow_id,omitempty"`

	// Observer, when set, receives every TraceEntry as it is recorded.
	// Used by streaming transports; ignored by persistence.
	Observer func(TraceEntry) `json:"-"`
}

// Validate checks the required fields are non-empty after trimming.
func (r RunRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Query) == "":
		return errEmptyField("query")
	case strings.TrimSpace(r.Context) == "":
		return errEmptyField("context")
	case strings.TrimSpace(r.WorkflowDescription) == "":
		return errEmptyField("workflow_description")
	}
	return nil
}

type errEmptyField string

func (e errEmptyField) Error() string { return string(e) + " is required" }

// RunResult is produced exactly once per run, at loop termination. Callers
// always receive a well-formed result; early termination is visible only
// through Termination and the trace.
type RunResult struct {
	FinalOutput   string       `json:"final_output"`
	FinalDecision string       `json:"final_decision"`
	Trace         []TraceEntry `json:"trace"`
	Termination   State        `json:"termination"`
	Turns         int          `json:"turns"`
}
