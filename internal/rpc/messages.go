package rpc

import (
	"github.com/aashiqmuhamed/refusalbench-studio/internal/bench"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/orchestrator"
)

// WorkflowRunRequest starts one dynamic evaluation workflow.
type WorkflowRunRequest struct {
	WorkflowID          string `json:"workflow_id,omitempty"`
	Query               string `json:"query"`
	Context             string `json:"context"`
	WorkflowDescription string `json:"workflow_description"`
	ReferenceAnswer     string `json:"reference_answer,omitempty"`
}

// WorkflowEvent streams back progress from the daemon.
type WorkflowEvent struct {
	Type            string                   `json:"type"` // trace|result|error
	WorkflowID      string                   `json:"workflow_id,omitempty"`
	Trace           *orchestrator.TraceEntry `json:"trace,omitempty"`
	FinalOutput     string                   `json:"final_output,omitempty"`
	FinalDecision   string                   `json:"final_decision,omitempty"`
	Termination     string                   `json:"termination,omitempty"`
	Turns           int                      `json:"turns,omitempty"`
	ReferenceOutput string                   `json:"reference_output,omitempty"`
	ReferenceMatch  *bool                    `json:"reference_match,omitempty"`
	Error           string                   `json:"error,omitempty"`
	Done            bool                     `json:"done,omitempty"`
}

// WorkflowRunStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must contain the Run payload; subsequent messages can carry
// control signals.
type WorkflowRunStreamRequest struct {
	Run        *WorkflowRunRequest `json:"run,omitempty"`
	Cancel     bool                `json:"cancel,omitempty"`
	WorkflowID string              `json:"workflow_id,omitempty"`
}

// WorkflowChoiceRequest persists a finished workflow run a participant chose
// to submit.
type WorkflowChoiceRequest struct {
	OrchestratorModelID string                    `json:"orchestrator_model_id"`
	ExecutionModelID    string                    `json:"execution_model_id"`
	Workflow            string                    `json:"workflow"`
	FinalOutput         string                    `json:"final_output"`
	FinalDecision       string                    `json:"final_decision"`
	Trace               []orchestrator.TraceEntry `json:"trace,omitempty"`
}

// SaveResultRequest persists a perturbation together with its verifier
// verdicts.
type SaveResultRequest struct {
	Perturbation  bench.Perturbation   `json:"perturbation"`
	Verifications []bench.Verification `json:"verifications,omitempty"`
}

// SaveResponse acknowledges a persistence request.
type SaveResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// EvaluateRequest runs one benchmark instance through the evaluator selected
// by tab index and scores the output.
type EvaluateRequest struct {
	bench.EvaluateRequest
	TabIndex int `json:"tab_index"`
}
