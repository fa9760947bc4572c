package workflow

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/bench"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/observability"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/orchestrator"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/rpc"
)

// BaselineWorkflowID marks runs that carry a reference answer to check the
// first execution-model output against.
const BaselineWorkflowID = "refusalbench_baseline"

// Runner executes a workflow and yields streamed events.
type Runner interface {
	Run(r *http.Request, req rpc.WorkflowRunRequest) (<-chan rpc.WorkflowEvent, error)
}

// WorkflowRunner bridges the orchestrator core to RPC events.
type WorkflowRunner struct {
	Orchestrator *orchestrator.Orchestrator
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// Run drives one orchestrator run and emits each trace entry as it is
// recorded, followed by a single result or error event.
func (r *WorkflowRunner) Run(reqCtx *http.Request, req rpc.WorkflowRunRequest) (<-chan rpc.WorkflowEvent, error) {
	out := make(chan rpc.WorkflowEvent, 16)
	go func() {
		defer close(out)
		start := time.Now()

		if r.Orchestrator == nil {
			out <- rpc.WorkflowEvent{Type: "error", WorkflowID: req.WorkflowID, Error: "orchestrator unavailable", Done: true}
			return
		}

		runReq := orchestrator.RunRequest{
			Query:               req.Query,
			Context:             req.Context,
			WorkflowDescription: req.WorkflowDescription,
			ReferenceAnswer:     req.ReferenceAnswer,
			WorkflowID:          req.WorkflowID,
			Observer: func(e orchestrator.TraceEntry) {
				entry := e
				if r.Metrics != nil && e.Step != orchestrator.StepReasoning && e.Step != orchestrator.StepDecision && e.Step != orchestrator.StepError {
					r.Metrics.RecordToolCall(e.Step)
				}
				out <- rpc.WorkflowEvent{Type: "trace", WorkflowID: req.WorkflowID, Trace: &entry}
			},
		}

		result, err := r.Orchestrator.Run(reqCtx.Context(), runReq)
		if err != nil {
			r.logf("workflow %s failed: %v", req.WorkflowID, err)
			out <- rpc.WorkflowEvent{Type: "error", WorkflowID: req.WorkflowID, Error: err.Error(), Done: true}
			return
		}

		if r.Metrics != nil {
			r.Metrics.RecordWorkflowRun(result.FinalDecision, string(result.Termination), result.Turns, time.Since(start))
		}

		ev := rpc.WorkflowEvent{
			Type:          "result",
			WorkflowID:    req.WorkflowID,
			FinalOutput:   result.FinalOutput,
			FinalDecision: result.FinalDecision,
			Termination:   string(result.Termination),
			Turns:         result.Turns,
			Done:          true,
		}
		if req.WorkflowID == BaselineWorkflowID && strings.TrimSpace(req.ReferenceAnswer) != "" {
			if raw, match, found := bench.CheckReferenceAnswer(result.Trace, req.ReferenceAnswer); found {
				ev.ReferenceOutput = raw
				m := match
				ev.ReferenceMatch = &m
			}
		}
		out <- ev
	}()
	return out, nil
}

func (r *WorkflowRunner) logf(format string, args ...interface{}) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.Sugar().Infof(format, args...)
}
