package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/bench"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/rpc"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/store"
)

// ResultStore persists perturbation results.
type ResultStore interface {
	SavePerturbationResult(ctx context.Context, p bench.Perturbation, verifications []bench.Verification) (uuid.UUID, error)
}

// RunStore persists chosen workflow runs.
type RunStore interface {
	SaveWorkflowRun(ctx context.Context, rec store.WorkflowRunRecord) (uuid.UUID, error)
}

// ResultsHandler saves a perturbation and its verifier verdicts.
type ResultsHandler struct {
	Store  ResultStore
	Logger *zap.Logger
}

// ServeHTTP handles POST /results.
func (h *ResultsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}

	var req rpc.SaveResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	id, err := h.Store.SavePerturbationResult(r.Context(), req.Perturbation, req.Verifications)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("save perturbation result", zap.Error(err))
		}
		http.Error(w, fmt.Sprintf("save result: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpc.SaveResponse{Status: "success", ID: id.String()})
}

// ChoiceHandler saves a workflow run a participant submitted.
type ChoiceHandler struct {
	Store  RunStore
	Logger *zap.Logger
}

// ServeHTTP handles POST /workflow/choice.
func (h *ChoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Store == nil {
		http.Error(w, "persistence disabled", http.StatusServiceUnavailable)
		return
	}

	var req rpc.WorkflowChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	id, err := h.Store.SaveWorkflowRun(r.Context(), store.WorkflowRunRecord{
		OrchestratorModelID: req.OrchestratorModelID,
		ExecutionModelID:    req.ExecutionModelID,
		Workflow:            req.Workflow,
		FinalOutput:         req.FinalOutput,
		FinalDecision:       req.FinalDecision,
		Trace:               req.Trace,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("save workflow choice", zap.Error(err))
		}
		http.Error(w, fmt.Sprintf("save choice: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpc.SaveResponse{Status: "success", ID: id.String()})
}
