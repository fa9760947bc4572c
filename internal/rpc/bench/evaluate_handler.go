package bench

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/bench"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/observability"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/rpc"
)

// EvaluateHandler runs one benchmark instance through the evaluator model
// selected by tab index.
type EvaluateHandler struct {
	Evaluators []*bench.Evaluator
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// ServeHTTP handles POST /evaluate and responds with the scored Evaluation.
func (h *EvaluateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(h.Evaluators) == 0 {
		http.Error(w, "evaluator pipeline not configured", http.StatusServiceUnavailable)
		return
	}

	var req rpc.EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.TabIndex < 0 || req.TabIndex >= len(h.Evaluators) {
		http.Error(w, fmt.Sprintf("tab_index %d out of range (have %d evaluators)", req.TabIndex, len(h.Evaluators)), http.StatusBadRequest)
		return
	}

	ev := h.Evaluators[req.TabIndex].Evaluate(r.Context(), req.EvaluateRequest)

	if h.Metrics != nil {
		outcome := "success"
		if ev.ModelPredictedType == "" {
			outcome = "failure"
		}
		h.Metrics.RecordPipelineCall("evaluator", outcome)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ev)
}
