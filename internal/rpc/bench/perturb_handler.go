package bench

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/bench"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/observability"
)

// PerturbHandler runs the generator pipeline for one instance.
type PerturbHandler struct {
	Generator *bench.Generator
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// ServeHTTP handles POST /perturb and responds with the full perturbation
// record, including the ground-truth label.
func (h *PerturbHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Generator == nil {
		http.Error(w, "generator pipeline not configured", http.StatusServiceUnavailable)
		return
	}

	var req bench.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	p, err := h.Generator.Generate(r.Context(), req)
	if err != nil {
		if h.Metrics != nil {
			h.Metrics.RecordPipelineCall("generator", "rejected")
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Metrics != nil {
		outcome := "success"
		if !p.GenerationSuccessful {
			outcome = "failure"
		}
		h.Metrics.RecordPipelineCall("generator", outcome)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}
