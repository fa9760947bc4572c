package bench

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/bench"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/observability"
)

// VerifyHandler fans a perturbation out to every verifier model and streams
// verdicts back as they complete.
type VerifyHandler struct {
	Verifier *bench.Verifier
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// ServeHTTP handles POST /verify with an NDJSON stream of Verification, one
// line per verifier model in completion order.
func (h *VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Verifier == nil || h.Verifier.Models() == 0 {
		http.Error(w, "verifier pipeline not configured", http.StatusServiceUnavailable)
		return
	}

	var p bench.Perturbation
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	if h.Metrics != nil {
		h.Metrics.IncActiveStreams("ndjson")
		defer h.Metrics.DecActiveStreams("ndjson")
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	writer := bufio.NewWriter(w)
	for v := range h.Verifier.VerifyAll(r.Context(), p) {
		if h.Metrics != nil {
			outcome := "success"
			if !v.VerificationSuccessful {
				outcome = "failure"
			}
			h.Metrics.RecordPipelineCall("verifier", outcome)
		}
		if err := json.NewEncoder(writer).Encode(v); err != nil {
			break
		}
		writer.Flush()
		flusher.Flush()
	}
}
