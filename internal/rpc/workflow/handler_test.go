package workflow

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/orchestrator"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/rpc"
)

// stubRunner emits a fixed trace entry followed by a result event.
type stubRunner struct {
	requests []rpc.WorkflowRunRequest
}

func (s *stubRunner) Run(r *http.Request, req rpc.WorkflowRunRequest) (<-chan rpc.WorkflowEvent, error) {
	s.requests = append(s.requests, req)
	out := make(chan rpc.WorkflowEvent, 4)
	go func() {
		defer close(out)
		out <- rpc.WorkflowEvent{Type: "trace", WorkflowID: req.WorkflowID, Trace: &orchestrator.TraceEntry{Step: "reasoning", Output: "thinking"}}
		out <- rpc.WorkflowEvent{Type: "result", WorkflowID: req.WorkflowID, FinalDecision: "refuse", Termination: "terminated_by_decision", Turns: 1, Done: true}
	}()
	return out, nil
}

func TestHandlerStreamsNDJSON(t *testing.T) {
	runner := &stubRunner{}
	handler := NewHandler(runner, nil)

	body := bytes.NewBufferString(`{"workflow_id":"wf-1","query":"q","context":"c","workflow_description":"d"}`)
	req := httptest.NewRequest(http.MethodPost, "/workflow/run", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var events []rpc.WorkflowEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var ev rpc.WorkflowEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	require.Equal(t, "trace", events[0].Type)
	require.Equal(t, "result", events[1].Type)
	require.Equal(t, "refuse", events[1].FinalDecision)
}

func TestHandlerAssignsWorkflowID(t *testing.T) {
	runner := &stubRunner{}
	handler := NewHandler(runner, nil)

	body := bytes.NewBufferString(`{"query":"q","context":"c","workflow_description":"d"}`)
	req := httptest.NewRequest(http.MethodPost, "/workflow/run", body)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	require.Len(t, runner.requests, 1)
	require.NotEmpty(t, runner.requests[0].WorkflowID)
}

func TestHandlerRejectsNonPost(t *testing.T) {
	handler := NewHandler(&stubRunner{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/workflow/run", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandlerRejectsBadJSON(t *testing.T) {
	handler := NewHandler(&stubRunner{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/workflow/run", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
