package bench

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/bench"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm/mock"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/rpc"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/store"
)

func TestPerturbHandlerReturnsPerturbation(t *testing.T) {
	provider := &mock.Provider{CompleteFn: func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Text: `{
			"perturbed_query": "Who is the CEO?",
			"perturbed_context": "Leadership details are confidential.",
			"lever_selected": "entity removal",
			"implementation_reasoning": "removed the fact",
			"intensity_achieved": "high",
			"answer_constraint_satisfied": true,
			"expected_rag_behavior": "REFUSE_INFO_MISSING_IN_CONTEXT"
		}`}, nil
	}}
	h := &PerturbHandler{Generator: bench.NewGenerator(provider, llm.ModelRoute{Model: "gen"}, 2, 0, zap.NewNop())}

	body := bytes.NewBufferString(`{
		"question": "Who is the CEO?",
		"context": "The company builds widgets.",
		"answers": ["Jane Doe"],
		"perturbation_class": "missing_information",
		"intensity": "high"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/perturb", body)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var p bench.Perturbation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	require.True(t, p.GenerationSuccessful)
	require.Equal(t, bench.RefuseInfoMissing, p.GroundTruthLabel)
}

func TestPerturbHandlerRejectsInvalidRequest(t *testing.T) {
	h := &PerturbHandler{Generator: bench.NewGenerator(&mock.Provider{}, llm.ModelRoute{}, 2, 0, zap.NewNop())}

	req := httptest.NewRequest(http.MethodPost, "/perturb", bytes.NewBufferString(`{"question":"q"}`))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPerturbHandlerWithoutGenerator(t *testing.T) {
	h := &PerturbHandler{}
	req := httptest.NewRequest(http.MethodPost, "/perturb", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func validPerturbation() bench.Perturbation {
	return bench.Perturbation{
		OriginalQuery:        "Who is the CEO?",
		OriginalContext:      "The company builds widgets.",
		OriginalAnswers:      []string{"Jane Doe"},
		PerturbationClass:    bench.ClassMissingInformation,
		Intensity:            bench.IntensityHigh,
		GenerationSuccessful: true,
		PerturbedQuery:       "Who is the CEO?",
		PerturbedContext:     "Leadership details are confidential.",
		ExpectedRAGBehavior:  bench.RefuseInfoMissing,
	}
}

func TestVerifyHandlerStreamsVerdicts(t *testing.T) {
	verdict := &mock.Provider{CompleteFn: func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Text: `{
			"is_valid": true,
			"class_correct": true,
			"intensity_correct": true,
			"answer_constraint_correct": true,
			"reasoning": "looks right"
		}`}, nil
	}}
	verifier := bench.NewVerifier([]bench.VerifierModel{
		{Name: "verifier-a", Provider: verdict, Route: llm.ModelRoute{Model: "a"}},
		{Name: "verifier-b", Provider: verdict, Route: llm.ModelRoute{Model: "b"}},
	}, 2, 0, zap.NewNop())
	h := &VerifyHandler{Verifier: verifier}

	data, err := json.Marshal(validPerturbation())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewReader(data))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var verdicts []bench.Verification
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var v bench.Verification
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &v))
		verdicts = append(verdicts, v)
	}
	require.Len(t, verdicts, 2)
	for _, v := range verdicts {
		require.True(t, v.VerificationSuccessful)
		require.NotNil(t, v.VerificationResponse)
		require.True(t, v.VerificationResponse.IsValid)
	}
}

func TestVerifyHandlerWithoutVerifiers(t *testing.T) {
	h := &VerifyHandler{Verifier: bench.NewVerifier(nil, 2, 0, zap.NewNop())}
	req := httptest.NewRequest(http.MethodPost, "/verify", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func newTestEvaluator(t *testing.T) *bench.Evaluator {
	t.Helper()
	provider := &mock.Provider{CompleteFn: func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		if strings.Contains(req.Prompt, "CLASSIFICATION") {
			return llm.CompletionResponse{Text: "CLASSIFICATION: REFUSE_INFO_MISSING_IN_CONTEXT\nQUALITY_SCORE: N/A\nEXPLANATION: model refused on missing info"}, nil
		}
		return llm.CompletionResponse{Text: "REFUSE_INFO_MISSING_IN_CONTEXT: the context omits leadership."}, nil
	}}
	return bench.NewEvaluator(provider, llm.ModelRoute{Model: "eval"}, provider, llm.ModelRoute{Model: "judge"}, 2, 0, zap.NewNop())
}

func TestEvaluateHandlerScoresInstance(t *testing.T) {
	h := &EvaluateHandler{Evaluators: []*bench.Evaluator{newTestEvaluator(t)}}

	body := bytes.NewBufferString(`{
		"tab_index": 0,
		"perturbed_query": "Who is the CEO?",
		"perturbed_context": "Leadership details are confidential.",
		"expected_rag_behavior": "REFUSE_INFO_MISSING_IN_CONTEXT"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/evaluate", body)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var ev bench.Evaluation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ev))
	require.Equal(t, bench.RefuseInfoMissing, ev.ModelPredictedType)
	require.NotNil(t, ev.RefusalMatchCorrect)
	require.True(t, *ev.RefusalMatchCorrect)
}

func TestEvaluateHandlerRejectsBadTabIndex(t *testing.T) {
	h := &EvaluateHandler{Evaluators: []*bench.Evaluator{newTestEvaluator(t)}}

	body := bytes.NewBufferString(`{"tab_index": 3, "perturbed_query": "q", "perturbed_context": "c", "expected_rag_behavior": "ANSWER_CORRECTLY"}`)
	req := httptest.NewRequest(http.MethodPost, "/evaluate", body)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

type fakeResultStore struct {
	saved []rpc.SaveResultRequest
}

func (f *fakeResultStore) SavePerturbationResult(ctx context.Context, p bench.Perturbation, verifications []bench.Verification) (uuid.UUID, error) {
	f.saved = append(f.saved, rpc.SaveResultRequest{Perturbation: p, Verifications: verifications})
	return uuid.New(), nil
}

type fakeRunStore struct {
	saved []store.WorkflowRunRecord
}

func (f *fakeRunStore) SaveWorkflowRun(ctx context.Context, rec store.WorkflowRunRecord) (uuid.UUID, error) {
	f.saved = append(f.saved, rec)
	return uuid.New(), nil
}

func TestResultsHandlerSaves(t *testing.T) {
	fs := &fakeResultStore{}
	h := &ResultsHandler{Store: fs}

	payload := rpc.SaveResultRequest{Perturbation: validPerturbation()}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/results", bytes.NewReader(data))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp rpc.SaveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "success", resp.Status)
	require.NotEmpty(t, resp.ID)
	require.Len(t, fs.saved, 1)
	require.Equal(t, "Who is the CEO?", fs.saved[0].Perturbation.OriginalQuery)
}

func TestResultsHandlerWithoutStore(t *testing.T) {
	h := &ResultsHandler{}
	req := httptest.NewRequest(http.MethodPost, "/results", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestChoiceHandlerSaves(t *testing.T) {
	fs := &fakeRunStore{}
	h := &ChoiceHandler{Store: fs}

	body := bytes.NewBufferString(`{
		"orchestrator_model_id": "orch",
		"execution_model_id": "exec",
		"workflow": "query then decide",
		"final_output": "cannot answer",
		"final_decision": "refuse",
		"trace": [{"step": "reasoning", "output": "thinking"}]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/workflow/choice", body)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, fs.saved, 1)
	require.Equal(t, "refuse", fs.saved[0].FinalDecision)
	require.Len(t, fs.saved[0].Trace, 1)
}
