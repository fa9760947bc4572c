package bench

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/tool"
)

// PredictedAnswerAttempt classifies a model response that tries to answer
// rather than refuse.
const PredictedAnswerAttempt = "answer_attempt"

// answerPromptTemplate is the benchmark prompt given to the model under
// evaluation: answer from the context alone or emit exactly one refusal
// code.
const answerPromptTemplate = `You are an advanced AI assistant designed to answer questions based **only** on the provided context passages. You must not use any external knowledge or prior training. Your goal is to be precise, factual, and aware of the limitations of the provided information.

Read the following Query and Context Passages carefully.

QUERY:
%s

CONTEXT PASSAGES:
%s

**INSTRUCTIONS:**
1.  Your primary task is to answer the QUERY if, and only if, a complete and faithful answer can be derived *solely* from the facts within the CONTEXT PASSAGES.
2.  You are permitted and expected to perform reasoning, including common-sense inference and basic mathematics, as long as it operates *exclusively* on the information provided in the context.
3.  If a direct and faithful answer is not possible due to one of the issues below, you MUST respond with **only** the corresponding refusal code. Do not add any other text or explanation.

**REFUSAL CODES:**

*   **` + "`REFUSE_AMBIGUOUS_QUERY`" + `** — the query or context creates multiple plausible interpretations, making a single definitive answer impossible.
*   **` + "`REFUSE_CONTRADICTORY_CONTEXT`" + `** — the context contains directly contradictory or logically inconsistent information essential for answering.
*   **` + "`REFUSE_INFO_MISSING_IN_CONTEXT`" + `** — the context is silent on the matter; the fact needed to answer is entirely absent.
*   **` + "`REFUSE_FALSE_PREMISE_IN_QUERY`" + `** — the query assumes a fact contradicted by or unsupported by the context.
*   **` + "`REFUSE_GRANULARITY_MISMATCH`" + `** — relevant information exists but at the wrong scale or level of abstraction for a valid answer.
*   **` + "`REFUSE_NONFACTUAL_QUERY`" + `** — the query asks for opinions, predictions, hypotheticals, or judgments that cannot be derived from the facts.
*   **` + "`REFUSE_OTHER`" + `** — any other issue making a faithful answer impossible.

Provide your response below:
ANSWER:`

const judgePromptTemplate = `Analyze the following model response by performing BOTH classification and quality evaluation:

STEP 1: CLASSIFICATION
Determine if this model response is:
1. An attempt to answer the query -> "answer_attempt"
2. A refusal with a specific code:
   - REFUSE_AMBIGUOUS_QUERY
   - REFUSE_CONTRADICTORY_CONTEXT
   - REFUSE_INFO_MISSING_IN_CONTEXT
   - REFUSE_FALSE_PREMISE_IN_QUERY
   - REFUSE_GRANULARITY_MISMATCH
   - REFUSE_NONFACTUAL_QUERY
   - REFUSE_OTHER

Look for refusal codes even if they appear with additional text.

STEP 2: QUALITY EVALUATION
If the response is an answer attempt AND reference answers are provided, evaluate quality:
- Score 1: Not relevant to query and reference answers
- Score 2: According to reference answers but not relevant to query
- Score 3: Relevant to query and reference answers but contains mistakes
- Score 4: Relevant and has exact same metrics as reference, but not concise
- Score 5: Relevant to query and fully correct according to reference answers

If the response is a refusal OR no reference answers provided, use "N/A".

QUERY:
%s

MODEL RESPONSE:
%s

REFERENCE ANSWERS:
%s

Respond in this exact format:
CLASSIFICATION: [answer_attempt OR one of the REFUSE_* codes]
QUALITY_SCORE: [1-5 if answer_attempt with references, otherwise N/A]
EXPLANATION: [brief reasoning for both classification and score]`

// EvaluateRequest is one benchmark instance to run through a model and
// score with the shared judge.
type EvaluateRequest struct {
	PerturbedQuery      string   `json:"perturbed_query"`
	PerturbedContext    string   `json:"perturbed_context"`
	ExpectedRAGBehavior string   `json:"expected_rag_behavior"`
	OriginalAnswers     []string `json:"original_answers,omitempty"`
	GeneratorModel      string   `json:"generator_model,omitempty"`
	PerturbationClass   string   `json:"perturbation_class,omitempty"`
	Intensity           string   `json:"intensity,omitempty"`
}

// Evaluation is the scored outcome for one instance and one model.
type Evaluation struct {
	ModelID             string   `json:"model_id"`
	GeneratorModel      string   `json:"generator_model,omitempty"`
	PerturbationClass   string   `json:"perturbation_class,omitempty"`
	Intensity           string   `json:"intensity,omitempty"`
	Query               string   `json:"query"`
	GroundTruthLabel    string   `json:"ground_truth_label"`
	GroundTruthAnswer   string   `json:"ground_truth_answer,omitempty"`
	ModelRawOutput      string   `json:"model_raw_output"`
	ModelPredictedType  string   `json:"model_predicted_type"`
	AnswerQualityScore  *float64 `json:"answer_quality_score"`
	RefusalMatchCorrect *bool    `json:"refusal_match_correct"`
	Explanation         string   `json:"llm_evaluation_explanation"`
}

// Evaluator runs one model under evaluation against benchmark instances
// and scores the output with a shared judge engine.
type Evaluator struct {
	model  *modelCaller
	engine *modelCaller
	log    *zap.Logger
}

// NewEvaluator builds an evaluator. The model and the judge engine share
// one gate so their combined outbound traffic stays bounded.
func NewEvaluator(model llm.Provider, modelRoute llm.ModelRoute, engine llm.Provider, engineRoute llm.ModelRoute, maxConcurrent int, maxRetries int, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	gate := tool.NewGate(maxConcurrent)
	return &Evaluator{
		model:  &modelCaller{provider: model, route: modelRoute, gate: gate, maxRetries: uint64(maxRetries), log: log},
		engine: &modelCaller{provider: engine, route: engineRoute, gate: gate, maxRetries: uint64(maxRetries), log: log},
		log:    log,
	}
}

// Evaluate runs the dual evaluation: get the model's raw answer, have the
// judge classify it, then score it against the ground-truth label.
// Upstream failures are reported inside the Evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, req EvaluateRequest) Evaluation {
	var groundTruthAnswer string
	if req.ExpectedRAGBehavior == LabelAnswerCorrectly && len(req.OriginalAnswers) > 0 {
		groundTruthAnswer = strings.Join(req.OriginalAnswers, "; ")
	}

	result := Evaluation{
		ModelID:           e.model.route.Model,
		GeneratorModel:    req.GeneratorModel,
		PerturbationClass: req.PerturbationClass,
		Intensity:         req.Intensity,
		Query:             req.PerturbedQuery,
		GroundTruthLabel:  req.ExpectedRAGBehavior,
		GroundTruthAnswer: groundTruthAnswer,
	}

	rawOutput, err := e.model.call(ctx, fmt.Sprintf(answerPromptTemplate, req.PerturbedQuery, req.PerturbedContext))
	if err != nil {
		result.ModelRawOutput = "ERROR: " + err.Error()
		result.ModelPredictedType = "ERROR"
		result.Explanation = "Evaluation failed due to error"
		return result
	}
	result.ModelRawOutput = strings.TrimSpace(rawOutput)

	predicted, score, explanation := e.judge(ctx, req.PerturbedQuery, result.ModelRawOutput, groundTruthAnswer)
	result.ModelPredictedType = predicted
	result.Explanation = explanation

	if req.ExpectedRAGBehavior == LabelAnswerCorrectly {
		if predicted == PredictedAnswerAttempt {
			result.AnswerQualityScore = score
		} else {
			incorrect := false
			result.RefusalMatchCorrect = &incorrect
			result.Explanation = fmt.Sprintf("False Refusal: Model refused with %s when should have answered", predicted)
		}
		return result
	}

	if predicted == PredictedAnswerAttempt {
		incorrect := false
		result.RefusalMatchCorrect = &incorrect
		result.Explanation = fmt.Sprintf("Missed Refusal: Model answered when should have refused with %s", req.ExpectedRAGBehavior)
		return result
	}

	match := predicted == req.ExpectedRAGBehavior
	result.RefusalMatchCorrect = &match
	if match {
		result.Explanation = "Exact match: " + predicted
	} else {
		result.Explanation = fmt.Sprintf("Mismatch: predicted=%s, ground_truth=%s", predicted, req.ExpectedRAGBehavior)
	}
	return result
}

// judge classifies the raw output and, for answer attempts with
// references, scores its quality.
func (e *Evaluator) judge(ctx context.Context, query, modelOutput, references string) (string, *float64, string) {
	formattedRefs := `"` + references + `"`
	if references == "" {
		formattedRefs = "[No reference answers provided - this may be an unanswerable instance]"
	}

	response, err := e.engine.call(ctx, fmt.Sprintf(judgePromptTemplate, query, modelOutput, formattedRefs))
	if err != nil {
		return PredictedAnswerAttempt, nil, fmt.Sprintf("Judge call failed, defaulting to answer attempt: %v", err)
	}

	classification, score, explanation, ok := parseJudgeResponse(response)
	if ok {
		return classification, score, explanation
	}

	// Fallback: scan for a refusal code anywhere in the judge output.
	upper := strings.ToUpper(response)
	for _, code := range RefuseCodes {
		if strings.Contains(upper, code) {
			return code, nil, "Detected refusal code in response (fallback parsing)"
		}
	}
	return PredictedAnswerAttempt, nil, "Could not parse response, defaulting to answer attempt"
}

func parseJudgeResponse(response string) (string, *float64, string, bool) {
	var classification, explanation string
	var score *float64

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "CLASSIFICATION:"):
			classification = strings.TrimSpace(strings.TrimPrefix(line, "CLASSIFICATION:"))
		case strings.HasPrefix(line, "QUALITY_SCORE:"):
			text := strings.TrimSpace(strings.TrimPrefix(line, "QUALITY_SCORE:"))
			if v, err := strconv.ParseFloat(text, 64); err == nil {
				score = &v
			}
		case strings.HasPrefix(line, "EXPLANATION:"):
			explanation = strings.TrimSpace(strings.TrimPrefix(line, "EXPLANATION:"))
		}
	}

	if classification == "" {
		return "", nil, "", false
	}
	return classification, score, explanation, true
}
