package bench

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/tool"
)

// GenerateRequest asks for one perturbation of an original instance.
type GenerateRequest struct {
	Question          string   `json:"question"`
	Context           string   `json:"context"`
	Answers           []string `json:"answers"`
	PerturbationClass string   `json:"perturbation_class"`
	Intensity         string   `json:"intensity"`
}

// Validate checks the required fields.
func (r GenerateRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return fmt.Errorf("question is required")
	}
	if strings.TrimSpace(r.Context) == "" {
		return fmt.Errorf("context is required")
	}
	if len(r.Answers) == 0 {
		return fmt.Errorf("answers is required")
	}
	return nil
}

// Perturbation is a generator result: the original instance, the perturbed
// instance the model produced, and generation provenance.
type Perturbation struct {
	OriginalQuery        string   `json:"original_query"`
	OriginalContext      string   `json:"original_context"`
	OriginalAnswers      []string `json:"original_answers"`
	PerturbationClass    string   `json:"perturbation_class"`
	Intensity            string   `json:"intensity"`
	GeneratorModel       string   `json:"generator_model"`
	GeneratorDisplayName string   `json:"generator_display_name"`
	GenerationSuccessful bool     `json:"generation_successful"`

	PerturbedQuery            string `json:"perturbed_query,omitempty"`
	PerturbedContext          string `json:"perturbed_context,omitempty"`
	LeverSelected             string `json:"lever_selected,omitempty"`
	ImplementationReasoning   string `json:"implementation_reasoning,omitempty"`
	IntensityAchieved         string `json:"intensity_achieved,omitempty"`
	AnswerConstraintSatisfied string `json:"answer_constraint_satisfied,omitempty"`
	ExpectedRAGBehavior       string `json:"expected_rag_behavior,omitempty"`
	GroundTruthLabel          string `json:"ground_truth_label,omitempty"`

	RawResponse string `json:"raw_response,omitempty"`
	Error       string `json:"error,omitempty"`
}

// generatorPayload is the JSON object the generator model must emit. The
// answer-constraint field is loosely typed because models emit it as either
// a bool or a sentence.
type generatorPayload struct {
	PerturbedQuery            string      `json:"perturbed_query"`
	PerturbedContext          string      `json:"perturbed_context"`
	LeverSelected             string      `json:"lever_selected"`
	ImplementationReasoning   string      `json:"implementation_reasoning"`
	IntensityAchieved         string      `json:"intensity_achieved"`
	AnswerConstraintSatisfied interface{} `json:"answer_constraint_satisfied"`
	ExpectedRAGBehavior       string      `json:"expected_rag_behavior"`
}

// Generator produces catalogue-guided perturbations with a single model.
type Generator struct {
	caller    *modelCaller
	catalogue *Catalogue
	display   string
	log       *zap.Logger
}

// NewGenerator builds a generator over the given model route. The gate
// bounds concurrent outbound calls across all requests served by this
// generator.
func NewGenerator(provider llm.Provider, route llm.ModelRoute, maxConcurrent int, maxRetries int, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		caller: &modelCaller{
			provider:   provider,
			route:      route,
			gate:       tool.NewGate(maxConcurrent),
			maxRetries: uint64(maxRetries),
			log:        log,
		},
		catalogue: NewCatalogue(),
		display:   route.DisplayName,
		log:       log,
	}
}

// Generate runs one perturbation generation. Model and parse failures are
// reported inside the Perturbation, not as errors; only an invalid request
// fails outright.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (Perturbation, error) {
	if err := req.Validate(); err != nil {
		return Perturbation{}, err
	}
	if !g.catalogue.Valid(req.PerturbationClass, req.Intensity) {
		return Perturbation{}, fmt.Errorf("unknown perturbation combination: %s/%s", req.PerturbationClass, req.Intensity)
	}

	p := Perturbation{
		OriginalQuery:        req.Question,
		OriginalContext:      req.Context,
		OriginalAnswers:      req.Answers,
		PerturbationClass:    req.PerturbationClass,
		Intensity:            req.Intensity,
		GeneratorModel:       g.caller.route.Model,
		GeneratorDisplayName: g.display,
		GroundTruthLabel:     g.catalogue.GroundTruth(req.PerturbationClass, req.Intensity),
	}

	prompt := g.catalogue.GeneratorPrompt(
		req.PerturbationClass, req.Intensity,
		req.Question, req.Context, strings.Join(req.Answers, "; "))

	response, err := g.caller.call(ctx, prompt)
	if err != nil {
		p.Error = err.Error()
		return p, nil
	}

	var payload generatorPayload
	if err := parseModelJSON(response, &payload); err != nil {
		g.log.Warn("generator response parse failed", zap.Error(err))
		p.Error = fmt.Sprintf("JSON parsing failed: %v", err)
		p.RawResponse = response
		return p, nil
	}

	p.GenerationSuccessful = true
	p.PerturbedQuery = payload.PerturbedQuery
	p.PerturbedContext = payload.PerturbedContext
	p.LeverSelected = payload.LeverSelected
	p.ImplementationReasoning = payload.ImplementationReasoning
	p.IntensityAchieved = payload.IntensityAchieved
	p.ExpectedRAGBehavior = payload.ExpectedRAGBehavior
	if payload.AnswerConstraintSatisfied != nil {
		p.AnswerConstraintSatisfied = fmt.Sprint(payload.AnswerConstraintSatisfied)
	}
	return p, nil
}
