package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/tool"
)

// VerifierModel is one configured verifier: a logical name plus the
// provider/route to reach it.
type VerifierModel struct {
	Name     string
	Provider llm.Provider
	Route    llm.ModelRoute
}

// Verdict is the structured judgment a verifier model returns.
type Verdict struct {
	IsValid                 bool   `json:"is_valid"`
	ClassCorrect            bool   `json:"class_correct"`
	IntensityCorrect        bool   `json:"intensity_correct"`
	AnswerConstraintCorrect bool   `json:"answer_constraint_correct"`
	Reasoning               string `json:"reasoning"`
}

// Verification is one verifier's result for one perturbation.
type Verification struct {
	VerificationModel       string   `json:"verification_model"`
	VerificationModelName   string   `json:"verification_model_name"`
	VerificationDisplayName string   `json:"verification_display_name"`
	VerificationSuccessful  bool     `json:"verification_successful"`
	VerificationResponse    *Verdict `json:"verification_response,omitempty"`
	VerificationError       string   `json:"verification_error,omitempty"`
}

// Verifier fans a perturbation out to every configured verifier model.
// All verifiers share one gate so the fan-out cannot burst past the
// configured concurrency.
type Verifier struct {
	models     []VerifierModel
	catalogue  *Catalogue
	gate       *tool.Gate
	maxRetries int
	log        *zap.Logger
}

// NewVerifier builds a verifier pool.
func NewVerifier(models []VerifierModel, maxConcurrent int, maxRetries int, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		models:     models,
		catalogue:  NewCatalogue(),
		gate:       tool.NewGate(maxConcurrent),
		maxRetries: maxRetries,
		log:        log,
	}
}

// Models returns the configured verifier count.
func (v *Verifier) Models() int { return len(v.models) }

// VerifyAll runs every verifier against the perturbation concurrently and
// streams results in completion order. The channel closes once all
// verifiers have reported.
func (v *Verifier) VerifyAll(ctx context.Context, p Perturbation) <-chan Verification {
	out := make(chan Verification, len(v.models))

	var wg sync.WaitGroup
	for _, m := range v.models {
		wg.Add(1)
		go func(m VerifierModel) {
			defer wg.Done()
			out <- v.verifyOne(ctx, m, p)
		}(m)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (v *Verifier) verifyOne(ctx context.Context, m VerifierModel, p Perturbation) Verification {
	result := Verification{
		VerificationModel:       m.Route.Model,
		VerificationModelName:   m.Name,
		VerificationDisplayName: m.Route.DisplayName,
	}

	if !p.GenerationSuccessful {
		result.VerificationError = "Original generation failed"
		return result
	}
	if p.OriginalQuery == "" || p.OriginalContext == "" || p.PerturbationClass == "" || p.Intensity == "" {
		result.VerificationError = "Missing required fields"
		return result
	}

	generatorOutput, err := json.MarshalIndent(map[string]string{
		"perturbed_query":          p.PerturbedQuery,
		"perturbed_context":        p.PerturbedContext,
		"lever_selected":           p.LeverSelected,
		"implementation_reasoning": p.ImplementationReasoning,
		"intensity_achieved":       p.IntensityAchieved,
	}, "", "  ")
	if err != nil {
		result.VerificationError = err.Error()
		return result
	}

	prompt := v.catalogue.VerifierPrompt(
		p.PerturbationClass, p.Intensity,
		p.OriginalQuery, p.OriginalContext, joinAnswers(p.OriginalAnswers),
		string(generatorOutput))

	caller := &modelCaller{
		provider:   m.Provider,
		route:      m.Route,
		gate:       v.gate,
		maxRetries: uint64(v.maxRetries),
		log:        v.log,
	}
	response, err := caller.call(ctx, prompt)
	if err != nil {
		result.VerificationError = err.Error()
		return result
	}

	var verdict Verdict
	if err := parseModelJSON(response, &verdict); err != nil {
		v.log.Warn("verifier response parse failed",
			zap.String("verifier", m.Name),
			zap.Error(err))
		result.VerificationError = fmt.Sprintf("JSON parsing failed: %v", err)
		return result
	}

	result.VerificationSuccessful = true
	result.VerificationResponse = &verdict
	return result
}

func joinAnswers(answers []string) string {
	out, _ := json.Marshal(answers)
	return string(out)
}
