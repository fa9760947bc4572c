package bench

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm/mock"
)

func validPerturbation() Perturbation {
	return Perturbation{
		OriginalQuery:        "Who is the CEO?",
		OriginalContext:      "Jane Doe leads the company.",
		OriginalAnswers:      []string{"Jane Doe"},
		PerturbationClass:    ClassMissingInformation,
		Intensity:            IntensityHigh,
		GenerationSuccessful: true,
		PerturbedQuery:       "Who is the CEO?",
		PerturbedContext:     "The company builds widgets.",
		LeverSelected:        "entity removal",
	}
}

func verdictProvider(verdict string) *mock.Provider {
	return &mock.Provider{CompleteFn: func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Text: verdict}, nil
	}}
}

func TestVerifyAllStreamsEveryModel(t *testing.T) {
	good := `{"is_valid":true,"class_correct":true,"intensity_correct":true,"answer_constraint_correct":true,"reasoning":"looks right"}`
	models := []VerifierModel{
		{Name: "verifier_a", Provider: verdictProvider(good), Route: llm.ModelRoute{Model: "model-a", DisplayName: "A"}},
		{Name: "verifier_b", Provider: verdictProvider(good), Route: llm.ModelRoute{Model: "model-b", DisplayName: "B"}},
		{Name: "verifier_c", Provider: verdictProvider("not json"), Route: llm.ModelRoute{Model: "model-c", DisplayName: "C"}},
	}
	v := NewVerifier(models, 2, 0, zap.NewNop())

	results := make(map[string]Verification)
	for r := range v.VerifyAll(context.Background(), validPerturbation()) {
		results[r.VerificationModelName] = r
	}
	require.Len(t, results, 3)

	require.True(t, results["verifier_a"].VerificationSuccessful)
	require.NotNil(t, results["verifier_a"].VerificationResponse)
	require.True(t, results["verifier_a"].VerificationResponse.IsValid)
	require.Equal(t, "model-a", results["verifier_a"].VerificationModel)

	require.False(t, results["verifier_c"].VerificationSuccessful)
	require.Contains(t, results["verifier_c"].VerificationError, "JSON parsing failed")
}

func TestVerifySkipsFailedGenerations(t *testing.T) {
	v := NewVerifier([]VerifierModel{
		{Name: "verifier_a", Provider: verdictProvider("{}"), Route: llm.ModelRoute{Model: "model-a"}},
	}, 1, 0, zap.NewNop())

	p := validPerturbation()
	p.GenerationSuccessful = false

	var results []Verification
	for r := range v.VerifyAll(context.Background(), p) {
		results = append(results, r)
	}
	require.Len(t, results, 1)
	require.False(t, results[0].VerificationSuccessful)
	require.Equal(t, "Original generation failed", results[0].VerificationError)
}

func TestVerifyRequiresInstanceFields(t *testing.T) {
	v := NewVerifier([]VerifierModel{
		{Name: "verifier_a", Provider: verdictProvider("{}"), Route: llm.ModelRoute{Model: "model-a"}},
	}, 1, 0, zap.NewNop())

	p := validPerturbation()
	p.OriginalContext = ""

	r := <-v.VerifyAll(context.Background(), p)
	require.False(t, r.VerificationSuccessful)
	require.Equal(t, "Missing required fields", r.VerificationError)
}
