package bench

import (
	"fmt"
	"strings"
)

// Refusal codes the benchmark recognizes. "ANSWER_CORRECTLY" is the
// ground-truth label for instances that remain answerable.
const (
	LabelAnswerCorrectly = "ANSWER_CORRECTLY"

	RefuseAmbiguousQuery       = "REFUSE_AMBIGUOUS_QUERY"
	RefuseContradictoryContext = "REFUSE_CONTRADICTORY_CONTEXT"
	RefuseInfoMissing          = "REFUSE_INFO_MISSING_IN_CONTEXT"
	RefuseFalsePremise         = "REFUSE_FALSE_PREMISE_IN_QUERY"
	RefuseGranularityMismatch  = "REFUSE_GRANULARITY_MISMATCH"
	RefuseNonfactualQuery      = "REFUSE_NONFACTUAL_QUERY"
	RefuseOther                = "REFUSE_OTHER"
)

// RefuseCodes lists every valid refusal code, in catalogue order.
var RefuseCodes = []string{
	RefuseAmbiguousQuery,
	RefuseContradictoryContext,
	RefuseInfoMissing,
	RefuseFalsePremise,
	RefuseGranularityMismatch,
	RefuseNonfactualQuery,
	RefuseOther,
}

// ContainsRefuseCode reports whether text carries any refusal code.
func ContainsRefuseCode(text string) bool {
	for _, code := range RefuseCodes {
		if strings.Contains(text, code) {
			return true
		}
	}
	return false
}

// IsRefuseCode reports whether label is one of the valid refusal codes.
func IsRefuseCode(label string) bool {
	for _, code := range RefuseCodes {
		if label == code {
			return true
		}
	}
	return false
}

// Perturbation classes and intensities supported by the catalogue.
const (
	ClassAmbiguity            = "ambiguity"
	ClassContradiction        = "contradiction"
	ClassMissingInformation   = "missing_information"
	ClassFalsePremise         = "false_premise"
	ClassGranularityMismatch  = "granularity_mismatch"
	ClassEpistemicUncertainty = "epistemic_uncertainty"

	IntensityLow    = "low"
	IntensityMedium = "medium"
	IntensityHigh   = "high"
)

// Combination is one (class, intensity) pair the generator can produce.
type Combination struct {
	Class     string `json:"perturbation_class"`
	Intensity string `json:"intensity"`
}

var classRefuseCode = map[string]string{
	ClassAmbiguity:            RefuseAmbiguousQuery,
	ClassContradiction:        RefuseContradictoryContext,
	ClassMissingInformation:   RefuseInfoMissing,
	ClassFalsePremise:         RefuseFalsePremise,
	ClassGranularityMismatch:  RefuseGranularityMismatch,
	ClassEpistemicUncertainty: RefuseNonfactualQuery,
}

var classGuideline = map[string]string{
	ClassAmbiguity:            "introduce competing referents or interpretations so the query admits multiple plausible readings",
	ClassContradiction:        "insert directly contradictory statements about a fact the query depends on",
	ClassMissingInformation:   "remove or withhold the specific fact the query needs, leaving the context silent on it",
	ClassFalsePremise:         "rewrite the query to presuppose an entity or event the context contradicts or never mentions",
	ClassGranularityMismatch:  "keep related information but at the wrong scale or aggregation level for the query",
	ClassEpistemicUncertainty: "shift the query toward opinions, predictions, or judgments the context cannot settle",
}

var intensityOrder = []string{IntensityLow, IntensityMedium, IntensityHigh}

// Catalogue defines the perturbation taxonomy, the ground-truth labels per
// combination, and the generator/verifier prompt templates.
type Catalogue struct{}

// NewCatalogue returns the process-wide catalogue. It is stateless.
func NewCatalogue() *Catalogue { return &Catalogue{} }

// Classes returns the perturbation classes in catalogue order.
func (c *Catalogue) Classes() []string {
	return []string{
		ClassAmbiguity,
		ClassContradiction,
		ClassMissingInformation,
		ClassFalsePremise,
		ClassGranularityMismatch,
		ClassEpistemicUncertainty,
	}
}

// Intensities returns the intensity levels, weakest first.
func (c *Catalogue) Intensities() []string {
	out := make([]string, len(intensityOrder))
	copy(out, intensityOrder)
	return out
}

// Combinations enumerates every (class, intensity) pair.
func (c *Catalogue) Combinations() []Combination {
	var out []Combination
	for _, class := range c.Classes() {
		for _, intensity := range intensityOrder {
			out = append(out, Combination{Class: class, Intensity: intensity})
		}
	}
	return out
}

// Valid reports whether the pair names a known combination.
func (c *Catalogue) Valid(class, intensity string) bool {
	if _, ok := classRefuseCode[class]; !ok {
		return false
	}
	for _, i := range intensityOrder {
		if i == intensity {
			return true
		}
	}
	return false
}

// GroundTruth returns the expected RAG behavior for a combination: low
// intensity keeps the instance answerable, medium and high demand the
// class's refusal code. Unknown combinations default to REFUSE_OTHER.
func (c *Catalogue) GroundTruth(class, intensity string) string {
	code, ok := classRefuseCode[class]
	if !ok {
		return RefuseOther
	}
	if intensity == IntensityLow {
		return LabelAnswerCorrectly
	}
	return code
}

// GeneratorPrompt builds the instruction for the perturbation generator.
// The model must respond with a single JSON object.
func (c *Catalogue) GeneratorPrompt(class, intensity, query, context, answers string) string {
	return fmt.Sprintf(`You are a benchmark perturbation generator for RAG refusal evaluation.

Apply a "%s" perturbation at "%s" intensity to the instance below. To do so, %s. At low intensity the instance must remain faithfully answerable; at medium and high intensity a faithful answer must become impossible, forcing the refusal code %s.

ORIGINAL QUERY:
%s

ORIGINAL CONTEXT:
%s

ORIGINAL ANSWERS:
%s

Respond with ONLY a JSON object with exactly these keys:
{
  "perturbed_query": "<the perturbed query>",
  "perturbed_context": "<the perturbed context>",
  "lever_selected": "<short name of the linguistic lever you applied>",
  "implementation_reasoning": "<how you applied the perturbation>",
  "intensity_achieved": "<low|medium|high>",
  "answer_constraint_satisfied": "<whether the original answers remain (un)derivable as required>",
  "expected_rag_behavior": "<%s or the refusal code above>"
}`,
		class, intensity, classGuideline[class], c.GroundTruth(class, IntensityHigh),
		query, context, answers, LabelAnswerCorrectly)
}

// VerifierPrompt builds the instruction for an independent verifier model
// reviewing a generator output.
func (c *Catalogue) VerifierPrompt(class, intensity, query, context, answers, generatorOutput string) string {
	return fmt.Sprintf(`You are a benchmark perturbation verifier for RAG refusal evaluation.

A generator claims to have applied a "%s" perturbation at "%s" intensity to the original instance below. Verify the claim: check that the perturbation genuinely belongs to the class, that the achieved intensity matches, and that the answerability constraint holds (low intensity stays answerable, medium/high forces %s).

ORIGINAL QUERY:
%s

ORIGINAL CONTEXT:
%s

ORIGINAL ANSWERS:
%s

GENERATOR OUTPUT:
%s

Respond with ONLY a JSON object with exactly these keys:
{
  "is_valid": <true|false>,
  "class_correct": <true|false>,
  "intensity_correct": <true|false>,
  "answer_constraint_correct": <true|false>,
  "reasoning": "<brief justification>"
}`,
		class, intensity, c.GroundTruth(class, IntensityHigh),
		query, context, answers, generatorOutput)
}
