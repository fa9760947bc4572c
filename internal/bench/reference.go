package bench

import (
	"strings"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/orchestrator"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/tool"
)

// CheckReferenceAnswer extracts the raw execution-model output from the
// first call_model step of a workflow trace and compares it against the
// expected reference answer.
//
// For ANSWER_CORRECTLY the output matches when it carries no refusal code;
// for a refusal-code reference the output must contain that exact code.
// found is false when the trace has no call_model step at all.
func CheckReferenceAnswer(trace []orchestrator.TraceEntry, referenceAnswer string) (rawOutput string, match bool, found bool) {
	for _, step := range trace {
		if step.Step == tool.NameCallModel {
			rawOutput = step.Output
			found = true
			break
		}
	}
	if !found {
		return "", false, false
	}

	switch {
	case referenceAnswer == LabelAnswerCorrectly:
		match = !ContainsRefuseCode(rawOutput)
	case IsRefuseCode(referenceAnswer):
		match = strings.Contains(rawOutput, referenceAnswer)
	}
	return rawOutput, match, true
}
