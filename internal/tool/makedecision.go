package tool

import "context"

// Decision values accepted by the terminal capability.
const (
	DecisionAnswer = "answer"
	DecisionRefuse = "refuse"
)

// MakeDecision is the terminal marker capability. Its executor only
// acknowledges the call; ending the run is interpreted by the orchestrator,
// which owns the state the capability cannot see.
type MakeDecision struct{}

func (MakeDecision) Schema() Schema {
	return Schema{
		Name: NameMakeDecision,
		Description: "Finalize the evaluation workflow with a decision. " +
			"You MUST call this tool exactly once at the end of the workflow. " +
			"Provide the final decision ('answer' if the model should answer, " +
			"'refuse' if the model should refuse) and the final output text.",
		Fields: []Field{
			{
				Name: "decision", Type: "string", Required: true,
				Description: "The final decision: 'answer' means the model's response is grounded and should be accepted, 'refuse' means the model should refuse because evidence is insufficient.",
				Enum:        []string{DecisionAnswer, DecisionRefuse},
			},
			{
				Name: "output", Type: "string", Required: true,
				Description: "The final output text. For 'answer' decisions, this should be the model's answer. For 'refuse' decisions, this should be a refusal message.",
			},
		},
	}
}

func (m MakeDecision) Execute(ctx context.Context, input map[string]interface{}, ec *ExecContext) (string, error) {
	if err := ValidateInput(m.Schema(), input); err != nil {
		return "", err
	}
	return "Decision recorded.", nil
}
