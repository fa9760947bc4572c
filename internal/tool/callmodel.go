package tool

import (
	"context"
	"fmt"
)

// CallModel forwards a prompt to the execution model and returns its raw
// text. Every invocation holds the run's gate for the duration of the
// outbound call.
type CallModel struct{}

func (CallModel) Schema() Schema {
	return Schema{
		Name: NameCallModel,
		Description: "Send a prompt to the execution model (the model being evaluated) " +
			"and return its raw text response. Use this to ask the model questions, " +
			"request drafts, request critiques, or any other LLM interaction needed " +
			"by the evaluation workflow.",
		Fields: []Field{
			{Name: "prompt", Type: "string", Description: "The full prompt text to send to the execution model.", Required: true},
			{Name: "temperature", Type: "number", Description: "Sampling temperature (0.0-1.0). Higher values produce more varied outputs."},
		},
	}
}

func (c CallModel) Execute(ctx context.Context, input map[string]interface{}, ec *ExecContext) (string, error) {
	if err := ValidateInput(c.Schema(), input); err != nil {
		return "", err
	}
	if ec == nil || ec.Provider == nil {
		return "", fmt.Errorf("execution model unavailable")
	}

	prompt, _ := input["prompt"].(string)
	temperature := ec.Route.Temperature
	if raw, ok := input["temperature"]; ok {
		switch v := raw.(type) {
		case float64:
			temperature = v
		case int:
			temperature = float64(v)
		case int64:
			temperature = float64(v)
		}
	}

	if err := ec.Gate.Acquire(ctx); err != nil {
		return "", err
	}
	defer ec.Gate.Release()

	resp, err := ec.Provider.Complete(ctx, completionRequest(ec, prompt, temperature))
	if err != nil {
		return "", fmt.Errorf("call execution model: %w", err)
	}
	return resp.Text, nil
}
