package tool

import (
	"context"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
)

// ExecContext is the per-run shared state passed to every capability:
// the execution model under evaluation plus a bounded gate on outbound
// calls to it. One ExecContext belongs to exactly one workflow run.
type ExecContext struct {
	Provider llm.Provider
	Route    llm.ModelRoute
	Gate     *Gate
}

// NewExecContext builds an execution context with a fresh gate.
func NewExecContext(provider llm.Provider, route llm.ModelRoute, maxConcurrent int) *ExecContext {
	return &ExecContext{
		Provider: provider,
		Route:    route,
		Gate:     NewGate(maxConcurrent),
	}
}

func completionRequest(ec *ExecContext, prompt string, temperature float64) llm.CompletionRequest {
	return llm.CompletionRequest{
		Model:       ec.Route.Model,
		Prompt:      prompt,
		MaxTokens:   ec.Route.MaxTokens,
		Temperature: temperature,
	}
}

// Gate is a bounded semaphore limiting simultaneous execution-model calls.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate admitting at most n concurrent holders (min 1).
func NewGate(n int) *Gate {
	if n <= 0 {
		n = 1
	}
	return &Gate{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or the context is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a previously acquired slot.
func (g *Gate) Release() {
	<-g.slots
}
