package bench

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/aashiqmuhamed/refusalbench-studio/internal/llm"
	"github.com/aashiqmuhamed/refusalbench-studio/internal/tool"
)

// modelCaller wraps one provider/route with the pipeline's shared gate and
// retry policy. Transient upstream failures are retried with jittered
// exponential backoff; context cancellation is permanent.
type modelCaller struct {
	provider   llm.Provider
	route      llm.ModelRoute
	gate       *tool.Gate
	maxRetries uint64
	log        *zap.Logger

	// retryInterval overrides the initial backoff interval when set.
	// Tests use it to avoid real waits.
	retryInterval time.Duration
}

func (m *modelCaller) call(ctx context.Context, prompt string) (string, error) {
	var text string
	op := func() error {
		if err := m.gate.Acquire(ctx); err != nil {
			return backoff.Permanent(err)
		}
		defer m.gate.Release()

		resp, err := m.provider.Complete(ctx, llm.CompletionRequest{
			Model:       m.route.Model,
			Prompt:      prompt,
			MaxTokens:   m.route.MaxTokens,
			Temperature: m.route.Temperature,
		})
		if err != nil {
			m.log.Warn("model call failed",
				zap.String("model", m.route.Model),
				zap.Error(err))
			return err
		}
		text = resp.Text
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 2 * time.Second
	expo.MaxInterval = 30 * time.Second
	if m.retryInterval > 0 {
		expo.InitialInterval = m.retryInterval
		expo.MaxInterval = m.retryInterval
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(expo, m.maxRetries), ctx)); err != nil {
		return "", err
	}
	return text, nil
}
