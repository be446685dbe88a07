// Package llm holds the model capability interfaces consumed by the
// decision core and the provider clients that implement them.
package llm

import (
	"context"
	"errors"

	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/models"
)

// Prompt is a provider-neutral draft request.
type Prompt struct {
	System string
	User   string
}

// Usage is the token accounting reported by a provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Completion is a drafted reply.
type Completion struct {
	Text     string
	Provider string
	Model    string
	Usage    Usage
}

// Drafter produces a reply grounded on retrieved context.
type Drafter interface {
	Draft(ctx context.Context, prompt Prompt, retrieved models.RetrievedContext) (Completion, error)
}

// Embedder maps text to a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Named is implemented by providers that report their name for metrics
// and logs.
type Named interface {
	Name() string
}

// classifyDraftError maps a transport error onto the domain error codes.
func classifyDraftError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewLLMTimeoutError(provider, err)
	}
	return apperrors.NewLLMDraftFailedError(provider, err)
}
