package core

import "context"

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider is the model-call collaborator. Implementations return errors
// wrapped with ErrTransient or ErrPermanent so callers can decide on retries.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// LLMFunc adapts a plain function to LLMProvider.
type LLMFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f LLMFunc) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}
