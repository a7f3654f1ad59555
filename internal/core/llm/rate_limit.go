package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/markdave123-py/Simplifai/internal/core"
)

// RateLimited paces calls to an underlying model so concurrent chunk workers
// stay under the provider's request quota.
type RateLimited struct {
	next    core.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a limiter of perSecond requests.
// A non-positive rate returns next unchanged.
func NewRateLimited(next core.LLMProvider, perSecond float64, burst int) core.LLMProvider {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", core.Transient(fmt.Errorf("rate limiter: %w", err))
	}
	return r.next.Complete(ctx, prompt, maxTokens)
}
