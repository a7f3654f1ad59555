// Package simplify adapts document chunks to a cognitive profile.
package simplify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/core/retry"
	"github.com/markdave123-py/Simplifai/internal/logging"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// Retriever fetches source spans of one job similar to a query.
type Retriever interface {
	Query(ctx context.Context, ownerID, jobID, text string, k int) ([]models.IndexedChunk, error)
}

// Config tunes the processor's external calls.
type Config struct {
	ContextTopK  int
	CallTimeout  time.Duration
	RetryBackoff time.Duration
	// Output token caps per call kind.
	AdaptTokens       int
	LossTokens        int
	ConsistencyTokens int
}

func DefaultConfig() Config {
	return Config{
		ContextTopK:       3,
		CallTimeout:       60 * time.Second,
		RetryBackoff:      2 * time.Second,
		AdaptTokens:       1500,
		LossTokens:        1024,
		ConsistencyTokens: 2048,
	}
}

// Processor is the per-chunk simplification step. It holds no per-job state.
type Processor struct {
	llm       core.LLMProvider
	retriever Retriever
	cfg       Config
	log       *zap.Logger
}

func NewProcessor(llm core.LLMProvider, retriever Retriever, cfg Config, log *zap.Logger) *Processor {
	return &Processor{llm: llm, retriever: retriever, cfg: cfg, log: logging.OrNop(log)}
}

// Process adapts one chunk: one pass per dimension below MaxLevel in
// models.Dimensions order, then a loss check, then reinsertion of anything
// the check reports missing. Each external call gets one retry; a second
// failure is returned as the chunk's failure.
func (p *Processor) Process(ctx context.Context, chunk models.Chunk, profile models.Profile, scope core.TransformScope) (string, error) {
	original := chunk.Body()
	dims := profile.Adaptations()
	if len(dims) == 0 {
		return original, nil
	}

	log := p.log.With(zap.String("job_id", scope.JobID), zap.Int("chunk_index", chunk.Index))
	preceding := chunk.Text[:len(chunk.Text)-len(original)]

	current := original
	for _, d := range dims {
		level := profile.Level(d)
		out, err := p.complete(ctx, dimensionPrompt(d, level, current, preceding), p.cfg.AdaptTokens)
		if err != nil {
			return "", fmt.Errorf("adapt %s: %w", d, err)
		}
		current = out
		log.Debug("dimension pass done", zap.String("dimension", string(d)), zap.Int("level", level))
	}

	reply, err := p.complete(ctx, lossPrompt(original, current), p.cfg.LossTokens)
	if err != nil {
		return "", fmt.Errorf("loss check: %w", err)
	}
	missing := parseMissing(reply)
	if len(missing) == 0 {
		return current, nil
	}
	log.Debug("information loss detected", zap.Int("missing", len(missing)))

	var spans []models.IndexedChunk
	err = retry.Do(ctx, retry.OneShot(p.cfg.RetryBackoff, p.cfg.CallTimeout), func(ctx context.Context) error {
		var qerr error
		spans, qerr = p.retriever.Query(ctx, scope.OwnerID, scope.JobID, strings.Join(missing, " "), p.cfg.ContextTopK)
		return qerr
	})
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}
	excerpts := make([]string, len(spans))
	for i, s := range spans {
		excerpts[i] = s.Text
	}

	out, err := p.complete(ctx, reincorporatePrompt(current, missing, excerpts, profile), p.cfg.AdaptTokens)
	if err != nil {
		return "", fmt.Errorf("reincorporate: %w", err)
	}
	log.Debug("missing information reincorporated", zap.Int("excerpts", len(excerpts)))
	return out, nil
}

// TransformChunk runs Process with the scope's profile.
func (p *Processor) TransformChunk(ctx context.Context, chunk models.Chunk, scope core.TransformScope) (string, error) {
	return p.Process(ctx, chunk, scope.Profile, scope)
}

// Reduce runs the consistency pass over the joined chunks. With nothing to
// adapt, the joined text is returned as is.
func (p *Processor) Reduce(ctx context.Context, parts []string, scope core.TransformScope) (string, error) {
	doc := strings.Join(parts, "\n\n")
	if len(scope.Profile.Adaptations()) == 0 {
		return doc, nil
	}
	out, err := p.complete(ctx, consistencyPrompt(doc, scope.Profile), p.cfg.ConsistencyTokens)
	if err != nil {
		return "", fmt.Errorf("consistency pass: %w", err)
	}
	return out, nil
}

func (p *Processor) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var out string
	err := retry.Do(ctx, retry.OneShot(p.cfg.RetryBackoff, p.cfg.CallTimeout), func(ctx context.Context) error {
		var cerr error
		out, cerr = p.llm.Complete(ctx, prompt, maxTokens)
		if cerr == nil && strings.TrimSpace(out) == "" {
			cerr = core.Transient(fmt.Errorf("empty model reply"))
		}
		return cerr
	})
	return out, err
}

var _ core.Transformer = (*Processor)(nil)
