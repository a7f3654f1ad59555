// Package summarize condenses documents with a map step per chunk and a
// reduce step over the chunk summaries.
package summarize

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

type Config struct {
	OutputTokens int
	CallTimeout  time.Duration
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{OutputTokens: 1000, CallTimeout: 60 * time.Second, RetryBackoff: 2 * time.Second}
}

type Summarizer struct {
	llm core.LLMProvider
	cfg Config
	log *zap.Logger
}

func New(llm core.LLMProvider, cfg Config, log *zap.Logger) *Summarizer {
	return &Summarizer{llm: llm, cfg: cfg, log: logging.OrNop(log)}
}

// TransformChunk summarises one chunk's own text.
func (s *Summarizer) TransformChunk(ctx context.Context, chunk models.Chunk, scope core.TransformScope) (string, error) {
	prompt := fmt.Sprintf(`Summarise the text below. Keep every key fact and main point, and drop repetition.

TEXT:
%s

SUMMARY:`, chunk.Body())
	out, err := s.complete(ctx, prompt)
	if err != nil {
		s.log.Warn("chunk summary failed",
			zap.String("job_id", scope.JobID),
			zap.Int("chunk_index", chunk.Index),
			zap.Error(err),
		)
		return "", fmt.Errorf("summarise: %w", err)
	}
	return out, nil
}

// Reduce merges section summaries into one. A single part is returned as is.
func (s *Summarizer) Reduce(ctx context.Context, parts []string, scope core.TransformScope) (string, error) {
	if len(parts) == 1 {
		return parts[0], nil
	}
	var b strings.Builder
	b.WriteString("Each summary below covers one consecutive section of a longer document. Merge them into a single coherent summary that keeps every key point in document order without repeating itself.\n\n")
	for i, p := range parts {
		fmt.Fprintf(&b, "SECTION %d SUMMARY:\n%s\n\n", i+1, p)
	}
	b.WriteString("FINAL SUMMARY:")
	out, err := s.complete(ctx, b.String())
	if err != nil {
		s.log.Warn("merging summaries failed", zap.String("job_id", scope.JobID), zap.Int("parts", len(parts)), zap.Error(err))
		return "", err
	}
	s.log.Debug("summaries merged", zap.String("job_id", scope.JobID), zap.Int("parts", len(parts)))
	return out, nil
}

func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	var out string
	err := retry.Do(ctx, retry.OneShot(s.cfg.RetryBackoff, s.cfg.CallTimeout), func(ctx context.Context) error {
		var err error
		out, err = s.llm.Complete(ctx, prompt, s.cfg.OutputTokens)
		return err
	})
	return out, err
}

var _ core.Transformer = (*Summarizer)(nil)
