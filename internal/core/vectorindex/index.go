// Package vectorindex stores document text as embeddings scoped to an
// (owner, job) pair and answers similarity queries over it.
package vectorindex

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/logging"
	"github.com/markdave123-py/Simplifai/internal/models"
)

type Index struct {
	embedder core.EmbeddingProvider
	store    core.ChunkStore
	log      *zap.Logger
}

func New(embedder core.EmbeddingProvider, store core.ChunkStore, log *zap.Logger) *Index {
	return &Index{embedder: embedder, store: store, log: logging.OrNop(log)}
}

// Upsert embeds and stores chunks. Callers that re-index a job clear it with
// DeleteByJob first.
func (i *Index) Upsert(ctx context.Context, ownerID, jobID string, chunks []models.Chunk) error {
	if ownerID == "" || jobID == "" {
		return core.Invalid("scope", "owner_id and job_id are required")
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for n, ch := range chunks {
		texts[n] = ch.Text
	}
	vecs, err := i.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vecs), len(chunks))
	}

	rows := make([]models.IndexedChunk, len(chunks))
	for n, ch := range chunks {
		rows[n] = models.IndexedChunk{
			OwnerID:    ownerID,
			JobID:      jobID,
			Position:   ch.Index,
			Page:       ch.Source.Page,
			Text:       ch.Text,
			Embedding:  vecs[n],
			TokenCount: ch.Tokens,
		}
	}
	if err := i.store.InsertDocumentChunks(ctx, rows); err != nil {
		return core.Transient(fmt.Errorf("store chunks: %w", err))
	}

	i.log.Debug("chunks indexed",
		zap.String("owner_id", ownerID),
		zap.String("job_id", jobID),
		zap.Int("count", len(rows)))
	return nil
}

// Query returns up to k chunks of the job most similar to text.
func (i *Index) Query(ctx context.Context, ownerID, jobID, text string, k int) ([]models.IndexedChunk, error) {
	if strings.TrimSpace(text) == "" || k <= 0 {
		return nil, nil
	}
	vecs, err := i.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	out, err := i.store.SearchDocumentChunks(ctx, ownerID, jobID, vecs[0], k)
	if err != nil {
		return nil, core.Transient(fmt.Errorf("search chunks: %w", err))
	}
	return out, nil
}

func (i *Index) DeleteByJob(ctx context.Context, jobID string) error {
	return i.store.DeleteChunksByJob(ctx, jobID)
}

var _ core.VectorIndex = (*Index)(nil)
