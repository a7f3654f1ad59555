package vectorindex

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/models"
)

type lengthEmbedder struct{ calls int }

func (e *lengthEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(strings.Count(t, " "))}
	}
	return out, nil
}

type fakeStore struct {
	mu   sync.Mutex
	rows []models.IndexedChunk
	err  error
}

func (s *fakeStore) InsertDocumentChunks(ctx context.Context, chunks []models.IndexedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, chunks...)
	return nil
}

func (s *fakeStore) SearchDocumentChunks(ctx context.Context, ownerID, jobID string, vec []float32, limit int) ([]models.IndexedChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.IndexedChunk
	for _, r := range s.rows {
		if r.OwnerID == ownerID && r.JobID == jobID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteChunksByJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.JobID != jobID {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

func TestUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	emb := &lengthEmbedder{}
	store := &fakeStore{}
	idx := New(emb, store, nil)

	chunks := []models.Chunk{
		{Index: 0, Text: "alpha beta", Tokens: 3, Source: models.SourceRef{Page: 1}},
		{Index: 1, Text: "gamma", Tokens: 2, Source: models.SourceRef{Page: 2}},
	}
	require.NoError(t, idx.Upsert(ctx, "o", "j", chunks))
	require.Len(t, store.rows, 2)
	assert.Equal(t, 2, store.rows[1].Page)
	assert.Equal(t, []float32{10, 1}, store.rows[0].Embedding)

	got, err := idx.Query(ctx, "o", "j", "beta", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = idx.Query(ctx, "o", "j", "  ", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 2, emb.calls, "blank queries skip the embedder")

	require.NoError(t, idx.DeleteByJob(ctx, "j"))
	assert.Empty(t, store.rows)
}

func TestUpsertValidatesScope(t *testing.T) {
	idx := New(&lengthEmbedder{}, &fakeStore{}, nil)
	err := idx.Upsert(context.Background(), "", "j", []models.Chunk{{Text: "x"}})
	assert.True(t, core.IsValidation(err))
}

func TestUpsertStoreFailureIsTransient(t *testing.T) {
	idx := New(&lengthEmbedder{}, &fakeStore{err: errors.New("conn reset")}, nil)
	err := idx.Upsert(context.Background(), "o", "j", []models.Chunk{{Text: "x"}})
	assert.True(t, core.IsTransient(err))
}
