package simplify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// scriptedLLM answers by prompt kind and records every prompt it sees.
type scriptedLLM struct {
	mu      sync.Mutex
	prompts []string
	answer  func(prompt string, call int) (string, error)
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	n := len(s.prompts)
	s.mu.Unlock()
	return s.answer(prompt, n)
}

type recordingRetriever struct {
	queries []string
	k       int
	scope   [2]string
	err     error
}

func (r *recordingRetriever) Query(ctx context.Context, ownerID, jobID, text string, k int) ([]models.IndexedChunk, error) {
	r.queries = append(r.queries, text)
	r.k = k
	r.scope = [2]string{ownerID, jobID}
	if r.err != nil {
		return nil, r.err
	}
	return []models.IndexedChunk{{Text: "source excerpt about fact A"}}, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.CallTimeout = time.Second
	return cfg
}

func mustProfile(t *testing.T, levels map[string]int) models.Profile {
	t.Helper()
	p, err := models.NewProfile(levels)
	require.NoError(t, err)
	return p
}

var scope = core.TransformScope{JobID: "job-1", OwnerID: "owner-1"}

func TestProcessTypicalProfileIsIdentity(t *testing.T) {
	llm := &scriptedLLM{answer: func(string, int) (string, error) {
		t.Fatal("no model call expected")
		return "", nil
	}}
	p := NewProcessor(llm, &recordingRetriever{}, testConfig(), nil)

	chunk := models.Chunk{Index: 2, Text: "tail of prev. Body text.", OverlapLen: len("tail of prev. ")}
	out, err := p.Process(context.Background(), chunk, models.DefaultProfile(), scope)
	require.NoError(t, err)
	assert.Equal(t, "Body text.", out)
}

func TestProcessAppliesDimensionsInOrder(t *testing.T) {
	llm := &scriptedLLM{answer: func(prompt string, call int) (string, error) {
		switch {
		case strings.Contains(prompt, "MISSING ITEMS:"):
			return "NO_INFORMATION_LOST", nil
		case strings.Contains(prompt, "ATTENTION"):
			return "after attention", nil
		case strings.Contains(prompt, "LANGUAGE"):
			return "after language", nil
		}
		return "", errors.New("unexpected prompt")
	}}
	p := NewProcessor(llm, &recordingRetriever{}, testConfig(), nil)
	profile := mustProfile(t, map[string]int{"language": 3, "attention": 2})

	chunk := models.Chunk{Text: "previous words original body", OverlapLen: len("previous words ")}
	out, err := p.Process(context.Background(), chunk, profile, scope)
	require.NoError(t, err)
	assert.Equal(t, "after language", out)

	require.Len(t, llm.prompts, 3)
	assert.Contains(t, llm.prompts[0], "ATTENTION is at level 2")
	assert.Contains(t, llm.prompts[0], "TEXT:\noriginal body")
	assert.Contains(t, llm.prompts[0], "PRECEDING CONTEXT")
	assert.Contains(t, llm.prompts[1], "LANGUAGE is at level 3")
	assert.Contains(t, llm.prompts[1], "TEXT:\nafter attention")
	assert.Contains(t, llm.prompts[2], "ORIGINAL TEXT:\noriginal body")
}

func TestProcessUsesClampedLevels(t *testing.T) {
	llm := &scriptedLLM{answer: func(prompt string, call int) (string, error) {
		if strings.Contains(prompt, "MISSING ITEMS:") {
			return "NO_INFORMATION_LOST", nil
		}
		return "adapted", nil
	}}
	p := NewProcessor(llm, &recordingRetriever{}, testConfig(), nil)
	profile := mustProfile(t, map[string]int{"memory": -5, "reasoning": 99})

	out, err := p.Process(context.Background(), models.Chunk{Text: "body"}, profile, scope)
	require.NoError(t, err)
	assert.Equal(t, "adapted", out)

	require.Len(t, llm.prompts, 2, "one memory pass and the loss check")
	assert.Contains(t, llm.prompts[0], "MEMORY is at level 1 of 5")
	for _, prompt := range llm.prompts {
		assert.NotContains(t, prompt, "REASONING is at level")
	}
}

func TestProcessReincorporatesMissingInformation(t *testing.T) {
	llm := &scriptedLLM{answer: func(prompt string, call int) (string, error) {
		switch {
		case strings.Contains(prompt, "MISSING ITEMS:"):
			return "- fact A\n2. fact B\n", nil
		case strings.Contains(prompt, "UPDATED TEXT:"):
			return "simplified with fact A and fact B", nil
		}
		return "simplified", nil
	}}
	ret := &recordingRetriever{}
	p := NewProcessor(llm, ret, testConfig(), nil)

	out, err := p.Process(context.Background(), models.Chunk{Text: "fact A and fact B"}, mustProfile(t, map[string]int{"memory": 1}), scope)
	require.NoError(t, err)
	assert.Equal(t, "simplified with fact A and fact B", out)

	assert.Equal(t, []string{"fact A fact B"}, ret.queries)
	assert.Equal(t, 3, ret.k)
	assert.Equal(t, [2]string{"owner-1", "job-1"}, ret.scope)

	last := llm.prompts[len(llm.prompts)-1]
	assert.Contains(t, last, "- fact A\n- fact B")
	assert.Contains(t, last, "source excerpt about fact A")
	assert.Contains(t, last, "- memory: 1")
}

func TestProcessRetriesOnce(t *testing.T) {
	attempts := 0
	llm := &scriptedLLM{answer: func(prompt string, call int) (string, error) {
		if strings.Contains(prompt, "MISSING ITEMS:") {
			return "No important information lost.", nil
		}
		attempts++
		if attempts == 1 {
			return "", core.Transient(errors.New("rate limited"))
		}
		return "ok", nil
	}}
	p := NewProcessor(llm, &recordingRetriever{}, testConfig(), nil)

	out, err := p.Process(context.Background(), models.Chunk{Text: "x"}, mustProfile(t, map[string]int{"reasoning": 4}), scope)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, attempts)
}

func TestProcessFailsAfterSecondFailure(t *testing.T) {
	llm := &scriptedLLM{answer: func(string, int) (string, error) {
		return "", core.Transient(errors.New("timeout"))
	}}
	p := NewProcessor(llm, &recordingRetriever{}, testConfig(), nil)

	_, err := p.Process(context.Background(), models.Chunk{Text: "x"}, mustProfile(t, map[string]int{"attention": 1}), scope)
	require.Error(t, err)
	assert.Len(t, llm.prompts, 2)
}

func TestProcessDoesNotRetryPermanentFailure(t *testing.T) {
	llm := &scriptedLLM{answer: func(string, int) (string, error) {
		return "", core.Permanent(errors.New("invalid request"))
	}}
	p := NewProcessor(llm, &recordingRetriever{}, testConfig(), nil)

	_, err := p.Process(context.Background(), models.Chunk{Text: "x"}, mustProfile(t, map[string]int{"attention": 1}), scope)
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
	assert.Len(t, llm.prompts, 1)
}

func TestProcessTimeoutCountsAsFailure(t *testing.T) {
	llm := &scriptedLLM{answer: func(string, int) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "late", nil
	}}
	cfg := testConfig()
	cfg.CallTimeout = 5 * time.Millisecond
	slow := core.LLMFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		out, err := llm.Complete(ctx, prompt, maxTokens)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return out, err
	})
	p := NewProcessor(slow, &recordingRetriever{}, cfg, nil)

	_, err := p.Process(context.Background(), models.Chunk{Text: "x"}, mustProfile(t, map[string]int{"attention": 1}), scope)
	require.Error(t, err)
	assert.Len(t, llm.prompts, 2)
}

func TestProcessRetrievalFailureFailsChunk(t *testing.T) {
	llm := &scriptedLLM{answer: func(prompt string, call int) (string, error) {
		if strings.Contains(prompt, "MISSING ITEMS:") {
			return "fact A", nil
		}
		return "simplified", nil
	}}
	ret := &recordingRetriever{err: core.Transient(errors.New("index down"))}
	p := NewProcessor(llm, ret, testConfig(), nil)

	_, err := p.Process(context.Background(), models.Chunk{Text: "fact A"}, mustProfile(t, map[string]int{"attention": 3}), scope)
	require.Error(t, err)
	assert.Len(t, ret.queries, 2)
}

func TestReduce(t *testing.T) {
	llm := &scriptedLLM{answer: func(prompt string, call int) (string, error) {
		return "consistent", nil
	}}
	p := NewProcessor(llm, &recordingRetriever{}, testConfig(), nil)

	out, err := p.Reduce(context.Background(), []string{"a", "b"}, scope)
	require.NoError(t, err)
	assert.Equal(t, "a\n\nb", out)
	assert.Empty(t, llm.prompts)

	s := scope
	s.Profile = mustProfile(t, map[string]int{"language": 2})
	out, err = p.Reduce(context.Background(), []string{"a", "b"}, s)
	require.NoError(t, err)
	assert.Equal(t, "consistent", out)
	assert.Contains(t, llm.prompts[0], "DOCUMENT:\na\n\nb")
}

func TestParseMissing(t *testing.T) {
	assert.Nil(t, parseMissing("NO_INFORMATION_LOST"))
	assert.Nil(t, parseMissing("no_information_lost."))
	assert.Nil(t, parseMissing("No important information lost."))
	assert.Equal(t, []string{"the 1998 date", "name of the author", "ratio 3:1"},
		parseMissing("- the 1998 date\n\n* name of the author\n3) ratio 3:1\n"))
	assert.Nil(t, parseMissing("   \n"))
}

func TestGuidelineCoversEveryAdaptedLevel(t *testing.T) {
	for _, d := range models.Dimensions {
		for level := models.MinLevel; level < models.MaxLevel; level++ {
			assert.NotEmpty(t, guideline(d, level), "%s level %d", d, level)
		}
		assert.Empty(t, guideline(d, models.MaxLevel))
	}
}
