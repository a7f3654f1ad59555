package ingestion_engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// paragraphText builds roughly tokens worth of text as paragraphs of sentences.
func paragraphText(tokens int, tag string) string {
	var b strings.Builder
	for p := 0; ApproxTokens(b.String()) < tokens; p++ {
		if p > 0 {
			b.WriteString("\n\n")
		}
		for s := 0; s < 6; s++ {
			fmt.Fprintf(&b, "Sentence %d of %s paragraph %d talks about memory. ", s, tag, p)
		}
	}
	return b.String()
}

func unitsOf(texts ...string) []models.DocumentUnit {
	out := make([]models.DocumentUnit, len(texts))
	for i, t := range texts {
		out[i] = models.DocumentUnit{Page: i + 1, Text: t, FileID: "job-1", OwnerID: "owner-1"}
	}
	return out
}

func joinBodies(chunks []models.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Body())
	}
	return b.String()
}

func TestSplitThreePageScenario(t *testing.T) {
	units := unitsOf(
		paragraphText(200, "short-a")[:800],
		paragraphText(1500, "long"),
		paragraphText(200, "short-b")[:800],
	)

	chunks, err := Split(units, 500, 50)
	require.NoError(t, err)

	perPage := map[int]int{}
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, c.Tokens, 500, "chunk %d", i)
		assert.Equal(t, ApproxTokens(c.Text), c.Tokens)
		perPage[c.Source.Page]++
	}
	assert.Equal(t, 1, perPage[1])
	assert.GreaterOrEqual(t, perPage[2], 3)
	assert.Equal(t, 1, perPage[3])
	assert.Equal(t, units[0].Text+units[1].Text+units[2].Text, joinBodies(chunks))
}

func TestSplitOverlapRepeatsPreviousTail(t *testing.T) {
	chunks, err := Split(unitsOf(paragraphText(900, "x")), 200, 20)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	assert.Zero(t, chunks[0].OverlapLen)
	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i].Text[:chunks[i].OverlapLen]
		require.NotEmpty(t, overlap)
		assert.True(t, strings.HasSuffix(chunks[i-1].Body(), overlap), "chunk %d", i)
		assert.LessOrEqual(t, ApproxTokens(overlap), 20)
	}
}

func TestSplitRoundTrip(t *testing.T) {
	inputs := [][]string{
		{"one paragraph only"},
		{paragraphText(300, "a"), "", paragraphText(50, "b")},
		{"Trailing separators.\n\n\n\n", "Unicode ünïcödé text. Ça marche! Oui?  Yes.\n\nDone."},
		{strings.Repeat("word ", 700)},
	}
	for i, texts := range inputs {
		for _, params := range [][2]int{{50, 0}, {50, 10}, {120, 30}, {1000, 200}} {
			chunks, err := Split(unitsOf(texts...), params[0], params[1])
			require.NoError(t, err)
			assert.Equal(t, strings.Join(texts, ""), joinBodies(chunks), "input %d params %v", i, params)
		}
	}
}

func TestSplitOversizedSentenceIsKept(t *testing.T) {
	long := strings.Repeat("x", 4000) + ". Short tail."
	chunks, err := Split(unitsOf(long), 100, 0)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Greater(t, chunks[0].Tokens, 100)
	assert.Equal(t, long, joinBodies(chunks))
}

func TestSplitDeterministic(t *testing.T) {
	units := unitsOf(paragraphText(800, "d"), paragraphText(300, "e"))
	a, err := Split(units, 150, 25)
	require.NoError(t, err)
	b, err := Split(units, 150, 25)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitValidation(t *testing.T) {
	for _, params := range [][2]int{{0, 0}, {-1, 0}, {100, -1}, {100, 100}} {
		_, err := Split(unitsOf("text"), params[0], params[1])
		assert.True(t, core.IsValidation(err), "params %v", params)
	}

	chunks, err := Split(nil, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSentences(t *testing.T) {
	got := sentences("One. Two!  Three?\nFour 3.5 five")
	assert.Equal(t, []string{"One. ", "Two!  ", "Three?\n", "Four 3.5 five"}, got)
}
