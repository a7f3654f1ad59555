package ingestion_engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/models"
)

func TestExtractPlainTextPages(t *testing.T) {
	e := NewDocconvExtractor(false, nil)
	meta := models.SourceRef{OwnerID: "owner-1", JobID: "job-1"}

	units, err := e.Extract(context.Background(), []byte("first page\r\n\fsecond page\f  \f"), "text/plain; charset=utf-8", meta)
	require.NoError(t, err)

	require.Len(t, units, 2)
	assert.Equal(t, models.DocumentUnit{Page: 1, Text: "first page", FileID: "job-1", OwnerID: "owner-1"}, units[0])
	assert.Equal(t, 2, units[1].Page)
	assert.Equal(t, "second page", units[1].Text)
}

func TestExtractRejectsEmpty(t *testing.T) {
	e := NewDocconvExtractor(false, nil)

	_, err := e.Extract(context.Background(), nil, "text/plain", models.SourceRef{})
	assert.True(t, core.IsPermanent(err))

	_, err = e.Extract(context.Background(), []byte(" \n\f "), "text/plain", models.SourceRef{})
	assert.True(t, core.IsPermanent(err))
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectContentType("application/pdf", "a.txt"))
	assert.Equal(t, "text/plain", DetectContentType("Text/Plain; charset=utf-8", "a.pdf"))
	assert.Equal(t, "application/pdf", DetectContentType("application/octet-stream", "report.pdf"))
}
