package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/logging"
	"github.com/markdave123-py/Simplifai/internal/models"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// Pages are recovered from form feeds when the converter keeps them;
// otherwise the whole document is a single unit.
type DocconvExtractor struct {
	useReadability bool
	log            *zap.Logger
}

func NewDocconvExtractor(useReadability bool, log *zap.Logger) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability, log: logging.OrNop(log)}
}

// Extract converts data to text and splits it into page units.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string, meta models.SourceRef) ([]models.DocumentUnit, error) {
	if len(data) == 0 {
		return nil, core.Permanent(fmt.Errorf("extract: empty file"))
	}

	var text string
	switch baseType(contentType) {
	case "text/plain", "text/markdown":
		text = string(data)
	default:
		res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
		if err != nil {
			e.log.Warn("docconv extraction failed",
				zap.String("job_id", meta.JobID),
				zap.String("content_type", contentType),
				zap.Error(err))
			return nil, core.Permanent(fmt.Errorf("extract %s: %w", contentType, err))
		}
		text = res.Body
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	units := pageUnits(text, meta)
	if len(units) == 0 {
		return nil, core.Permanent(fmt.Errorf("extract %s: no text found", contentType))
	}
	e.log.Debug("document extracted",
		zap.String("job_id", meta.JobID),
		zap.Int("pages", len(units)))
	return units, nil
}

func pageUnits(text string, meta models.SourceRef) []models.DocumentUnit {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var units []models.DocumentUnit
	for i, page := range strings.Split(text, "\f") {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		units = append(units, models.DocumentUnit{
			Page:    i + 1,
			Text:    page,
			FileID:  meta.JobID,
			OwnerID: meta.OwnerID,
		})
	}
	return units
}

func baseType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// DetectContentType picks a MIME type from the declared header, falling back
// to the file extension when the client sent a generic type.
func DetectContentType(declared, fileName string) string {
	bt := baseType(declared)
	if bt != "" && bt != "application/octet-stream" {
		return bt
	}
	return docconv.MimeTypeByExtension(fileName)
}
