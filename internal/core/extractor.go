package core

import (
	"context"

	"github.com/markdave123-py/Simplifai/internal/models"
)

// DocumentExtractor turns a raw file into ordered document units.
// The contentType hint selects the parsing strategy; meta carries the
// owner and file ids stamped onto every unit.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string, meta models.SourceRef) ([]models.DocumentUnit, error)
}
