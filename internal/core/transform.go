package core

import (
	"context"

	"github.com/markdave123-py/Simplifai/internal/models"
)

// TransformScope identifies whose document a transformation runs on.
type TransformScope struct {
	JobID   string
	OwnerID string
	Profile models.Profile
}

// Transformer is one content transformation run chunk by chunk and then
// combined. TransformChunk must not hold state between calls; it is invoked
// concurrently for different chunks of the same job.
type Transformer interface {
	TransformChunk(ctx context.Context, chunk models.Chunk, scope TransformScope) (string, error)
	// Reduce combines the per-chunk outputs, given in chunk order, into one text.
	Reduce(ctx context.Context, parts []string, scope TransformScope) (string, error)
}
