package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/Simplifai/internal/models"
)

// JobStore persists one status record per job, addressable by job id.
// It abstracts Postgres/sqlite so higher layers never depend on a specific DB.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]models.Job, error)
	// AdvanceJobStage moves a job from one stage to the next. It is a no-op when
	// the job already sits at `to`, and fails with ErrInvalidTransition otherwise.
	AdvanceJobStage(ctx context.Context, id string, from, to models.Stage) error
	FailJob(ctx context.Context, id string, message string) error
	CompleteJob(ctx context.Context, id string, artifactKey string) error
	SetTransformState(ctx context.Context, id string, state models.TransformState) error
	SetJobChain(ctx context.Context, id string, chainID string) error
}

// ProgressTracker maps a job id to the progress of its transforming stage.
// Every mutation is atomic with respect to the processed/total comparison.
type ProgressTracker interface {
	Create(ctx context.Context, jobID string, totalUnits int) error
	RecordUnitResult(ctx context.Context, jobID string, unitIndex int, content string) error
	// RecordUnitFailure counts the unit as processed with substituted content and
	// keeps msg as that unit's non-fatal error until a later result replaces it.
	// The record stays eligible for completion.
	RecordUnitFailure(ctx context.Context, jobID string, unitIndex int, content, msg string) error
	SetError(ctx context.Context, jobID string, message string) error
	Get(ctx context.Context, jobID string) (*models.ProgressRecord, error)
}

// ProgressPurger drops terminal progress records older than a retention window.
type ProgressPurger interface {
	PurgeProgress(ctx context.Context, cutoff time.Time) (int64, error)
}

// VectorIndex stores extracted text for similarity lookup scoped to (owner, job).
type VectorIndex interface {
	Upsert(ctx context.Context, ownerID, jobID string, chunks []models.Chunk) error
	Query(ctx context.Context, ownerID, jobID, text string, k int) ([]models.IndexedChunk, error)
	DeleteByJob(ctx context.Context, jobID string) error
}

// ChunkStore is the persistence side of VectorIndex.
type ChunkStore interface {
	InsertDocumentChunks(ctx context.Context, chunks []models.IndexedChunk) error
	SearchDocumentChunks(ctx context.Context, ownerID, jobID string, queryVec []float32, limit int) ([]models.IndexedChunk, error)
	DeleteChunksByJob(ctx context.Context, jobID string) error
}

// ArtifactStore is the durable store for job inputs, intermediates and results.
type ArtifactStore interface {
	Put(ctx context.Context, ownerID, jobID, name string, data []byte, contentType string) (key string, err error)
	Get(ctx context.Context, ownerID, jobID, name string) ([]byte, error)
	Delete(ctx context.Context, ownerID, jobID, name string) error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
