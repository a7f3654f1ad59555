package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// JobStatus is what a client sees when polling a job. Unit counts come from
// the progress record of the transforming stage and stay zero before it.
type JobStatus struct {
	JobID          string                `json:"job_id"`
	OwnerID        string                `json:"owner_id"`
	FileName       string                `json:"file_name"`
	Mode           models.Mode           `json:"mode"`
	Stage          models.Stage          `json:"stage"`
	TransformState models.TransformState `json:"transform_state"`
	ChainID        string                `json:"chain_id,omitempty"`
	ProcessedUnits int                   `json:"processed_units"`
	TotalUnits     int                   `json:"total_units"`
	Completed      bool                  `json:"completed"`
	Error          *string               `json:"error,omitempty"`
	Errors         []string              `json:"errors,omitempty"`
	PartialResults int                   `json:"partial_results"`
	ArtifactKey    string                `json:"artifact_key,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// ErrNotReady is returned when a job's result is requested before it is stored.
var ErrNotReady = errors.New("result not ready")

// ChunkResult is one entry of a paged chunk listing.
type ChunkResult struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// Result is a stored artifact with its manifest.
type Result struct {
	Content  []byte
	Manifest models.ResultManifest
}

// GetStatus merges the job record with its progress record. ownerID scopes
// the lookup; another owner's job reads as not found.
func (p *JobPipeline) GetStatus(ctx context.Context, ownerID, jobID string) (*JobStatus, error) {
	job, err := p.ownedJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}

	st := &JobStatus{
		JobID:          job.ID,
		OwnerID:        job.OwnerID,
		FileName:       job.FileName,
		Mode:           job.Mode,
		Stage:          job.Stage,
		TransformState: job.TransformState,
		ChainID:        job.ChainID,
		ArtifactKey:    job.ArtifactKey,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
	if job.Error != "" {
		msg := job.Error
		st.Error = &msg
	}

	rec, err := p.deps.Progress.Get(ctx, jobID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return st, nil
	case err != nil:
		return nil, fmt.Errorf("read progress: %w", err)
	}
	st.ProcessedUnits = rec.ProcessedUnits
	st.TotalUnits = rec.TotalUnits
	st.Completed = rec.Completed
	st.Errors = rec.Errors
	st.PartialResults = len(rec.PartialResults)
	if st.Error == nil && rec.Error != nil {
		st.Error = rec.Error
	}
	return st, nil
}

// ListJobs returns the owner's most recent jobs.
func (p *JobPipeline) ListJobs(ctx context.Context, ownerID string, limit int) ([]models.Job, error) {
	if ownerID == "" {
		return nil, core.Invalid("owner_id", "required")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return p.deps.Jobs.ListJobsByOwner(ctx, ownerID, limit)
}

// Chunks pages the per-chunk results of the transforming stage. Chunks that
// have not finished yet read as PendingChunk.
func (p *JobPipeline) Chunks(ctx context.Context, ownerID, jobID string, start, count int) ([]ChunkResult, int, error) {
	if start < 0 {
		return nil, 0, core.Invalid("start", "must not be negative")
	}
	if count <= 0 {
		return nil, 0, core.Invalid("count", "must be positive")
	}
	if _, err := p.ownedJob(ctx, ownerID, jobID); err != nil {
		return nil, 0, err
	}
	rec, err := p.deps.Progress.Get(ctx, jobID)
	if errors.Is(err, core.ErrNotFound) {
		return []ChunkResult{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	end := min(start+count, rec.TotalUnits)
	out := make([]ChunkResult, 0, max(end-start, 0))
	for i := start; i < end; i++ {
		content, ok := rec.PartialResults[i]
		if !ok {
			content = PendingChunk
		}
		out = append(out, ChunkResult{Index: i, Content: content, Done: ok})
	}
	return out, rec.TotalUnits, nil
}

// Result returns the stored artifact of a finished job.
func (p *JobPipeline) Result(ctx context.Context, ownerID, jobID string) (*Result, error) {
	job, err := p.ownedJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Stage != models.StageDone {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Stage, ErrNotReady)
	}
	content, err := p.deps.Artifacts.Get(ctx, job.OwnerID, job.ID, resultArtifact)
	if err != nil {
		return nil, err
	}
	raw, err := p.deps.Artifacts.Get(ctx, job.OwnerID, job.ID, manifestArtifact)
	if err != nil {
		return nil, err
	}
	res := &Result{Content: content}
	if err := json.Unmarshal(raw, &res.Manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return res, nil
}

// ChainStatus returns the orchestrator view of a job's chain.
func (p *JobPipeline) ChainStatus(ctx context.Context, ownerID, chainID string) (ChainStatus, error) {
	st, err := p.deps.Orchestrator.Status(chainID)
	if err != nil {
		return ChainStatus{}, err
	}
	if _, err := p.ownedJob(ctx, ownerID, st.JobID); err != nil {
		return ChainStatus{}, err
	}
	return st, nil
}

func (p *JobPipeline) ownedJob(ctx context.Context, ownerID, jobID string) (*models.Job, error) {
	job, err := p.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, fmt.Errorf("job %s: %w", jobID, core.ErrNotFound)
	}
	return job, nil
}
