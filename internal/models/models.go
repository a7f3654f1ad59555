package models

import (
	"time"
)

// Stage is one named phase of a job's pipeline.
type Stage string

const (
	StageReceived     Stage = "received"
	StageExtracting   Stage = "extracting"
	StageIndexing     Stage = "indexing"
	StageTransforming Stage = "transforming"
	StageStoring      Stage = "storing"
	StageDone         Stage = "done"
	StageError        Stage = "error"
)

// StageOrder is the strict forward order of a job's stages.
var StageOrder = []Stage{
	StageReceived,
	StageExtracting,
	StageIndexing,
	StageTransforming,
	StageStoring,
	StageDone,
}

// Terminal reports whether no further transition is allowed out of s.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError
}

// CanAdvance reports whether a job may move from s to next.
// Only the immediate successor and the error state are reachable.
func (s Stage) CanAdvance(next Stage) bool {
	if s.Terminal() {
		return false
	}
	if next == StageError {
		return true
	}
	for i, st := range StageOrder {
		if st == s {
			return i+1 < len(StageOrder) && StageOrder[i+1] == next
		}
	}
	return false
}

// TransformState tracks the outcome of the transforming stage.
type TransformState string

const (
	TransformPending             TransformState = "pending"
	TransformRunning             TransformState = "running"
	TransformCompleted           TransformState = "completed"
	TransformCompletedWithErrors TransformState = "completed_with_errors"
	TransformFailed              TransformState = "failed"
)

// Mode selects the content transformation applied to a document.
type Mode string

const (
	ModeSimplify  Mode = "simplify"
	ModeSummarize Mode = "summarize"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSimplify || m == ModeSummarize
}

// Job represents one user-submitted document processing request.
type Job struct {
	ID             string         `db:"id" json:"job_id"`
	OwnerID        string         `db:"owner_id" json:"owner_id"`
	FileName       string         `db:"file_name" json:"file_name"`
	ContentType    string         `db:"content_type" json:"content_type"`
	Mode           Mode           `db:"mode" json:"mode"`
	Profile        Profile        `db:"profile" json:"profile"`
	Stage          Stage          `db:"stage" json:"stage"`
	TransformState TransformState `db:"transform_state" json:"transform_state"`
	ChainID        string         `db:"chain_id" json:"chain_id,omitempty"`
	ArtifactKey    string         `db:"artifact_key" json:"artifact_key,omitempty"`
	Error          string         `db:"error" json:"error,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// DocumentUnit is one page or logical section of a source document.
type DocumentUnit struct {
	Page    int    `json:"page"`
	Text    string `json:"text"`
	FileID  string `json:"file_id"`
	OwnerID string `json:"owner_id"`
}

// SourceRef points back at the unit a chunk was cut from.
type SourceRef struct {
	OwnerID string `json:"owner_id"`
	JobID   string `json:"job_id"`
	Page    int    `json:"page"`
}

// Chunk is a bounded-size span of document text.
//
// Index:      stable, zero-based position inside the document.
// Text:       overlap prefix followed by the chunk's own content.
// OverlapLen: byte length of the prefix repeated from the previous chunk.
// Tokens:     approximate token count of Text.
type Chunk struct {
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	OverlapLen int       `json:"overlap_len"`
	Tokens     int       `json:"tokens"`
	Source     SourceRef `json:"source_ref"`
}

// Body returns the chunk's content without the repeated overlap prefix.
func (c Chunk) Body() string {
	if c.OverlapLen <= 0 || c.OverlapLen > len(c.Text) {
		return c.Text
	}
	return c.Text[c.OverlapLen:]
}

// ProgressRecord is the per-job progress of the transforming stage.
type ProgressRecord struct {
	JobID          string         `json:"job_id"`
	TotalUnits     int            `json:"total_units"`
	ProcessedUnits int            `json:"processed_units"`
	Completed      bool           `json:"completed"`
	Error          *string        `json:"error,omitempty"`
	Errors         []string       `json:"errors,omitempty"`
	PartialResults map[int]string `json:"partial_results,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Terminal reports whether the record can no longer move toward success.
func (p *ProgressRecord) Terminal() bool {
	return p.Error != nil || p.Completed
}

// StageRef is the payload handed from one pipeline stage to the next.
// Documents travel by storage key, never inline.
type StageRef struct {
	JobID   string `json:"job_id"`
	OwnerID string `json:"owner_id"`
	Key     string `json:"key"`
}

// WithKey returns a copy of r pointing at another artifact of the same job.
func (r StageRef) WithKey(key string) StageRef {
	r.Key = key
	return r
}

// IndexedChunk represents one chunk row in the vector index.
type IndexedChunk struct {
	ID         string    `db:"id" json:"id"`
	OwnerID    string    `db:"owner_id" json:"owner_id"`
	JobID      string    `db:"job_id" json:"job_id"`
	Position   int       `db:"position" json:"position"`
	Page       int       `db:"page" json:"page"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"`
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ResultManifest is stored next to the final artifact.
type ResultManifest struct {
	JobID              string         `json:"job_id"`
	OwnerID            string         `json:"owner_id"`
	Mode               Mode           `json:"mode"`
	TransformState     TransformState `json:"transform_state"`
	FailedChunks       []int          `json:"failed_chunks,omitempty"`
	Errors             []string       `json:"errors,omitempty"`
	ConsistencySkipped bool           `json:"consistency_skipped"`
	ArtifactName       string         `json:"artifact_name"`
	StoredAt           time.Time      `json:"stored_at"`
}
