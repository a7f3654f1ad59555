// Package pipeline drives a job through its stages. Stages are chained on the
// Orchestrator and hand each other artifact names, never document content.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/core/ingestion_engine"
	"github.com/markdave123-py/Simplifai/internal/core/mapreduce"
	"github.com/markdave123-py/Simplifai/internal/logging"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// Artifact names inside a job's namespace.
const (
	sourceArtifact    = "source"
	unitsArtifact     = "units.json"
	draftArtifact     = "draft.txt"
	transformArtifact = "transform.json"
	resultArtifact    = "result.txt"
	manifestArtifact  = "result.json"
)

// PendingChunk stands in for a chunk that has not been processed yet.
const PendingChunk = "pending"

type Config struct {
	ChunkMaxTokens     int
	ChunkOverlapTokens int
	IndexChunkTokens   int
	IndexOverlapTokens int
	MapMaxWorkers      int
	StageAttempts      int
	StageBackoff       time.Duration
	StoreAttempts      int
	StoreBackoff       time.Duration
}

// Deps are the collaborators a JobPipeline drives.
type Deps struct {
	Jobs         core.JobStore
	Progress     core.ProgressTracker
	Artifacts    core.ArtifactStore
	Extractor    core.DocumentExtractor
	Index        core.VectorIndex
	Coordinator  *mapreduce.Coordinator
	Transformers map[models.Mode]core.Transformer
	Orchestrator *Orchestrator
}

type JobPipeline struct {
	deps Deps
	cfg  Config
	log  *zap.Logger
	now  func() time.Time
}

func NewJobPipeline(deps Deps, cfg Config, log *zap.Logger) (*JobPipeline, error) {
	switch {
	case deps.Jobs == nil, deps.Progress == nil, deps.Artifacts == nil, deps.Extractor == nil,
		deps.Index == nil, deps.Coordinator == nil, deps.Orchestrator == nil:
		return nil, errors.New("pipeline: missing dependency")
	case len(deps.Transformers) == 0:
		return nil, errors.New("pipeline: no transformers registered")
	}
	if cfg.MapMaxWorkers < 1 {
		cfg.MapMaxWorkers = 1
	}
	if cfg.StageAttempts < 1 {
		cfg.StageAttempts = 1
	}
	if cfg.StoreAttempts < 1 {
		cfg.StoreAttempts = 1
	}
	return &JobPipeline{deps: deps, cfg: cfg, log: logging.OrNop(log), now: time.Now}, nil
}

// Submission is a document accepted for processing.
type Submission struct {
	OwnerID     string
	FileName    string
	ContentType string
	Data        []byte
	Mode        models.Mode
	Profile     models.Profile
}

// Submit stores the source file, creates the job record and dispatches the
// stage chain. It returns as soon as the chain is queued.
func (p *JobPipeline) Submit(ctx context.Context, sub Submission) (*models.Job, error) {
	if strings.TrimSpace(sub.OwnerID) == "" {
		return nil, core.Invalid("owner_id", "required")
	}
	if len(sub.Data) == 0 {
		return nil, core.Invalid("file", "empty upload")
	}
	if !sub.Mode.Valid() {
		return nil, core.Invalid("mode", "unknown mode %q", sub.Mode)
	}
	if _, ok := p.deps.Transformers[sub.Mode]; !ok {
		return nil, core.Invalid("mode", "mode %q is not available", sub.Mode)
	}

	job := &models.Job{
		ID:             uuid.NewString(),
		OwnerID:        sub.OwnerID,
		FileName:       SanitizeFileName(sub.FileName),
		ContentType:    sub.ContentType,
		Mode:           sub.Mode,
		Profile:        sub.Profile,
		Stage:          models.StageReceived,
		TransformState: models.TransformPending,
	}
	log := p.log.With(zap.String("job_id", job.ID), zap.String("owner_id", job.OwnerID))

	if _, err := p.deps.Artifacts.Put(ctx, job.OwnerID, job.ID, sourceArtifact, sub.Data, job.ContentType); err != nil {
		return nil, fmt.Errorf("store source: %w", err)
	}
	if err := p.deps.Jobs.CreateJob(ctx, job); err != nil {
		if derr := p.deps.Artifacts.Delete(context.WithoutCancel(ctx), job.OwnerID, job.ID, sourceArtifact); derr != nil {
			log.Warn("remove orphaned source", zap.Error(derr))
		}
		return nil, fmt.Errorf("create job: %w", err)
	}

	handle, err := p.deps.Orchestrator.Chain(ctx, ChainSpec{
		JobID: job.ID,
		Input: models.StageRef{JobID: job.ID, OwnerID: job.OwnerID, Key: sourceArtifact},
		Units: p.stages(),
		OnFailure: func(ctx context.Context, unit string, err error) {
			p.fail(ctx, job.ID, unit, err)
		},
	})
	if err != nil {
		p.fail(context.WithoutCancel(ctx), job.ID, "dispatch", err)
		return nil, fmt.Errorf("dispatch job: %w", err)
	}
	if err := p.deps.Jobs.SetJobChain(ctx, job.ID, handle.ID); err != nil {
		log.Warn("record chain id", zap.Error(err))
	}
	job.ChainID = handle.ID

	log.Info("job submitted",
		zap.String("chain_id", handle.ID),
		zap.String("mode", string(job.Mode)),
		zap.Int("bytes", len(sub.Data)),
	)
	return job, nil
}

func (p *JobPipeline) stages() []WorkUnit {
	return []WorkUnit{
		{Name: string(models.StageExtracting), Run: p.extract, Attempts: p.cfg.StageAttempts, Backoff: p.cfg.StageBackoff},
		{Name: string(models.StageIndexing), Run: p.index, Attempts: p.cfg.StageAttempts, Backoff: p.cfg.StageBackoff},
		{Name: string(models.StageTransforming), Run: p.transform, Attempts: 1},
		{Name: string(models.StageStoring), Run: p.store, Attempts: p.cfg.StoreAttempts, Backoff: p.cfg.StoreBackoff},
	}
}

func (p *JobPipeline) extract(ctx context.Context, in models.StageRef) (models.StageRef, error) {
	job, err := p.enter(ctx, in.JobID, models.StageReceived, models.StageExtracting)
	if err != nil {
		return models.StageRef{}, err
	}

	data, err := p.deps.Artifacts.Get(ctx, in.OwnerID, in.JobID, in.Key)
	if err != nil {
		return models.StageRef{}, fmt.Errorf("load source: %w", err)
	}
	units, err := p.deps.Extractor.Extract(ctx, data, job.ContentType, models.SourceRef{OwnerID: in.OwnerID, JobID: in.JobID})
	if err != nil {
		return models.StageRef{}, err
	}
	if len(units) == 0 {
		return models.StageRef{}, core.Permanent(errors.New("no text could be extracted"))
	}
	if err := p.putJSON(ctx, in, unitsArtifact, units); err != nil {
		return models.StageRef{}, err
	}
	return in.WithKey(unitsArtifact), nil
}

func (p *JobPipeline) index(ctx context.Context, in models.StageRef) (models.StageRef, error) {
	if _, err := p.enter(ctx, in.JobID, models.StageExtracting, models.StageIndexing); err != nil {
		return models.StageRef{}, err
	}

	units, err := p.loadUnits(ctx, in)
	if err != nil {
		return models.StageRef{}, err
	}
	chunks, err := ingestion_engine.Split(units, p.cfg.IndexChunkTokens, p.cfg.IndexOverlapTokens)
	if err != nil {
		return models.StageRef{}, core.Permanent(err)
	}
	// A retried attempt must not leave duplicate rows behind.
	if err := p.deps.Index.DeleteByJob(ctx, in.JobID); err != nil {
		return models.StageRef{}, err
	}
	if err := p.deps.Index.Upsert(ctx, in.OwnerID, in.JobID, chunks); err != nil {
		return models.StageRef{}, err
	}
	return in, nil
}

func (p *JobPipeline) transform(ctx context.Context, in models.StageRef) (models.StageRef, error) {
	job, err := p.enter(ctx, in.JobID, models.StageIndexing, models.StageTransforming)
	if err != nil {
		return models.StageRef{}, err
	}
	if err := p.deps.Jobs.SetTransformState(ctx, job.ID, models.TransformRunning); err != nil {
		return models.StageRef{}, err
	}

	res, err := p.runTransform(ctx, job, in)
	if err != nil {
		if serr := p.deps.Jobs.SetTransformState(context.WithoutCancel(ctx), job.ID, models.TransformFailed); serr != nil {
			p.log.Warn("set transform state", zap.String("job_id", job.ID), zap.Error(serr))
		}
		return models.StageRef{}, core.Permanent(err)
	}
	if err := p.deps.Jobs.SetTransformState(ctx, job.ID, res.State); err != nil {
		return models.StageRef{}, err
	}

	if _, err := p.deps.Artifacts.Put(ctx, in.OwnerID, in.JobID, draftArtifact, []byte(res.Text), "text/plain"); err != nil {
		return models.StageRef{}, fmt.Errorf("store draft: %w", err)
	}
	manifest := models.ResultManifest{
		JobID:              job.ID,
		OwnerID:            job.OwnerID,
		Mode:               job.Mode,
		TransformState:     res.State,
		FailedChunks:       res.FailedChunks,
		Errors:             res.Errors,
		ConsistencySkipped: res.ConsistencySkipped,
		ArtifactName:       resultArtifact,
	}
	if err := p.putJSON(ctx, in, transformArtifact, manifest); err != nil {
		return models.StageRef{}, err
	}
	return in.WithKey(draftArtifact), nil
}

func (p *JobPipeline) runTransform(ctx context.Context, job *models.Job, in models.StageRef) (mapreduce.Result, error) {
	units, err := p.loadUnits(ctx, in)
	if err != nil {
		return mapreduce.Result{}, err
	}
	chunks, err := ingestion_engine.Split(units, p.cfg.ChunkMaxTokens, p.cfg.ChunkOverlapTokens)
	if err != nil {
		return mapreduce.Result{}, err
	}
	t, ok := p.deps.Transformers[job.Mode]
	if !ok {
		return mapreduce.Result{}, fmt.Errorf("no transformer for mode %q", job.Mode)
	}
	scope := core.TransformScope{JobID: job.ID, OwnerID: job.OwnerID, Profile: job.Profile}
	return p.deps.Coordinator.Run(ctx, job.ID, chunks, t, scope, p.cfg.MapMaxWorkers)
}

func (p *JobPipeline) store(ctx context.Context, in models.StageRef) (models.StageRef, error) {
	if _, err := p.enter(ctx, in.JobID, models.StageTransforming, models.StageStoring); err != nil {
		return models.StageRef{}, err
	}

	draft, err := p.deps.Artifacts.Get(ctx, in.OwnerID, in.JobID, in.Key)
	if err != nil {
		return models.StageRef{}, fmt.Errorf("load draft: %w", err)
	}
	raw, err := p.deps.Artifacts.Get(ctx, in.OwnerID, in.JobID, transformArtifact)
	if err != nil {
		return models.StageRef{}, fmt.Errorf("load transform summary: %w", err)
	}
	var manifest models.ResultManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return models.StageRef{}, core.Permanent(fmt.Errorf("decode transform summary: %w", err))
	}

	key, err := p.deps.Artifacts.Put(ctx, in.OwnerID, in.JobID, resultArtifact, draft, "text/plain")
	if err != nil {
		return models.StageRef{}, fmt.Errorf("store result: %w", err)
	}
	manifest.StoredAt = p.now().UTC()
	if err := p.putJSON(ctx, in, manifestArtifact, manifest); err != nil {
		return models.StageRef{}, err
	}
	if err := p.deps.Jobs.CompleteJob(ctx, in.JobID, key); err != nil {
		return models.StageRef{}, err
	}

	for _, name := range []string{draftArtifact, transformArtifact} {
		if err := p.deps.Artifacts.Delete(ctx, in.OwnerID, in.JobID, name); err != nil {
			p.log.Warn("delete intermediate artifact", zap.String("job_id", in.JobID), zap.String("name", name), zap.Error(err))
		}
	}
	return in.WithKey(resultArtifact), nil
}

// enter loads the job and moves it from one stage to the next. An error
// stage is terminal, so a job failed elsewhere stops the chain here.
func (p *JobPipeline) enter(ctx context.Context, jobID string, from, to models.Stage) (*models.Job, error) {
	if err := p.deps.Jobs.AdvanceJobStage(ctx, jobID, from, to); err != nil {
		if errors.Is(err, core.ErrInvalidTransition) || errors.Is(err, core.ErrNotFound) {
			return nil, core.Permanent(err)
		}
		return nil, err
	}
	job, err := p.deps.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	p.log.Debug("stage entered", zap.String("job_id", jobID), zap.String("stage", string(to)))
	return job, nil
}

// fail moves the job to the error stage with a message naming the stage,
// and terminates its progress record if one exists.
func (p *JobPipeline) fail(ctx context.Context, jobID, stage string, cause error) {
	msg := fmt.Sprintf("%s: %v", stage, cause)
	if err := p.deps.Jobs.FailJob(ctx, jobID, msg); err != nil {
		p.log.Error("fail job", zap.String("job_id", jobID), zap.Error(err))
	}
	if err := p.deps.Progress.SetError(ctx, jobID, msg); err != nil && !errors.Is(err, core.ErrNotFound) {
		p.log.Error("set progress error", zap.String("job_id", jobID), zap.Error(err))
	}
	p.log.Warn("job failed", zap.String("job_id", jobID), zap.String("stage", stage), zap.Error(cause))
}

func (p *JobPipeline) loadUnits(ctx context.Context, in models.StageRef) ([]models.DocumentUnit, error) {
	raw, err := p.deps.Artifacts.Get(ctx, in.OwnerID, in.JobID, in.Key)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}
	var units []models.DocumentUnit
	if err := json.Unmarshal(raw, &units); err != nil {
		return nil, core.Permanent(fmt.Errorf("decode units: %w", err))
	}
	return units, nil
}

func (p *JobPipeline) putJSON(ctx context.Context, in models.StageRef, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return core.Permanent(fmt.Errorf("encode %s: %w", name, err))
	}
	if _, err := p.deps.Artifacts.Put(ctx, in.OwnerID, in.JobID, name, b, "application/json"); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFileName keeps the base name and replaces anything outside
// [A-Za-z0-9_.-] with an underscore.
func SanitizeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = ""
	}
	base = unsafeName.ReplaceAllString(base, "_")
	if base == "" {
		return "upload"
	}
	return base
}
