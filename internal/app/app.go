// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Simplifai/internal/config"
	"github.com/markdave123-py/Simplifai/internal/core"
	db "github.com/markdave123-py/Simplifai/internal/core/database"
	"github.com/markdave123-py/Simplifai/internal/core/ingestion_engine"
	"github.com/markdave123-py/Simplifai/internal/core/llm"
	"github.com/markdave123-py/Simplifai/internal/core/mapreduce"
	objectclient "github.com/markdave123-py/Simplifai/internal/core/object-client"
	"github.com/markdave123-py/Simplifai/internal/core/pipeline"
	"github.com/markdave123-py/Simplifai/internal/core/progress"
	"github.com/markdave123-py/Simplifai/internal/core/simplify"
	"github.com/markdave123-py/Simplifai/internal/core/summarize"
	"github.com/markdave123-py/Simplifai/internal/core/vectorindex"
	"github.com/markdave123-py/Simplifai/internal/logging"
	"github.com/markdave123-py/Simplifai/internal/models"
)

const retentionInterval = time.Hour

type App struct {
	DBClient     *db.DatabaseClient
	Pipeline     *pipeline.JobPipeline
	Orchestrator *pipeline.Orchestrator
	Server       *Server

	cfg     *config.Config
	log     *zap.Logger
	purger  core.ProgressPurger
	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logging.OrNop(log)
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{cfg: cfg, log: log}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)

	artifacts, err := newArtifactStore(appCtx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Info("artifact store ready", zap.String("backend", cfg.ArtifactBackend))

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	a.closers = append(a.closers, embedder.Close)

	gemini, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}
	a.closers = append(a.closers, gemini.Close)
	model := llm.NewRateLimited(gemini, cfg.LLMRate, 1)

	var tracker core.ProgressTracker = dbClient
	a.purger = dbClient
	if cfg.ProgressStore == "memory" {
		mem := progress.NewMemory()
		tracker, a.purger = mem, mem
	}

	p := cfg.Pipeline
	index := vectorindex.New(embedder, dbClient, log)

	simplifyCfg := simplify.DefaultConfig()
	simplifyCfg.ContextTopK = p.ContextTopK
	simplifyCfg.CallTimeout = p.ModelCallTimeout
	simplifyCfg.RetryBackoff = p.ModelRetryBackoff

	summarizeCfg := summarize.DefaultConfig()
	summarizeCfg.CallTimeout = p.ModelCallTimeout
	summarizeCfg.RetryBackoff = p.ModelRetryBackoff

	a.Orchestrator = pipeline.NewOrchestrator(pipeline.NewQueue(p.QueueSize, log), log)

	a.Pipeline, err = pipeline.NewJobPipeline(pipeline.Deps{
		Jobs:        dbClient,
		Progress:    tracker,
		Artifacts:   artifacts,
		Extractor:   ingestion_engine.NewDocconvExtractor(false, log),
		Index:       index,
		Coordinator: mapreduce.NewCoordinator(tracker, p.ConsistencyCeiling, log),
		Transformers: map[models.Mode]core.Transformer{
			models.ModeSimplify:  simplify.NewProcessor(model, index, simplifyCfg, log),
			models.ModeSummarize: summarize.New(model, summarizeCfg, log),
		},
		Orchestrator: a.Orchestrator,
	}, pipeline.Config{
		ChunkMaxTokens:     p.ChunkMaxTokens,
		ChunkOverlapTokens: p.ChunkOverlapTokens,
		IndexChunkTokens:   p.IndexChunkTokens,
		IndexOverlapTokens: p.IndexOverlapTokens,
		MapMaxWorkers:      p.MapMaxWorkers,
		StageAttempts:      p.StageAttempts,
		StageBackoff:       p.StageBackoff,
		StoreAttempts:      p.StoreAttempts,
		StoreBackoff:       p.StoreBackoff,
	}, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Server = NewServer(cfg, RouterDeps{
		Jobs:   a.Pipeline,
		Index:  index,
		LLM:    model,
		Health: dbClient,
		TopK:   p.ContextTopK,
	}, log)
	return a, nil
}

func newArtifactStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (core.ArtifactStore, error) {
	switch cfg.ArtifactBackend {
	case "fs":
		fs, err := objectclient.NewFileStore(cfg.ArtifactDir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "s3":
		s3, err := objectclient.NewS3Client(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return objectclient.NewBucketStore(s3, cfg.BucketName), nil
	default:
		return nil, fmt.Errorf("unsupported ARTIFACT_BACKEND %q", cfg.ArtifactBackend)
	}
}

// Run starts the stage workers, the retention loop and the HTTP server, and
// blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.Orchestrator.Start(ctx, a.cfg.Pipeline.StageWorkers)
	go runRetention(ctx, retentionInterval, a.cfg.Pipeline.ProgressRetention, a.purger, a.Orchestrator, a.log)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}
