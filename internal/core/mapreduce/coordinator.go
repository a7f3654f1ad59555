// Package mapreduce fans a document's chunks out to a bounded worker pool and
// folds the results back together in chunk order.
package mapreduce

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/core/ingestion_engine"
	"github.com/markdave123-py/Simplifai/internal/logging"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// Result is the outcome of one Run.
//
// Text:               combined output, reduced unless ConsistencySkipped.
// FailedChunks:       indices whose original text was substituted.
// Errors:             one message per failed chunk, in index order.
// ConsistencySkipped: the joined text exceeded the ceiling, so Reduce was not called.
type Result struct {
	Text               string
	State              models.TransformState
	FailedChunks       []int
	Errors             []string
	ConsistencySkipped bool
}

type Coordinator struct {
	tracker core.ProgressTracker
	// ceiling is the largest joined text, in tokens, that is sent to Reduce.
	ceiling int
	log     *zap.Logger
}

func NewCoordinator(tracker core.ProgressTracker, consistencyCeiling int, log *zap.Logger) *Coordinator {
	return &Coordinator{tracker: tracker, ceiling: consistencyCeiling, log: logging.OrNop(log)}
}

// Run transforms chunks with at most maxWorkers in flight and reduces the
// results. A chunk that fails is replaced by its original text and recorded
// as a non-fatal error; only invalid input, a tracker failure, cancellation or
// a failed Reduce make the run fail.
func (c *Coordinator) Run(ctx context.Context, jobID string, chunks []models.Chunk, t core.Transformer, scope core.TransformScope, maxWorkers int) (Result, error) {
	failed := Result{State: models.TransformFailed}
	if maxWorkers < 1 {
		return failed, core.Invalid("max_workers", "must be at least 1, got %d", maxWorkers)
	}
	for i, ch := range chunks {
		if ch.Index != i {
			return failed, core.Invalid("chunks", "index %d at position %d; indices must run 0..n-1 in order", ch.Index, i)
		}
	}

	if err := c.tracker.Create(ctx, jobID, len(chunks)); err != nil {
		return failed, fmt.Errorf("create progress: %w", err)
	}
	log := c.log.With(zap.String("job_id", jobID))
	log.Info("transform started", zap.Int("chunks", len(chunks)), zap.Int("max_workers", maxWorkers))

	results := make([]string, len(chunks))
	chunkErrs := make([]string, len(chunks))

	var g errgroup.Group
	g.SetLimit(maxWorkers)
	for i := range chunks {
		ch := chunks[i]
		g.Go(func() error {
			out, err := t.TransformChunk(ctx, ch, scope)
			if err != nil {
				msg := fmt.Sprintf("chunk %d: %v", ch.Index, err)
				results[ch.Index] = ch.Body()
				chunkErrs[ch.Index] = msg
				log.Warn("chunk failed, keeping original text", zap.Int("chunk_index", ch.Index), zap.Error(err))
				if terr := c.tracker.RecordUnitFailure(ctx, jobID, ch.Index, ch.Body(), msg); terr != nil {
					log.Error("record chunk failure", zap.Int("chunk_index", ch.Index), zap.Error(terr))
				}
				return nil
			}
			results[ch.Index] = out
			if terr := c.tracker.RecordUnitResult(ctx, jobID, ch.Index, out); terr != nil {
				log.Error("record chunk result", zap.Int("chunk_index", ch.Index), zap.Error(terr))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		c.fail(ctx, jobID, "transform cancelled", log)
		return failed, err
	}

	res := Result{State: models.TransformCompleted}
	for i, msg := range chunkErrs {
		if msg != "" {
			res.FailedChunks = append(res.FailedChunks, i)
			res.Errors = append(res.Errors, msg)
		}
	}
	if len(res.FailedChunks) > 0 {
		res.State = models.TransformCompletedWithErrors
	}

	if len(chunks) == 0 {
		return res, nil
	}

	joined := strings.Join(results, "\n\n")
	if tokens := ingestion_engine.ApproxTokens(joined); tokens > c.ceiling {
		log.Info("consistency pass skipped", zap.Int("tokens", tokens), zap.Int("ceiling", c.ceiling))
		res.Text = joined
		res.ConsistencySkipped = true
		return res, nil
	}

	reduced, err := t.Reduce(ctx, results, scope)
	if err != nil {
		c.fail(ctx, jobID, fmt.Sprintf("reduce: %v", err), log)
		return failed, fmt.Errorf("reduce: %w", err)
	}
	res.Text = reduced

	log.Info("transform finished",
		zap.String("state", string(res.State)),
		zap.Int("failed_chunks", len(res.FailedChunks)))
	return res, nil
}

// fail marks the progress record terminal, even when ctx is already cancelled.
func (c *Coordinator) fail(ctx context.Context, jobID, msg string, log *zap.Logger) {
	if err := c.tracker.SetError(context.WithoutCancel(ctx), jobID, msg); err != nil {
		log.Error("set progress error", zap.Error(err))
	}
}
