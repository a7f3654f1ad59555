package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/models"
)

const jobColumns = `id, owner_id, file_name, content_type, mode, profile, stage, transform_state,
		chain_id, artifact_key, error, created_at, updated_at`

func (c *DatabaseClient) CreateJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	profile, err := json.Marshal(job.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	now := c.nowMillis()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = fromMillis(now)
	}
	job.UpdatedAt = job.CreatedAt

	q := c.q(`
		INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	res, err := c.db.ExecContext(ctx, q,
		job.ID, job.OwnerID, job.FileName, job.ContentType, string(job.Mode), string(profile),
		string(job.Stage), string(job.TransformState), job.ChainID, job.ArtifactKey, job.Error,
		job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", job.ID, core.ErrAlreadyExists)
	}
	return nil
}

func (c *DatabaseClient) GetJob(ctx context.Context, id string) (*models.Job, error) {
	q := c.q(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)
	job, err := scanJob(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (c *DatabaseClient) ListJobsByOwner(ctx context.Context, ownerID string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	q := c.q(`
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`)
	rows, err := c.db.QueryContext(ctx, q, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// AdvanceJobStage is a compare-and-set on the stage column.
func (c *DatabaseClient) AdvanceJobStage(ctx context.Context, id string, from, to models.Stage) error {
	if !from.CanAdvance(to) {
		return fmt.Errorf("job %s %s -> %s: %w", id, from, to, core.ErrInvalidTransition)
	}

	q := c.q(`UPDATE jobs SET stage = ?, updated_at = ? WHERE id = ? AND stage = ?`)
	res, err := c.db.ExecContext(ctx, q, string(to), c.nowMillis(), id, string(from))
	if err != nil {
		return fmt.Errorf("advance job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	current, err := c.jobStage(ctx, id)
	if err != nil {
		return err
	}
	if current == to {
		return nil
	}
	return fmt.Errorf("job %s is %s, not %s: %w", id, current, from, core.ErrInvalidTransition)
}

// FailJob moves a non-terminal job to the error stage. Failing an errored job
// again keeps the first message.
func (c *DatabaseClient) FailJob(ctx context.Context, id string, message string) error {
	q := c.q(`
		UPDATE jobs SET stage = ?, error = ?, updated_at = ?
		WHERE id = ? AND stage NOT IN (?, ?)
	`)
	res, err := c.db.ExecContext(ctx, q,
		string(models.StageError), message, c.nowMillis(), id,
		string(models.StageDone), string(models.StageError))
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	current, err := c.jobStage(ctx, id)
	if err != nil {
		return err
	}
	if current == models.StageError {
		return nil
	}
	return fmt.Errorf("job %s is %s: %w", id, current, core.ErrTerminal)
}

// CompleteJob moves a job from storing to done and records its artifact.
func (c *DatabaseClient) CompleteJob(ctx context.Context, id string, artifactKey string) error {
	q := c.q(`
		UPDATE jobs SET stage = ?, artifact_key = ?, updated_at = ?
		WHERE id = ? AND stage = ?
	`)
	res, err := c.db.ExecContext(ctx, q,
		string(models.StageDone), artifactKey, c.nowMillis(), id, string(models.StageStoring))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	current, err := c.jobStage(ctx, id)
	if err != nil {
		return err
	}
	if current == models.StageDone {
		return nil
	}
	return fmt.Errorf("job %s is %s, not storing: %w", id, current, core.ErrInvalidTransition)
}

func (c *DatabaseClient) SetTransformState(ctx context.Context, id string, state models.TransformState) error {
	return c.updateJobField(ctx, id, "transform_state", string(state))
}

func (c *DatabaseClient) SetJobChain(ctx context.Context, id string, chainID string) error {
	return c.updateJobField(ctx, id, "chain_id", chainID)
}

// updateJobField sets one text column; column is always a constant.
func (c *DatabaseClient) updateJobField(ctx context.Context, id, column, value string) error {
	q := c.q(`UPDATE jobs SET ` + column + ` = ?, updated_at = ? WHERE id = ?`)
	res, err := c.db.ExecContext(ctx, q, value, c.nowMillis(), id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (c *DatabaseClient) jobStage(ctx context.Context, id string) (models.Stage, error) {
	var stage string
	err := c.db.QueryRowContext(ctx, c.q(`SELECT stage FROM jobs WHERE id = ?`), id).Scan(&stage)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("job %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return models.Stage(stage), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		j                    models.Job
		mode, stage, tstate  string
		profile              string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&j.ID, &j.OwnerID, &j.FileName, &j.ContentType, &mode, &profile, &stage, &tstate,
		&j.ChainID, &j.ArtifactKey, &j.Error, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(profile), &j.Profile); err != nil {
		return nil, fmt.Errorf("decode profile for job %s: %w", j.ID, err)
	}
	j.Mode = models.Mode(mode)
	j.Stage = models.Stage(stage)
	j.TransformState = models.TransformState(tstate)
	j.CreatedAt = fromMillis(createdAt)
	j.UpdatedAt = fromMillis(updatedAt)
	return &j, nil
}

var _ core.JobStore = (*DatabaseClient)(nil)
