package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/models"
)

// Create starts a progress record. A terminal record under the same id is
// replaced; a live one is not.
func (c *DatabaseClient) Create(ctx context.Context, jobID string, totalUnits int) error {
	if jobID == "" {
		return core.Invalid("job_id", "must not be empty")
	}
	if totalUnits < 0 {
		return core.Invalid("total_units", "must not be negative, got %d", totalUnits)
	}

	return c.withTx(ctx, func(tx *sql.Tx) error {
		var (
			completed bool
			errMsg    sql.NullString
		)
		err := tx.QueryRowContext(ctx, c.q(`SELECT completed, error FROM progress WHERE job_id = ?`), jobID).
			Scan(&completed, &errMsg)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read progress: %w", err)
		case !completed && !errMsg.Valid:
			return fmt.Errorf("progress %s: %w", jobID, core.ErrAlreadyExists)
		default:
			if _, err := tx.ExecContext(ctx, c.q(`DELETE FROM progress_units WHERE job_id = ?`), jobID); err != nil {
				return fmt.Errorf("clear progress units: %w", err)
			}
			if _, err := tx.ExecContext(ctx, c.q(`DELETE FROM progress WHERE job_id = ?`), jobID); err != nil {
				return fmt.Errorf("clear progress: %w", err)
			}
		}

		now := c.nowMillis()
		_, err = tx.ExecContext(ctx, c.q(`
			INSERT INTO progress (job_id, total_units, processed_units, completed, error, created_at, updated_at)
			VALUES (?, ?, 0, ?, NULL, ?, ?)
		`), jobID, totalUnits, totalUnits == 0, now, now)
		if err != nil {
			return fmt.Errorf("insert progress: %w", err)
		}
		return nil
	})
}

func (c *DatabaseClient) RecordUnitResult(ctx context.Context, jobID string, unitIndex int, content string) error {
	return c.recordUnit(ctx, jobID, unitIndex, content, sql.NullString{})
}

func (c *DatabaseClient) RecordUnitFailure(ctx context.Context, jobID string, unitIndex int, content, msg string) error {
	return c.recordUnit(ctx, jobID, unitIndex, content, sql.NullString{String: msg, Valid: msg != ""})
}

// recordUnit locks the progress row with an UPDATE before touching the unit,
// so concurrent writers for one job are serialised on that row and the
// processed counter is compared against the total under the lock.
func (c *DatabaseClient) recordUnit(ctx context.Context, jobID string, unitIndex int, content string, failure sql.NullString) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			c.q(`UPDATE progress SET updated_at = ? WHERE job_id = ? AND error IS NULL`),
			c.nowMillis(), jobID)
		if err != nil {
			return fmt.Errorf("lock progress: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var one int
			err := tx.QueryRowContext(ctx, c.q(`SELECT 1 FROM progress WHERE job_id = ?`), jobID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("progress %s: %w", jobID, core.ErrNotFound)
			}
			// errored record: late results are dropped
			return err
		}

		var total int
		if err := tx.QueryRowContext(ctx, c.q(`SELECT total_units FROM progress WHERE job_id = ?`), jobID).Scan(&total); err != nil {
			return fmt.Errorf("read total: %w", err)
		}
		if unitIndex < 0 || unitIndex >= total {
			return core.Invalid("unit_index", "%d out of range [0, %d)", unitIndex, total)
		}

		res, err = tx.ExecContext(ctx, c.q(`
			INSERT INTO progress_units (job_id, unit_index, content, failure)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (job_id, unit_index) DO NOTHING
		`), jobID, unitIndex, content, failure)
		if err != nil {
			return fmt.Errorf("insert unit: %w", err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			_, err = tx.ExecContext(ctx, c.q(`
				UPDATE progress_units SET content = ?, failure = ?
				WHERE job_id = ? AND unit_index = ?
			`), content, failure, jobID, unitIndex)
			if err != nil {
				return fmt.Errorf("update unit: %w", err)
			}
			return nil
		}

		_, err = tx.ExecContext(ctx, c.q(`
			UPDATE progress
			SET processed_units = processed_units + 1,
			    completed = CASE WHEN processed_units + 1 >= total_units THEN TRUE ELSE FALSE END
			WHERE job_id = ?
		`), jobID)
		if err != nil {
			return fmt.Errorf("increment progress: %w", err)
		}
		return nil
	})
}

// SetError marks the record terminal. Setting it twice keeps the first message.
func (c *DatabaseClient) SetError(ctx context.Context, jobID string, message string) error {
	res, err := c.db.ExecContext(ctx, c.q(`
		UPDATE progress SET error = ?, completed = FALSE, updated_at = ?
		WHERE job_id = ? AND error IS NULL
	`), message, c.nowMillis(), jobID)
	if err != nil {
		return fmt.Errorf("set progress error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var one int
	err = c.db.QueryRowContext(ctx, c.q(`SELECT 1 FROM progress WHERE job_id = ?`), jobID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("progress %s: %w", jobID, core.ErrNotFound)
	}
	return err
}

func (c *DatabaseClient) Get(ctx context.Context, jobID string) (*models.ProgressRecord, error) {
	var (
		rec                  models.ProgressRecord
		errMsg               sql.NullString
		createdAt, updatedAt int64
	)
	err := c.db.QueryRowContext(ctx, c.q(`
		SELECT job_id, total_units, processed_units, completed, error, created_at, updated_at
		FROM progress WHERE job_id = ?
	`), jobID).Scan(&rec.JobID, &rec.TotalUnits, &rec.ProcessedUnits, &rec.Completed, &errMsg, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("progress %s: %w", jobID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	if errMsg.Valid {
		msg := errMsg.String
		rec.Error = &msg
	}
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)

	rows, err := c.db.QueryContext(ctx, c.q(`
		SELECT unit_index, content, failure FROM progress_units
		WHERE job_id = ? ORDER BY unit_index
	`), jobID)
	if err != nil {
		return nil, fmt.Errorf("read progress units: %w", err)
	}
	defer rows.Close()

	rec.PartialResults = map[int]string{}
	for rows.Next() {
		var (
			idx     int
			content string
			failure sql.NullString
		)
		if err := rows.Scan(&idx, &content, &failure); err != nil {
			return nil, err
		}
		rec.PartialResults[idx] = content
		if failure.Valid {
			rec.Errors = append(rec.Errors, failure.String)
		}
	}
	return &rec, rows.Err()
}

// PurgeProgress removes terminal records last updated before cutoff.
func (c *DatabaseClient) PurgeProgress(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		const stale = `SELECT job_id FROM progress WHERE (completed OR error IS NOT NULL) AND updated_at < ?`
		if _, err := tx.ExecContext(ctx, c.q(`DELETE FROM progress_units WHERE job_id IN (`+stale+`)`), cutoff.UnixMilli()); err != nil {
			return fmt.Errorf("purge progress units: %w", err)
		}
		res, err := tx.ExecContext(ctx, c.q(`DELETE FROM progress WHERE (completed OR error IS NOT NULL) AND updated_at < ?`), cutoff.UnixMilli())
		if err != nil {
			return fmt.Errorf("purge progress: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

var (
	_ core.ProgressTracker = (*DatabaseClient)(nil)
	_ core.ProgressPurger   = (*DatabaseClient)(nil)
)
