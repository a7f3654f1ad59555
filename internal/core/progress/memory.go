// Package progress holds the process-local ProgressTracker used in tests and
// single-node development. Durable deployments use the SQL tracker in
// internal/core/database.
package progress

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/models"
)

type entry struct {
	rec      models.ProgressRecord
	unitOK   map[int]bool
	failures map[int]string
}

// Memory is a mutex-guarded ProgressTracker.
// Every mutation holds the lock across the increment and the completion check.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*entry
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*entry), now: time.Now}
}

func (m *Memory) Create(ctx context.Context, jobID string, totalUnits int) error {
	if jobID == "" {
		return core.Invalid("job_id", "must not be empty")
	}
	if totalUnits < 0 {
		return core.Invalid("total_units", "must not be negative, got %d", totalUnits)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.jobs[jobID]; ok && !e.rec.Terminal() {
		return fmt.Errorf("progress %s: %w", jobID, core.ErrAlreadyExists)
	}
	now := m.now()
	m.jobs[jobID] = &entry{
		rec: models.ProgressRecord{
			JobID:          jobID,
			TotalUnits:     totalUnits,
			Completed:      totalUnits == 0,
			PartialResults: map[int]string{},
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		unitOK:   map[int]bool{},
		failures: map[int]string{},
	}
	return nil
}

func (m *Memory) RecordUnitResult(ctx context.Context, jobID string, unitIndex int, content string) error {
	return m.record(jobID, unitIndex, content, "")
}

func (m *Memory) RecordUnitFailure(ctx context.Context, jobID string, unitIndex int, content, msg string) error {
	return m.record(jobID, unitIndex, content, msg)
}

func (m *Memory) record(jobID string, unitIndex int, content, failure string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("progress %s: %w", jobID, core.ErrNotFound)
	}
	if e.rec.Error != nil {
		return nil
	}
	if unitIndex < 0 || unitIndex >= e.rec.TotalUnits {
		return core.Invalid("unit_index", "%d out of range [0, %d)", unitIndex, e.rec.TotalUnits)
	}

	e.rec.PartialResults[unitIndex] = content
	if failure != "" {
		e.failures[unitIndex] = failure
	} else {
		delete(e.failures, unitIndex)
	}
	if !e.unitOK[unitIndex] {
		e.unitOK[unitIndex] = true
		e.rec.ProcessedUnits++
		if e.rec.ProcessedUnits == e.rec.TotalUnits {
			e.rec.Completed = true
		}
	}
	e.rec.UpdatedAt = m.now()
	return nil
}

// SetError marks the record terminal. Setting it twice keeps the first message.
func (m *Memory) SetError(ctx context.Context, jobID string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("progress %s: %w", jobID, core.ErrNotFound)
	}
	if e.rec.Error != nil {
		return nil
	}
	msg := message
	e.rec.Error = &msg
	e.rec.Completed = false
	e.rec.UpdatedAt = m.now()
	return nil
}

// Get returns a deep copy of the record.
func (m *Memory) Get(ctx context.Context, jobID string) (*models.ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("progress %s: %w", jobID, core.ErrNotFound)
	}
	rec := e.rec
	rec.PartialResults = make(map[int]string, len(e.rec.PartialResults))
	for k, v := range e.rec.PartialResults {
		rec.PartialResults[k] = v
	}
	rec.Errors = failureList(e.failures)
	if e.rec.Error != nil {
		msg := *e.rec.Error
		rec.Error = &msg
	}
	return &rec, nil
}

// failureList orders non-fatal errors by unit index.
func failureList(failures map[int]string) []string {
	if len(failures) == 0 {
		return nil
	}
	idx := make([]int, 0, len(failures))
	for i := range failures {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]string, len(idx))
	for n, i := range idx {
		out[n] = failures[i]
	}
	return out
}

// PurgeProgress drops terminal records last updated before cutoff.
func (m *Memory) PurgeProgress(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, e := range m.jobs {
		if e.rec.Terminal() && e.rec.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed, nil
}

var (
	_ core.ProgressTracker = (*Memory)(nil)
	_ core.ProgressPurger   = (*Memory)(nil)
)
