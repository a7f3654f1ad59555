package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Simplifai/internal/core"
	"github.com/markdave123-py/Simplifai/internal/core/progress/progresstest"
)

func TestMemoryTracker(t *testing.T) {
	progresstest.Run(t, func(t *testing.T) core.ProgressTracker { return NewMemory() })
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, "j", 1))
	require.NoError(t, m.RecordUnitResult(ctx, "j", 0, "text"))

	rec, err := m.Get(ctx, "j")
	require.NoError(t, err)
	rec.PartialResults[0] = "mutated"

	again, err := m.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, "text", again.PartialResults[0])
}

func TestMemoryZeroUnitsCompletesImmediately(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, "empty", 0))

	rec, err := m.Get(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, rec.Completed)
}

func TestMemoryPurge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	require.NoError(t, m.Create(ctx, "done", 1))
	require.NoError(t, m.RecordUnitResult(ctx, "done", 0, "x"))
	require.NoError(t, m.Create(ctx, "failed", 1))
	require.NoError(t, m.SetError(ctx, "failed", "boom"))
	require.NoError(t, m.Create(ctx, "running", 2))

	clock = clock.Add(48 * time.Hour)
	require.NoError(t, m.Create(ctx, "fresh", 1))
	require.NoError(t, m.RecordUnitResult(ctx, "fresh", 0, "x"))

	removed, err := m.PurgeProgress(ctx, clock.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = m.Get(ctx, "running")
	assert.NoError(t, err)
	_, err = m.Get(ctx, "fresh")
	assert.NoError(t, err)
	_, err = m.Get(ctx, "done")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
