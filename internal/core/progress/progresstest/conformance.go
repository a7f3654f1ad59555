// Package progresstest holds behaviour tests shared by every ProgressTracker.
package progresstest

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Simplifai/internal/core"
)

// Run exercises tracker semantics against trackers built by newTracker.
func Run(t *testing.T, newTracker func(t *testing.T) core.ProgressTracker) {
	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)

		require.NoError(t, tr.Create(ctx, "job-a", 3))
		rec, err := tr.Get(ctx, "job-a")
		require.NoError(t, err)
		assert.Equal(t, 3, rec.TotalUnits)
		assert.Zero(t, rec.ProcessedUnits)
		assert.False(t, rec.Completed)
		assert.Nil(t, rec.Error)

		_, err = tr.Get(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("create rejects live duplicate", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)

		require.NoError(t, tr.Create(ctx, "job-b", 2))
		assert.ErrorIs(t, tr.Create(ctx, "job-b", 2), core.ErrAlreadyExists)

		require.NoError(t, tr.SetError(ctx, "job-b", "boom"))
		require.NoError(t, tr.Create(ctx, "job-b", 5), "terminal record may be replaced")
		rec, err := tr.Get(ctx, "job-b")
		require.NoError(t, err)
		assert.Equal(t, 5, rec.TotalUnits)
		assert.Nil(t, rec.Error)
	})

	t.Run("record is idempotent per index", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)
		require.NoError(t, tr.Create(ctx, "job-c", 2))

		require.NoError(t, tr.RecordUnitResult(ctx, "job-c", 0, "first"))
		require.NoError(t, tr.RecordUnitResult(ctx, "job-c", 0, "second"))
		rec, err := tr.Get(ctx, "job-c")
		require.NoError(t, err)
		assert.Equal(t, 1, rec.ProcessedUnits)
		assert.False(t, rec.Completed)
		assert.Equal(t, "second", rec.PartialResults[0])

		require.NoError(t, tr.RecordUnitFailure(ctx, "job-c", 1, "original", "chunk 1: model failed"))
		rec, err = tr.Get(ctx, "job-c")
		require.NoError(t, err)
		assert.Equal(t, 2, rec.ProcessedUnits)
		assert.True(t, rec.Completed)
		assert.Nil(t, rec.Error)
		assert.Equal(t, []string{"chunk 1: model failed"}, rec.Errors)
		assert.Equal(t, "original", rec.PartialResults[1])
	})

	t.Run("record rejects out of range index", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)
		require.NoError(t, tr.Create(ctx, "job-d", 1))

		assert.True(t, core.IsValidation(tr.RecordUnitResult(ctx, "job-d", 1, "x")))
		assert.True(t, core.IsValidation(tr.RecordUnitResult(ctx, "job-d", -1, "x")))
		assert.ErrorIs(t, tr.RecordUnitResult(ctx, "nope", 0, "x"), core.ErrNotFound)
	})

	t.Run("error is terminal", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)
		require.NoError(t, tr.Create(ctx, "job-e", 2))
		require.NoError(t, tr.RecordUnitResult(ctx, "job-e", 0, "done"))

		require.NoError(t, tr.SetError(ctx, "job-e", "reduce failed"))
		require.NoError(t, tr.RecordUnitResult(ctx, "job-e", 1, "late"))
		require.NoError(t, tr.SetError(ctx, "job-e", "second error"))

		rec, err := tr.Get(ctx, "job-e")
		require.NoError(t, err)
		require.NotNil(t, rec.Error)
		assert.Equal(t, "reduce failed", *rec.Error)
		assert.False(t, rec.Completed)
		assert.Equal(t, 1, rec.ProcessedUnits)
		assert.NotContains(t, rec.PartialResults, 1)
	})

	t.Run("concurrent workers", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)
		const total = 40
		require.NoError(t, tr.Create(ctx, "job-f", total))

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				r := rand.New(rand.NewSource(int64(w)))
				for i := 0; i < total; i++ {
					time.Sleep(time.Duration(r.Intn(200)) * time.Microsecond)
					assert.NoError(t, tr.RecordUnitResult(ctx, "job-f", i, fmt.Sprintf("w%d-%d", w, i)))
				}
			}(w)
		}

		last := 0
		for done := false; !done; {
			rec, err := tr.Get(ctx, "job-f")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, rec.ProcessedUnits, last)
			assert.LessOrEqual(t, rec.ProcessedUnits, total)
			last = rec.ProcessedUnits
			done = rec.Completed
			time.Sleep(time.Millisecond)
		}
		wg.Wait()

		rec, err := tr.Get(ctx, "job-f")
		require.NoError(t, err)
		assert.Equal(t, total, rec.ProcessedUnits)
		assert.True(t, rec.Completed)
		assert.Len(t, rec.PartialResults, total)
	})

	t.Run("concurrent error never completes", func(t *testing.T) {
		ctx := context.Background()
		tr := newTracker(t)
		const total = 20
		require.NoError(t, tr.Create(ctx, "job-g", total))

		var wg sync.WaitGroup
		for i := 0; i < total; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if i == total/2 {
					assert.NoError(t, tr.SetError(ctx, "job-g", "fatal"))
					return
				}
				assert.NoError(t, tr.RecordUnitResult(ctx, "job-g", i, "ok"))
			}(i)
		}
		wg.Wait()

		rec, err := tr.Get(ctx, "job-g")
		require.NoError(t, err)
		assert.False(t, rec.Completed)
		require.NotNil(t, rec.Error)
		assert.Less(t, rec.ProcessedUnits, total)
	})
}
