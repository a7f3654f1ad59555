package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Simplifai/internal/core"
)

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), OneShot(time.Millisecond, time.Second), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return core.Transient(errors.New("busy"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnPermanentFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), OneShot(time.Millisecond, time.Second), func(ctx context.Context) error {
		calls++
		return core.Permanent(errors.New("bad request"))
	})
	require.Error(t, err)
	assert.True(t, core.IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.NotContains(t, err.Error(), "attempts")
}

func TestDoReportsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Exponential(3, time.Millisecond), func(ctx context.Context) error {
		calls++
		return errors.New("flaky")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDoTimeoutIsTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), OneShot(time.Millisecond, 5*time.Millisecond), func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
	assert.Equal(t, 2, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Exponential(5, time.Hour), func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicySchedule(t *testing.T) {
	exp := Exponential(4, 10*time.Millisecond).backOff()
	exp.Reset()
	assert.Equal(t, 10*time.Millisecond, exp.NextBackOff())
	assert.Equal(t, 20*time.Millisecond, exp.NextBackOff())
	assert.Equal(t, 40*time.Millisecond, exp.NextBackOff())
	assert.Equal(t, backoff.Stop, exp.NextBackOff())

	one := OneShot(5*time.Millisecond, time.Second).backOff()
	one.Reset()
	assert.Equal(t, 5*time.Millisecond, one.NextBackOff())
	assert.Equal(t, backoff.Stop, one.NextBackOff())
}

func TestDoStopsWhenFailureTurnsPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Exponential(5, time.Millisecond), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return core.Transient(errors.New("busy"))
		}
		return core.Invalid("input", "rejected")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, core.IsValidation(err))
	assert.Contains(t, err.Error(), "after 2 attempts")
}
