package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/markdave123-py/Simplifai/internal/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited grpc", fmt.Errorf("gen: %w", status.Error(codes.ResourceExhausted, "quota")), true},
		{"unavailable grpc", fmt.Errorf("gen: %w", status.Error(codes.Unavailable, "down")), true},
		{"invalid grpc", fmt.Errorf("gen: %w", status.Error(codes.InvalidArgument, "bad")), false},
		{"http 429", fmt.Errorf("gen: %w", &googleapi.Error{Code: http.StatusTooManyRequests}), true},
		{"http 400", fmt.Errorf("gen: %w", &googleapi.Error{Code: http.StatusBadRequest}), false},
		{"deadline", fmt.Errorf("gen: %w", context.DeadlineExceeded), true},
		{"unknown", fmt.Errorf("gen: %w", errors.New("boom")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.transient, core.IsTransient(got))
			assert.Equal(t, !tt.transient, core.IsPermanent(got))
		})
	}
}

func TestRateLimitedPassThrough(t *testing.T) {
	var calls atomic.Int32
	next := core.LLMFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		calls.Add(1)
		return "ok:" + prompt, nil
	})

	_, wrapped := NewRateLimited(next, 0, 1).(*RateLimited)
	assert.False(t, wrapped)

	limited := NewRateLimited(next, 1000, 2)
	for i := 0; i < 3; i++ {
		out, err := limited.Complete(context.Background(), "p", 10)
		require.NoError(t, err)
		assert.Equal(t, "ok:p", out)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimitedHonoursContext(t *testing.T) {
	next := core.LLMFunc(func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		return "", nil
	})
	limited := NewRateLimited(next, 0.001, 1)

	_, err := limited.Complete(context.Background(), "first", 10)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limited.Complete(ctx, "second", 10)
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
}
