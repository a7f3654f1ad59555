// Package retry runs calls to external collaborators under a fixed timeout
// and a bounded number of attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/markdave123-py/Simplifai/internal/core"
)

// Policy tunes how an operation is retried.
//
// Attempts:   total tries including the first (2 means one retry).
// Backoff:    wait before the second attempt.
// Multiplier: growth factor for later waits; values below 1 keep the wait fixed.
// Timeout:    per-attempt deadline; exceeding it counts as a transient failure.
// RetryIf:    decides whether a failure is worth another attempt.
type Policy struct {
	Attempts   int
	Backoff    time.Duration
	Multiplier float64
	Timeout    time.Duration
	RetryIf    func(error) bool
}

// OneShot is the policy for model and retrieval calls: one retry after a fixed wait.
func OneShot(backoff, timeout time.Duration) Policy {
	return Policy{Attempts: 2, Backoff: backoff, Timeout: timeout, RetryIf: Retryable}
}

// Exponential retries retryable errors up to attempts times with a doubling wait.
func Exponential(attempts int, backoff time.Duration) Policy {
	return Policy{Attempts: attempts, Backoff: backoff, Multiplier: 2, RetryIf: Retryable}
}

// Retryable reports whether err may succeed on another attempt.
// Permanent failures, rejected input and caller cancellation are not retried.
func Retryable(err error) bool {
	if err == nil || core.IsPermanent(err) || core.IsValidation(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Do runs op until it succeeds, the policy is exhausted, or ctx is done.
// The last error is returned, annotated with the attempt count.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	made := 0
	err := backoff.Retry(func() error {
		made++
		err := runOnce(ctx, p.Timeout, op)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || (p.RetryIf != nil && !p.RetryIf(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(p.backOff(), ctx))
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if made > 1 {
		return fmt.Errorf("after %d attempts: %w", made, err)
	}
	return err
}

// backOff turns the policy into a schedule of at most Attempts-1 waits.
func (p Policy) backOff() backoff.BackOff {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Backoff)
	if p.Multiplier > 1 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.Backoff
		exp.Multiplier = p.Multiplier
		exp.RandomizationFactor = 0
		exp.MaxElapsedTime = 0
		if exp.MaxInterval < p.Backoff {
			exp.MaxInterval = p.Backoff
		}
		exp.Reset()
		b = exp
	}
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

func runOnce(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := op(callCtx)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return core.Transient(fmt.Errorf("call timed out after %s: %w", timeout, err))
	}
	return err
}
