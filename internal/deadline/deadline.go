// Package deadline bounds blocking network calls with a hard timeout.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// ErrTimeout reports that a bounded call did not finish before its deadline.
var ErrTimeout = errors.New("call timed out")

// Call runs fn and returns its result if it finishes within d. Otherwise it returns an
// error matching ErrTimeout. fn receives a context that is cancelled when the deadline
// passes; if fn ignores it, the call is abandoned and its eventual result dropped.
// A non-positive d disables the bound.
func Call[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	policy := timeout.Builder[T](d).Build()
	res, err := failsafe.NewExecutor[T](policy).
		WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[T]) (T, error) {
			return abandonable(exec.Context(), fn)
		})
	if err == nil {
		return res, nil
	}

	var zero T
	if errors.Is(err, timeout.ErrExceeded) {
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
	// The policy cancels the attempt context on expiry; depending on which side observes
	// it first the cancellation itself can surface instead of ErrExceeded.
	if ctx.Err() == nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
	}
	return zero, err
}

func abandonable[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
