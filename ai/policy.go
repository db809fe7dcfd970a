package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/poiesic/ragsync/core"
)

// retryDelay is the pause before the single retry of a failed external call.
var retryDelay = 200 * time.Millisecond

// WithTimeout derives a context bounded by d. A zero d leaves ctx unbounded.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// RetryOnce runs op and, if it fails with anything but cancellation, runs it
// one more time. The final error is wrapped with core.ErrTransientExternal.
func RetryOnce(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := RetryOnceWithData(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Permanent marks err so that RetryOnce returns it without a second attempt.
func Permanent(err error) error {
	return retry.Unrecoverable(err)
}

// RetryOnceWithData is RetryOnce for operations returning a value.
func RetryOnceWithData[T any](ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	value, err := retry.DoWithData(
		func() (T, error) {
			return op(ctx)
		},
		retry.Attempts(2),
		retry.Delay(retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("external call failed, retrying", "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", core.ErrTransientExternal, err)
	}
	return value, nil
}
