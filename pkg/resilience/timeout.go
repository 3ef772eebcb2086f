package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

// WithTimeout runs fn with a context cancelled after timeout. An expired
// budget is reported as both apperrors.ErrTimeout and
// context.DeadlineExceeded. fn keeps running in the background until it
// observes the cancellation, so it must honour ctx.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w: %w (limit: %v)", name, apperrors.ErrTimeout, context.DeadlineExceeded, timeout)
	}
}
