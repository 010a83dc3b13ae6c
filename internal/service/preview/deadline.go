package preview

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// withDeadline runs fn under its own timeout derived from ctx.
// Expiry is reported as errUpstreamUnreachable so callers treat it like any
// other recoverable upstream failure.
func withDeadline(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(callCtx)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: deadline of %s exceeded", errUpstreamUnreachable, d)
	}

	return err
}
