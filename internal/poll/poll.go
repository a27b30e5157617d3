// Package poll provides fixed-interval condition polling with optional
// deadline, used for container status, collection load state and compaction
// waits.
package poll

import (
	"context"
	"fmt"
	"time"
)

// ErrTimeout is wrapped into the error returned when a bounded wait expires.
var ErrTimeout = fmt.Errorf("poll: condition not met before deadline")

// Until invokes fn every interval until it reports done, fails, or the
// context is cancelled. A zero timeout means no deadline, matching the
// observed unbounded recovery waits.
func Until(ctx context.Context, interval, timeout time.Duration, fn func(ctx context.Context) (done bool, err error)) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			if timeout > 0 && ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("%w (after %s)", ErrTimeout, timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
