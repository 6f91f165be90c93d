// Package poll is the single wait-for-X primitive used by every phase. Each
// wait is a named predicate evaluated on a fixed interval against a hard
// deadline; exceeding the deadline is an error the orchestrator treats as
// fatal, never a silent "not ready".
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrTimeout marks a poll that exhausted its deadline. Callers can match it
// with errors.Is; the orchestrator aborts the run on any occurrence.
var ErrTimeout = errors.New("poll deadline exceeded")

// Check reports whether the awaited condition holds. Returning an error aborts
// the poll immediately; transient "not there yet" states must be reported as
// (false, nil) so polling continues.
type Check func(ctx context.Context) (bool, error)

// Until polls check every interval until it returns true, errors, or timeout
// elapses. The condition is evaluated immediately before the first sleep.
func Until(ctx context.Context, interval, timeout time.Duration, desc string, check Check) error {
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, wait.ConditionWithContextFunc(check))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s not satisfied after %s", ErrTimeout, desc, timeout)
	}
	return fmt.Errorf("waiting for %s: %w", desc, err)
}
