package redlock

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// retryAcquire wraps acquireAttempt in a retry loop: it accumulates one
// AttemptRecord per iteration and raises *ExecutionError once attempts
// exceed settings.retryCount. Cancellation of ctx interrupts a pending
// inter-attempt sleep promptly rather than waiting out the full delay.
func (c *Client) retryAcquire(ctx context.Context, keys []string, ttl time.Duration, settings Settings) (*Handle, error) {
	var attempts []AttemptRecord
	for attempt := 0; ; attempt++ {
		handle, rec, err := c.acquireAttempt(ctx, keys, ttl, settings)
		attempts = append(attempts, rec)
		if err == nil {
			handle.attempts = attempts
			return handle, nil
		}
		if !errors.Is(err, errQuorumNotMet) {
			return nil, err
		}
		if attempt >= settings.retryCount {
			return nil, &ExecutionError{Op: "acquire", Attempts: attempts}
		}
		if sleepErr := sleepWithJitter(ctx, settings); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

// retryExtend is the Retry Loop wrapped around extendAttempt, returning the
// accumulated attempt history alongside the new expiration on success so
// the caller (Handle.Extend) can append it to the handle's own history.
func (c *Client) retryExtend(ctx context.Context, h *Handle, ttl time.Duration, settings Settings) (time.Time, []AttemptRecord, error) {
	var attempts []AttemptRecord
	for attempt := 0; ; attempt++ {
		expiration, rec, err := c.extendAttempt(ctx, h, ttl, settings)
		attempts = append(attempts, rec)
		if err == nil {
			return expiration, attempts, nil
		}
		if !errors.Is(err, errQuorumNotMet) {
			return time.Time{}, attempts, err
		}
		if attempt >= settings.retryCount {
			return time.Time{}, attempts, &ExecutionError{Op: "extend", Attempts: attempts}
		}
		if sleepErr := sleepWithJitter(ctx, settings); sleepErr != nil {
			return time.Time{}, attempts, sleepErr
		}
	}
}

// sleepWithJitter waits retryDelay + uniform(0, retryJitter), interruptible
// by ctx, following the cancellable-sleep idiom shambharkar/LockServer's
// lockclient.AcquireWithRetry uses: a fresh timer per call, select against
// both the timer and ctx.Done().
func sleepWithJitter(ctx context.Context, settings Settings) error {
	delay := settings.retryDelay
	if settings.retryJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(settings.retryJitter)))
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
