package redlock

import (
	"context"
	"sync"
	"time"
)

// Signal is a cooperative-cancellation handle: Using never kills or
// interrupts the user routine, it only flips Aborted and records Err once
// the background renewal has given up, leaving the routine to consult the
// signal at its own convenience.
type Signal struct {
	mu      sync.Mutex
	aborted bool
	err     error
}

// Aborted reports whether the background renewal has stopped holding the
// lock on the caller's behalf.
func (s *Signal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Err returns the error that caused Aborted to become true, or nil.
func (s *Signal) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Signal) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	s.err = err
}

// Using acquires a lock, runs routine concurrently with a background
// renewal task, and guarantees release on every exit path. The generic
// result type follows go-warp's core.Warp[T] and core.LeaseManager[T]
// convention of parameterizing the orchestrator over the caller's payload
// type rather than returning interface{}.
func Using[T any](ctx context.Context, c *Client, keys []string, ttl time.Duration, routine func(context.Context, *Signal) (T, error), opts ...UsingOption) (T, error) {
	var zero T

	handle, err := c.Acquire(ctx, keys, ttl, opts...)
	if err != nil {
		return zero, err
	}
	settings := c.settings.withOverrides(opts)

	signal := &Signal{}
	renewCtx, cancelRenew := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go runRenewal(renewCtx, handle, settings, signal, renewDone)

	result, routineErr := routine(ctx, signal)

	cancelRenew()
	<-renewDone

	releaseErr := handle.Release(context.Background())
	if routineErr != nil {
		// Release errors are swallowed here: the routine's own error is
		// the one the caller needs to see.
		return result, routineErr
	}
	if releaseErr != nil {
		return result, releaseErr
	}
	return result, nil
}

// runRenewal keeps extending h in the background, scheduling each renewal
// to fire once the handle's remaining validity drops to the configured
// auto-extend threshold. It stops either when ctx is cancelled (the routine
// has returned and Using is about to release) or on the first extend
// failure, which it reports through signal.
func runRenewal(ctx context.Context, h *Handle, settings Settings, signal *Signal, done chan<- struct{}) {
	defer close(done)
	for {
		wait := h.Remaining() - settings.autoExtendThreshold
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := h.Extend(ctx, h.currentTTL()); err != nil {
			signal.abort(err)
			return
		}
	}
}
