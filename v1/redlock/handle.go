package redlock

import (
	"context"
	"sync"
	"time"
)

// Handle is the value object returned by a successful Acquire. Its keys
// and token never change: Extend updates expiration, ttl and the attempt
// history in place, and Release marks it released — the token itself is
// never rotated. A Handle must not be used from two
// goroutines concurrently: expiration accounting would race even though the
// server-side token check remains safe.
type Handle struct {
	client *Client
	keys   []string
	token  string
	ttl    time.Duration

	mu         sync.Mutex
	expiration time.Time
	released   bool
	attempts   []AttemptRecord
}

// Keys returns the handle's resource keys in dispatch order.
func (h *Handle) Keys() []string { return append([]string(nil), h.keys...) }

// Token returns the random value stored under the handle's keys.
func (h *Handle) Token() string { return h.token }

// Expiration returns the absolute deadline before which the handle is
// considered valid; once time.Now() passes it the lock may no longer be
// held on any server.
func (h *Handle) Expiration() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.expiration
}

// Remaining returns the time left before Expiration, or zero if already
// passed.
func (h *Handle) Remaining() time.Duration {
	d := time.Until(h.Expiration())
	if d < 0 {
		return 0
	}
	return d
}

// currentTTL returns the ttl last successfully (re)established, consulted
// by the renewal scheduler so each extend requests the same duration the
// lock was acquired or last extended with.
func (h *Handle) currentTTL() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ttl
}

// Attempts returns the ordered attempt history accumulated across the
// Acquire call (and any subsequent Extend calls) that produced this
// handle's current state. Retained on a successful handle as well as on
// failure, so a caller can inspect how much retrying a healthy acquisition
// actually needed.
func (h *Handle) Attempts() []AttemptRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]AttemptRecord(nil), h.attempts...)
}

// Extend re-dispatches EXTEND for ttl, retrying with backoff until quorum
// is reached or the attempt budget is exhausted. On success the handle's
// expiration advances in place; prior references to this *Handle observe
// the update. Extend on an already released handle returns
// ErrHandleReleased without any network I/O.
func (h *Handle) Extend(ctx context.Context, ttl time.Duration, opts ...AcquireOption) error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return ErrHandleReleased
	}
	h.mu.Unlock()

	if ttl <= 0 {
		return invalidArgument("ttl must be positive")
	}
	settings := h.client.settings.withOverrides(opts)

	newExpiration, attempts, err := h.client.retryExtend(ctx, h, ttl, settings)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.expiration = newExpiration
	h.ttl = ttl
	h.attempts = append(h.attempts, attempts...)
	h.mu.Unlock()
	return nil
}

// Release dispatches RELEASE to every server and transitions the handle to
// its terminal released state. It is a one-shot, best-effort operation: it
// never retries, and it reports an error only when not a single server
// acknowledged the delete (the key may simply have already expired, which
// is not itself an error condition worth surfacing).
func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return ErrHandleReleased
	}
	h.released = true
	keys := append([]string(nil), h.keys...)
	token := h.token
	settings := h.client.settings
	h.mu.Unlock()

	rec := h.client.releaseAttempt(ctx, keys, token, settings)
	if len(rec.VotesFor) == 0 {
		return &ExecutionError{Op: "release", Attempts: []AttemptRecord{rec}}
	}
	return nil
}
