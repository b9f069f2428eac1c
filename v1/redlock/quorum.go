package redlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// fanOut dispatches call against every configured server concurrently and
// waits for all N responses before returning — no early exit on the first
// quorum-worth of votes, so a straggling server still counts toward the
// elapsed time the caller measures afterward. negativeVoteErr is recorded
// against any server that replies without error but declines the
// operation, letting each caller choose a diagnostic that fits what a
// falsy reply actually means for that script.
//
// golang.org/x/sync/errgroup is declared in the reference implementation's
// go.mod but never imported by any of its packages; this is the use this
// module gives it. Every goroutine launched here always returns a nil
// error, so g.Wait() never cancels the group's context early — the
// propagated ctx is used purely for per-call deadline/cancellation, not for
// errgroup's own fail-fast behavior.
func (c *Client) fanOut(ctx context.Context, negativeVoteErr error, call func(context.Context, server) (bool, error)) ([]string, map[string]error) {
	votesFor := make([]string, 0, len(c.servers))
	votesAgainst := make(map[string]error, len(c.servers))
	var mu sync.Mutex

	var g errgroup.Group
	for _, s := range c.servers {
		s := s
		g.Go(func() error {
			ok, err := call(ctx, s)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				votesAgainst[s.id] = err
			case ok:
				votesFor = append(votesFor, s.id)
			default:
				votesAgainst[s.id] = negativeVoteErr
			}
			return nil
		})
	}
	_ = g.Wait()
	return votesFor, votesAgainst
}

func (c *Client) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if !c.settings.tracingEnabled || c.settings.tracer == nil {
		return ctx, nil
	}
	return c.settings.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("redlock.membership_size", len(c.servers)),
		attribute.Int("redlock.quorum_size", c.quorum),
	))
}

func endSpan(span trace.Span, rec AttemptRecord, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("redlock.votes_for", len(rec.VotesFor)),
		attribute.Int("redlock.votes_against", len(rec.VotesAgainst)),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// errQuorumNotMet signals the Retry Loop that this attempt produced a full
// AttemptRecord but did not reach quorum (or computed non-positive
// validity), so another attempt should be scheduled rather than the
// operation failing outright.
var errQuorumNotMet = newSentinel("redlock: quorum not met")

type sentinelError string

func newSentinel(msg string) error { return sentinelError(msg) }
func (e sentinelError) Error() string { return string(e) }

// acquireAttempt performs one full ACQUIRE fan-out-and-tally cycle: dispatch
// to every server, wait for all replies, and decide whether a quorum of
// them claimed the keys with enough validity left once elapsed time and
// clock drift are subtracted. On success it returns a ready Handle; on
// failure it issues a best-effort rollback RELEASE and returns
// errQuorumNotMet alongside the AttemptRecord for the caller to accumulate
// across retries.
func (c *Client) acquireAttempt(ctx context.Context, keys []string, ttl time.Duration, settings Settings) (*Handle, AttemptRecord, error) {
	ctx, span := c.startSpan(ctx, "Redlock.Acquire")
	token := uuid.NewString()
	start := time.Now()

	votesFor, votesAgainst := c.fanOut(ctx, ErrResourceLocked, func(ctx context.Context, s server) (bool, error) {
		return acquireOnServer(ctx, s, keys, token, ttl.Milliseconds())
	})
	elapsed := time.Since(start)
	drift := settings.driftFor(ttl)
	validity := ttl - elapsed - drift

	rec := AttemptRecord{
		Op: "acquire", MembershipSize: len(c.servers), QuorumSize: c.quorum,
		VotesFor: votesFor, VotesAgainst: votesAgainst, Elapsed: elapsed, Validity: validity,
	}
	settings.metrics.observeAttempt("acquire", rec, elapsed.Seconds())

	if len(votesFor) >= c.quorum && validity > 0 {
		settings.metrics.countResult("acquire", resultSuccess)
		endSpan(span, rec, nil)
		return &Handle{
			client:     c,
			keys:       keys,
			token:      token,
			ttl:        ttl,
			expiration: start.Add(validity),
		}, rec, nil
	}

	settings.metrics.countResult("acquire", resultQuorumFailed)
	endSpan(span, rec, errQuorumNotMet)
	c.bestEffortRelease(keys, token)
	return nil, rec, errQuorumNotMet
}

// extendAttempt performs one EXTEND fan-out-and-tally cycle. The token is
// never rotated: only the expiration advances on success, and extension can
// only move it forward, never back. No rollback is issued on failure — the
// prior expiration, if any, still stands on the servers that voted for it.
func (c *Client) extendAttempt(ctx context.Context, h *Handle, ttl time.Duration, settings Settings) (time.Time, AttemptRecord, error) {
	ctx, span := c.startSpan(ctx, "Redlock.Extend")
	start := time.Now()

	votesFor, votesAgainst := c.fanOut(ctx, ErrNotHeld, func(ctx context.Context, s server) (bool, error) {
		return extendOnServer(ctx, s, h.keys, h.token, ttl.Milliseconds())
	})
	elapsed := time.Since(start)
	drift := settings.driftFor(ttl)
	validity := ttl - elapsed - drift

	rec := AttemptRecord{
		Op: "extend", MembershipSize: len(c.servers), QuorumSize: c.quorum,
		VotesFor: votesFor, VotesAgainst: votesAgainst, Elapsed: elapsed, Validity: validity,
	}
	settings.metrics.observeAttempt("extend", rec, elapsed.Seconds())

	newExpiration := start.Add(validity)
	if len(votesFor) >= c.quorum && validity > 0 && newExpiration.After(h.expiration) {
		settings.metrics.countResult("extend", resultSuccess)
		endSpan(span, rec, nil)
		return newExpiration, rec, nil
	}
	settings.metrics.countResult("extend", resultQuorumFailed)
	endSpan(span, rec, errQuorumNotMet)
	return time.Time{}, rec, errQuorumNotMet
}

// releaseAttempt dispatches RELEASE to every server exactly once. It is
// best-effort and does not require quorum: success is reported if at least
// one server acknowledged the delete. releaseAttempt never retries; only
// acquire and extend go through the retry loop.
func (c *Client) releaseAttempt(ctx context.Context, keys []string, token string, settings Settings) AttemptRecord {
	ctx, span := c.startSpan(ctx, "Redlock.Release")
	start := time.Now()

	votesFor, votesAgainst := c.fanOut(ctx, ErrNotHeld, func(ctx context.Context, s server) (bool, error) {
		return releaseOnServer(ctx, s, keys, token)
	})
	elapsed := time.Since(start)

	rec := AttemptRecord{
		Op: "release", MembershipSize: len(c.servers), QuorumSize: c.quorum,
		VotesFor: votesFor, VotesAgainst: votesAgainst, Elapsed: elapsed,
	}
	settings.metrics.observeAttempt("release", rec, elapsed.Seconds())
	if len(votesFor) > 0 {
		settings.metrics.countResult("release", resultSuccess)
	} else {
		settings.metrics.countResult("release", resultError)
	}
	endSpan(span, rec, nil)
	return rec
}

// bestEffortRelease cleans up a failed ACQUIRE by releasing whatever subset
// of servers did claim the keys. It is fire-and-forget: its own failures
// are never retried or surfaced, and it runs against a fresh background
// context with its own timeout so a caller-cancelled ctx doesn't suppress
// the rollback.
func (c *Client) bestEffortRelease(keys []string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.fanOut(ctx, ErrNotHeld, func(ctx context.Context, s server) (bool, error) {
		return releaseOnServer(ctx, s, keys, token)
	})
}
