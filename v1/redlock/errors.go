package redlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Sentinel errors. Use errors.Is against these; wrapped errors carry the
// underlying driver error for diagnostics.
var (
	// ErrInvalidArgument is wrapped by every argument-validation failure
	// (empty key set or empty key, non-positive TTL, operations on a
	// released handle). Duplicate keys are not an error: they are
	// deduplicated. It is always returned before any network I/O.
	ErrInvalidArgument = errors.New("redlock: invalid argument")

	// ErrResourceLocked marks a per-server vote against ACQUIRE because the
	// key was already held under a different token. It is recorded in an
	// AttemptRecord's VotesAgainst map, not returned to the caller directly.
	ErrResourceLocked = errors.New("redlock: resource locked by another holder")

	// ErrNotHeld marks a per-server vote against EXTEND or RELEASE because
	// the stored value no longer matches the caller's token. Unlike
	// ErrResourceLocked this doesn't imply another holder is actively
	// contending for the key — most often the key has simply expired.
	ErrNotHeld = errors.New("redlock: key not held under this token")

	// ErrTimeout and ErrConnectionClosed classify transport failures
	// surfaced by the underlying Redis driver.
	ErrTimeout          = errors.New("redlock: timeout")
	ErrConnectionClosed = errors.New("redlock: connection closed")
	// ErrTransport is the catch-all for driver errors that are neither a
	// timeout nor a closed connection.
	ErrTransport = errors.New("redlock: transport error")

	// ErrHandleReleased is returned by Extend/Release on a handle that has
	// already transitioned to its terminal released state.
	ErrHandleReleased = fmt.Errorf("%w: handle already released", ErrInvalidArgument)

	// ErrLockLost is returned when a quorum-requiring operation (acquire,
	// extend) fails to reach quorum or computes non-positive validity on
	// its final attempt, after the Retry Loop has been exhausted. It is
	// always wrapped inside an *ExecutionError.
	ErrLockLost = errors.New("redlock: lock lost")
)

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

// translateTransportError maps a driver-level error into one of the typed
// transport sentinels so callers can use errors.Is regardless of which
// Redis client implementation sits behind the server endpoint.
func translateTransportError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, redis.ErrClosed):
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	case strings.Contains(err.Error(), "NOAUTH"), strings.Contains(err.Error(), "READONLY"):
		return fmt.Errorf("%w: %v", ErrTransport, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}

// AttemptRecord captures the outcome of one full fan-out-and-tally cycle
// across all configured servers. One is produced per Retry Loop iteration
// and retained for diagnostics whether the operation ultimately succeeds or
// not (see Handle.Attempts and ExecutionError.Attempts).
type AttemptRecord struct {
	Op             string
	MembershipSize int
	QuorumSize     int
	VotesFor       []string
	VotesAgainst   map[string]error
	Elapsed        time.Duration
	Validity       time.Duration
}

// ExecutionError is raised by the Retry Loop once it has exhausted its
// attempt budget. It carries the full ordered history of attempts so a
// caller can tell a transient quorum miss from a uniformly unreachable
// server set.
type ExecutionError struct {
	Op       string
	Attempts []AttemptRecord
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("redlock: %s failed after %d attempt(s)", e.Op, len(e.Attempts))
}

func (e *ExecutionError) Unwrap() error {
	return ErrLockLost
}
