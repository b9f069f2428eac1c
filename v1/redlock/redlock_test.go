package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

// newTestServers spins up n independent miniredis instances and returns a
// redis.Cmdable pointed at each, following v1/lock/redis_test.go's
// newRedisLocker(t) helper pattern generalized from one server to N.
func newTestServers(t *testing.T, n int) []redis.Cmdable {
	t.Helper()
	endpoints := make([]redis.Cmdable, n)
	for i := 0; i < n; i++ {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("miniredis run: %v", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() {
			_ = client.Close()
			mr.Close()
		})
		endpoints[i] = client
	}
	return endpoints
}

func newTestClient(t *testing.T, n int, opts ...Option) *Client {
	t.Helper()
	c, err := New(newTestServers(t, n), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestAcquireExtendRelease_SingleKey(t *testing.T) {
	c := newTestClient(t, 1)
	ctx := context.Background()

	h, err := c.Acquire(ctx, []string{"{r}a"}, 900*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if h.Remaining() <= 0 {
		t.Fatalf("expected positive remaining validity")
	}

	if err := h.Extend(ctx, 2700*time.Millisecond); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if h.Remaining() < 2*time.Second {
		t.Fatalf("expected remaining validity to reflect the extension, got %v", h.Remaining())
	}

	if err := h.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := h.Release(ctx); err != ErrHandleReleased {
		t.Fatalf("expected ErrHandleReleased on double release, got %v", err)
	}
}

func TestAcquire_MultiKey_SharesToken(t *testing.T) {
	c := newTestClient(t, 1)
	ctx := context.Background()

	h, err := c.Acquire(ctx, []string{"{r}a1", "{r}a2"}, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(h.Keys()) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(h.Keys()))
	}
	for _, k := range []string{"{r}a1", "{r}a2"} {
		v, err := c.servers[0].client.Get(ctx, k).Result()
		if err != nil {
			t.Fatalf("Get %s: %v", k, err)
		}
		if v != h.Token() {
			t.Fatalf("expected %s to hold the handle's token", k)
		}
	}
}

func TestAcquire_RejectsEmptyKeys(t *testing.T) {
	c := newTestClient(t, 1)
	if _, err := c.Acquire(context.Background(), nil, time.Second); err == nil {
		t.Fatal("expected error for empty key set")
	}
}

func TestAcquire_RejectsNonPositiveTTL(t *testing.T) {
	c := newTestClient(t, 1)
	if _, err := c.Acquire(context.Background(), []string{"{r}a"}, 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}

func TestAcquire_DedupesKeys(t *testing.T) {
	c := newTestClient(t, 1)
	h, err := c.Acquire(context.Background(), []string{"{r}a", "{r}a"}, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(h.Keys()) != 1 {
		t.Fatalf("expected deduped key set of size 1, got %d", len(h.Keys()))
	}
}

func TestAcquire_SecondCallerBlockedThenSucceedsAfterExpiry(t *testing.T) {
	c := newTestClient(t, 1, WithRetryCount(0))
	ctx := context.Background()

	h, err := c.Acquire(ctx, []string{"{r}y"}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	if _, err := c.Acquire(ctx, []string{"{r}y"}, 200*time.Millisecond); err == nil {
		t.Fatal("expected second acquire to fail while first lock is held")
	}

	time.Sleep(300 * time.Millisecond)

	h2, err := c.Acquire(ctx, []string{"{r}y"}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("third Acquire after expiry: %v", err)
	}
	if h2.Token() == h.Token() {
		t.Fatal("expected a fresh token after expiry")
	}
}

func TestAcquire_UnreachableServerExhaustsRetries(t *testing.T) {
	// A client pointed at a port nothing listens on surfaces a transport
	// error on every attempt.
	endpoint := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})
	c, err := New([]redis.Cmdable{endpoint}, WithRetryCount(2), WithRetryDelay(10*time.Millisecond), WithRetryJitter(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Acquire(context.Background(), []string{"{r}a"}, time.Second)
	if err == nil {
		t.Fatal("expected Execution error")
	}
	execErr, ok := err.(*ExecutionError)
	if !ok {
		t.Fatalf("expected *ExecutionError, got %T: %v", err, err)
	}
	if len(execErr.Attempts) != 3 {
		t.Fatalf("expected retryCount+1=3 attempts, got %d", len(execErr.Attempts))
	}
	for _, rec := range execErr.Attempts {
		if len(rec.VotesAgainst) != 1 {
			t.Fatalf("expected every server in votesAgainst, got %d", len(rec.VotesAgainst))
		}
	}
}

func TestQuorum_MajorityOfThreeSurvivesOneFailure(t *testing.T) {
	endpoints := newTestServers(t, 3)
	c, err := New(endpoints, WithRetryCount(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Quorum() != 2 {
		t.Fatalf("expected quorum 2 for N=3, got %d", c.Quorum())
	}

	// Simulate one unreachable server by replacing it with a client pointed
	// at a port nothing listens on.
	dead := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	c.servers[2].client = dead

	h, err := c.Acquire(context.Background(), []string{"{r}q"}, time.Second)
	if err != nil {
		t.Fatalf("expected acquire to survive a minority failure: %v", err)
	}
	if len(h.Attempts()) != 1 {
		t.Fatalf("expected a single successful attempt, got %d", len(h.Attempts()))
	}
}
