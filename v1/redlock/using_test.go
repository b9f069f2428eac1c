package redlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestUsing_MutualExclusion(t *testing.T) {
	c := newTestClient(t, 1, WithRetryDelay(20*time.Millisecond), WithRetryJitter(0))
	ctx := context.Background()

	var mu sync.Mutex
	locked := false
	var observedOverlap bool

	run := func() {
		_, err := Using(ctx, c, []string{"{r}y"}, 500*time.Millisecond, func(ctx context.Context, s *Signal) (struct{}, error) {
			mu.Lock()
			if locked {
				observedOverlap = true
			}
			locked = true
			mu.Unlock()

			time.Sleep(150 * time.Millisecond)

			mu.Lock()
			locked = false
			mu.Unlock()
			return struct{}{}, nil
		}, UsingAutoExtendThreshold(200*time.Millisecond))
		if err != nil {
			t.Errorf("Using: %v", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); run() }()
	go func() { defer wg.Done(); run() }()
	wg.Wait()

	if observedOverlap {
		t.Fatal("two Using invocations observed the locked flag true simultaneously")
	}
}

func TestUsing_AutoExtension(t *testing.T) {
	c := newTestClient(t, 1)
	ctx := context.Background()

	result, err := Using(ctx, c, []string{"{r}z"}, 500*time.Millisecond, func(ctx context.Context, s *Signal) (string, error) {
		time.Sleep(700 * time.Millisecond)
		if s.Aborted() {
			return "", errors.New("unexpectedly aborted")
		}
		return "done", nil
	}, UsingAutoExtendThreshold(200*time.Millisecond))

	if err != nil {
		t.Fatalf("Using: %v", err)
	}
	if result != "done" {
		t.Fatalf("expected routine result %q, got %q", "done", result)
	}
}

func TestUsing_PropagatesRoutineError(t *testing.T) {
	c := newTestClient(t, 1)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := Using(ctx, c, []string{"{r}w"}, time.Second, func(ctx context.Context, s *Signal) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected routine error to propagate, got %v", err)
	}
}

func TestUsing_KeyEmptyAfterRoutineReturns(t *testing.T) {
	c := newTestClient(t, 1)
	ctx := context.Background()

	_, err := Using(ctx, c, []string{"{r}v"}, time.Second, func(ctx context.Context, s *Signal) (struct{}, error) {
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Using: %v", err)
	}

	h, err := c.Acquire(ctx, []string{"{r}v"}, time.Second)
	if err != nil {
		t.Fatalf("expected key to be free after Using returns: %v", err)
	}
	_ = h.Release(ctx)
}
