package redlock

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Client coordinates a quorum of independent Redis-compatible servers: it
// owns the configured server list and the resolved Settings, and every lock
// operation fans out across all of its servers before tallying votes.
// Modeled on go-warp's core.Warp[T] in shape (a single orchestrator type
// holding read-only configuration and exposing the operations, rather than
// a family of cooperating structs).
type Client struct {
	servers  []server
	quorum   int
	settings Settings
}

// New constructs a Client over the given set of independent Redis-compatible
// endpoints. Each endpoint is any redis.Cmdable — a *redis.Client in
// production, or one pointed at a miniredis instance in tests.
func New(endpoints []redis.Cmdable, opts ...Option) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, invalidArgument("at least one server is required")
	}
	settings := defaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	servers := make([]server, len(endpoints))
	for i, e := range endpoints {
		if e == nil {
			return nil, invalidArgument("server endpoint must not be nil")
		}
		servers[i] = server{id: fmt.Sprintf("server-%d", i), client: e}
	}
	return &Client{
		servers:  servers,
		quorum:   len(servers)/2 + 1,
		settings: settings,
	}, nil
}

// N returns the configured server count.
func (c *Client) N() int { return len(c.servers) }

// Quorum returns floor(N/2)+1, the number of votes required for a
// successful acquire or extend.
func (c *Client) Quorum() int { return c.quorum }

// Acquire attempts to claim keys for ttl, retrying with randomized backoff
// until quorum is reached or the configured attempt budget is exhausted. A
// non-positive ttl or an empty key set is rejected with an InvalidArgument
// error before any network I/O.
func (c *Client) Acquire(ctx context.Context, keys []string, ttl time.Duration, opts ...AcquireOption) (*Handle, error) {
	deduped, err := validateKeys(keys)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, invalidArgument("ttl must be positive")
	}
	settings := c.settings.withOverrides(opts)
	return c.retryAcquire(ctx, deduped, ttl, settings)
}

func validateKeys(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, invalidArgument("keys must not be empty")
	}
	seen := make(map[string]struct{}, len(keys))
	deduped := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			return nil, invalidArgument("key must not be empty")
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		deduped = append(deduped, k)
	}
	return deduped, nil
}
