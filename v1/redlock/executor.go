package redlock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// server pairs an addressable Redis-compatible endpoint with a stable
// identifier used in vote tallies and diagnostics. Grounded on go-warp's
// v1/lock.Redis, which holds a single redis.Cmdable; here the Quorum Engine
// owns N of them.
type server struct {
	id     string
	client redis.Cmdable
}

// runScript executes one of the three package scripts against a single
// server and reduces the outcome to the three shapes the Quorum Engine
// cares about: the operation succeeded, the operation was refused by the
// server (another holder has the key, or the token no longer matches), or
// the call never reached a verdict because of a transport failure.
//
// script.Run already performs the EVALSHA-then-EVAL fallback on a NOSCRIPT
// reply, so this function never issues ScriptLoad itself.
func runScript(ctx context.Context, s server, script *redis.Script, keys []string, args ...interface{}) (bool, error) {
	reply, err := script.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, translateTransportError(err)
	}
	return isTruthy(reply), nil
}

func isTruthy(reply interface{}) bool {
	switch v := reply.(type) {
	case int64:
		return v != 0
	case string:
		return v != "" && v != "0"
	default:
		return reply != nil
	}
}

func acquireOnServer(ctx context.Context, s server, keys []string, token string, ttlMS int64) (bool, error) {
	return runScript(ctx, s, acquireScript, keys, token, ttlMS)
}

func extendOnServer(ctx context.Context, s server, keys []string, token string, ttlMS int64) (bool, error) {
	return runScript(ctx, s, extendScript, keys, token, ttlMS)
}

func releaseOnServer(ctx context.Context, s server, keys []string, token string) (bool, error) {
	return runScript(ctx, s, releaseScript, keys, token)
}
