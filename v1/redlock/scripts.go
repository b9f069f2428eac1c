package redlock

import redis "github.com/redis/go-redis/v9"

// The three server-side atomic operations of the protocol. Each is kept as
// a stable Lua source string and wrapped in a *redis.Script, which computes
// the script's SHA1 digest once at package init and gives Run an EVALSHA
// fast path that transparently falls back to EVAL on a NOSCRIPT reply —
// the "cached-digest invocation, load-and-retry on miss" fallback is
// already implemented inside go-redis, so none of it is hand-rolled here.
//
// All three accept a variable-length KEYS array so a single lock can span
// multiple resource keys (they must all hash to the same slot on a
// clustered server; that is the caller's responsibility, not this
// package's).
var (
	// acquireScript sets every key to ARGV[1] with expiration ARGV[2]
	// (milliseconds), but only if none of the keys already exist. It
	// either claims all keys or touches none of them.
	acquireScript = redis.NewScript(`
for i = 1, #KEYS do
	if redis.call("exists", KEYS[i]) == 1 then
		return 0
	end
end
for i = 1, #KEYS do
	redis.call("set", KEYS[i], ARGV[1], "PX", ARGV[2])
end
return 1
`)

	// extendScript rewrites the TTL on every key to ARGV[2] milliseconds,
	// but only if every key's current value still equals ARGV[1]. A
	// mismatch or missing key on any one key aborts the whole operation
	// without modifying any key.
	extendScript = redis.NewScript(`
for i = 1, #KEYS do
	if redis.call("get", KEYS[i]) ~= ARGV[1] then
		return 0
	end
end
for i = 1, #KEYS do
	redis.call("pexpire", KEYS[i], ARGV[2])
end
return 1
`)

	// releaseScript deletes every key whose current value equals ARGV[1],
	// reporting success if at least one key was deleted (the "succeed-if-
	// any" convention — see the partial-release design note). Keys that
	// already expired or were taken over by another holder are left
	// untouched.
	releaseScript = redis.NewScript(`
local deleted = 0
for i = 1, #KEYS do
	if redis.call("get", KEYS[i]) == ARGV[1] then
		redis.call("del", KEYS[i])
		deleted = deleted + 1
	end
end
if deleted > 0 then
	return 1
else
	return 0
end
`)
)
