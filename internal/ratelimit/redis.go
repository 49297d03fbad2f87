package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/devint-cl/devint-web/internal/xerrors"
)

// HitResult is what a Store reports for one request.
type HitResult struct {
	Decision    Decision
	Count       int64
	FirstDenied bool
}

// Store counts fixed windows outside the process.
type Store interface {
	Hit(ctx context.Context, clientID string, window time.Duration, limit int) (HitResult, error)
}

// fixedWindowScript keeps the window check atomic on the server.
// KEYS[1] counter, KEYS[2] first-denial marker
// ARGV[1] limit, ARGV[2] window in milliseconds
// Returns {allowed, count, firstDenied}.
var fixedWindowScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= tonumber(ARGV[1]) then
  local first = 0
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl > 0 and redis.call("SET", KEYS[2], "1", "NX", "PX", ttl) then
    first = 1
  end
  return {0, count, first}
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, count, 0}
`)

const defaultKeyPrefix = "devint:ratelimit:"

// RedisStore keeps one counter key per client with a TTL equal to the
// window, so expired windows disappear without a sweep.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore wraps client. An empty prefix uses "devint:ratelimit:".
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keys(clientID string) []string {
	k := s.prefix + clientID
	return []string{k, k + ":denied"}
}

func (s *RedisStore) Hit(ctx context.Context, clientID string, window time.Duration, limit int) (HitResult, error) {
	vals, err := fixedWindowScript.Run(ctx, s.client, s.keys(clientID), int64(limit), window.Milliseconds()).Slice()
	if err != nil {
		return HitResult{}, xerrors.Wrapf(err, "ratelimit script for %q", clientID)
	}
	if len(vals) != 3 {
		return HitResult{}, xerrors.Newf("ratelimit script returned %d values, want 3", len(vals))
	}

	nums := make([]int64, len(vals))
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return HitResult{}, xerrors.Newf("ratelimit script value %d has type %T", i, v)
		}
		nums[i] = n
	}

	res := HitResult{Decision: Allowed, Count: nums[1], FirstDenied: nums[2] == 1}
	if nums[0] == 0 {
		res.Decision = Throttled
	}
	return res, nil
}
