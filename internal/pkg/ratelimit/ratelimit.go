// Package ratelimit implements a Redis-backed token bucket shared by every
// process that talks to the marketplace. The in-process x/time limiter paces
// a single worker; this bucket caps the combined rate when the batch CLI and
// the resident server overlap.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("ratelimit: redis client is nil")

// 桶状态存在一个 Redis hash 里 (tokens + 上次补充的毫秒时间戳),
// 取令牌和惰性补充在同一段 Lua 里完成, 跨进程原子。
const refillLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return 1
end

local state = redis.call("HMGET", key, "tokens", "stamp")
local tokens = tonumber(state[1])
local stamp = tonumber(state[2])
if tokens == nil then
  tokens = burst
end
if stamp == nil then
  stamp = now_ms
end

local elapsed = math.max(0, now_ms - stamp)
tokens = math.min(burst, tokens + elapsed * rate / 1000.0)

local ok = 0
if tokens >= cost then
  tokens = tokens - cost
  ok = 1
end

redis.call("HMSET", key, "tokens", tokens, "stamp", now_ms)
redis.call("PEXPIRE", key, math.ceil(burst / rate * 2000.0))
return ok
`

// Bucket is a token bucket stored in a Redis hash, refilled lazily on access.
type Bucket struct {
	rdb    *redis.Client
	script *redis.Script
}

func NewBucket(rdb *redis.Client) *Bucket {
	return &Bucket{
		rdb:    rdb,
		script: redis.NewScript(refillLua),
	}
}

// Allow takes one token from the bucket identified by key.
// ratePerSec is the refill rate (fractional rates are fine for slow scrape
// budgets), burst the bucket capacity. A non-positive rate or burst disables
// the limit.
func (b *Bucket) Allow(ctx context.Context, key string, ratePerSec float64, burst int) (bool, error) {
	if b == nil || b.rdb == nil {
		return false, ErrNilClient
	}
	if key == "" {
		return false, fmt.Errorf("ratelimit: empty bucket key")
	}
	if ratePerSec <= 0 || burst <= 0 {
		return true, nil
	}

	res, err := b.script.Run(ctx, b.rdb, []string{key}, ratePerSec, burst, time.Now().UnixMilli(), 1).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit eval: %w", err)
	}
	return res == 1, nil
}
