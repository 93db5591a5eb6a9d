package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/checkcalendar-api/internal/pkg/id"
	"github.com/redis/go-redis/v9"
)

// slidingLog trims entries older than the window, then admits the event only
// when fewer than limit remain. Runs atomically inside Redis.
var slidingLog = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisWindow is a sliding-log limiter shared across instances through Redis.
type RedisWindow struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisWindow(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (r *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	res, err := slidingLog.Run(ctx, r.client,
		[]string{r.prefix + key},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(r.window.Milliseconds(), 10),
		strconv.Itoa(r.limit),
		id.New(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limiter unavailable: %w", err)
	}
	return res == 1, nil
}
