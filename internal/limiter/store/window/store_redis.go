package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"namehaus/pkg/domain"
)

const windowKeyPrefix = "limiter:window:"

// recordScript resets a stale window, then increments the count only while it
// stays within max. Running as a single script keeps check-and-increment
// atomic across engine instances.
//
// KEYS[1] window hash; ARGV[1] now (unix ms); ARGV[2] window (ms); ARGV[3] max.
// Returns {count, allowed}.
var recordScript = redis.NewScript(`
local start = redis.call('HGET', KEYS[1], 'start')
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
if (not start) or (now - tonumber(start) > window) then
  redis.call('HSET', KEYS[1], 'start', now, 'count', 0)
  start = now
end
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
if count + 1 > max then
  return {count, 0}
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('PEXPIRE', KEYS[1], window * 2)
return {count, 1}
`)

// RedisWindowStore shares the fixed-window counters across instances. This is
// the production-recommended store for distributed deployments.
type RedisWindowStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client}
}

func (s *RedisWindowStore) Record(ctx context.Context, addr domain.Address, now time.Time, window time.Duration, max int) (int, bool, error) {
	res, err := recordScript.Run(ctx, s.client,
		[]string{windowKeyPrefix + addr.Hex()},
		now.UnixMilli(), window.Milliseconds(), max,
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("record registration window: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("record registration window: unexpected script reply")
	}
	return int(res[0]), res[1] == 1, nil
}

func (s *RedisWindowStore) Current(ctx context.Context, addr domain.Address, now time.Time, window time.Duration) (int, error) {
	vals, err := s.client.HGetAll(ctx, windowKeyPrefix+addr.Hex()).Result()
	if err != nil {
		return 0, fmt.Errorf("read registration window: %w", err)
	}
	if len(vals) == 0 {
		return 0, nil
	}
	var start, count int64
	if _, err := fmt.Sscan(vals["start"], &start); err != nil {
		return 0, fmt.Errorf("read registration window: %w", err)
	}
	if _, err := fmt.Sscan(vals["count"], &count); err != nil {
		return 0, fmt.Errorf("read registration window: %w", err)
	}
	if now.UnixMilli()-start > window.Milliseconds() {
		return 0, nil
	}
	return int(count), nil
}
