package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims, counts and conditionally records in one round trip.
// KEYS[1] window key; ARGV: now ms, window ms, limit, member, ttl ms.
const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
if redis.call('ZCARD', KEYS[1]) >= limit then
	return 0
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`

// incrScript anchors the expiry at the first increment.
// KEYS[1] counter key; ARGV[1] ttl ms.
const incrScript = `
local v = redis.call('INCR', KEYS[1])
if v == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return v
`

// RedisStore implements Store on a shared Redis instance.
type RedisStore struct {
	rdb redis.Cmdable
	// newMember returns the unique sorted-set member recorded for an admitted request.
	newMember func() string
}

// NewRedisStore wraps rdb, usually config.GetRedisClient().
func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb, newMember: uuid.NewString}
}

func (s *RedisStore) GetBool(ctx context.Context, key string) (bool, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, unavailable("get", key, err)
	}
	return v == "1", true, nil
}

func (s *RedisStore) SetBool(ctx context.Context, key string, value bool, ttl time.Duration) error {
	v := "0"
	if value {
		v = "1"
	}
	if err := s.rdb.Set(ctx, key, v, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, unavailable("setnx", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return unavailable("del", key, err)
	}
	return nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.rdb.Eval(ctx, incrScript, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable("incr", key, err)
	}
	return n, nil
}

func (s *RedisStore) SlidingWindow(ctx context.Context, p WindowParams) (bool, error) {
	res, err := s.rdb.Eval(ctx, slidingWindowScript, []string{p.Key},
		p.Now.UnixMilli(),
		p.Window.Milliseconds(),
		p.Limit,
		s.newMember(),
		(2 * p.Window).Milliseconds(),
	).Int64()
	if err != nil {
		return false, unavailable("window", p.Key, err)
	}
	return res == 1, nil
}
