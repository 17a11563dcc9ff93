package cooldown

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireLuaScript compares and stamps in one round trip.
// ARGV: now (ms), window (ms, 0 = none), ttl (s).
const acquireLuaScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local win = tonumber(ARGV[2])

if win > 0 then
    local last = redis.call("GET", key)
    if last and now - tonumber(last) < win then
        return 0
    end
end

redis.call("SET", key, ARGV[1], "EX", ARGV[3])
return 1
`

// RedisStore keeps lastFiredAt (unix ms) per key with a TTL of
// max(window, retention).
type RedisStore struct {
	client    redis.Cmdable
	script    *redis.Script
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore creates a Redis-backed store. retention is how long a record
// survives past its window for audit.
func NewRedisStore(client redis.Cmdable, prefix string, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RedisStore{
		client:    client,
		script:    redis.NewScript(acquireLuaScript),
		prefix:    prefix,
		retention: retention,
		now:       time.Now,
	}
}

// TryAcquire implements Store.
func (s *RedisStore) TryAcquire(ctx context.Context, key Key, cooldownHours *int) (bool, error) {
	win := window(cooldownHours)
	ttl := s.retention
	if win > ttl {
		ttl = win
	}
	res, err := s.script.Run(ctx, s.client,
		[]string{s.prefix + ":" + key.String()},
		s.now().UnixMilli(), win.Milliseconds(), int64(ttl.Seconds()),
	).Int()
	if err != nil {
		return false, unavailable("redis acquire", err)
	}
	return res == 1, nil
}
