package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts attempts per key in fixed windows.
//
// Allow records one attempt for key and reports whether it is within limit.
// When it is not, retryAfter is the time left in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (allowed bool, retryAfter time.Duration, err error)
}

// MemoryLimiter is a process-local Limiter.
type MemoryLimiter struct {
	mu          sync.Mutex
	entries     map[string]*window
	lastCleanup time.Time
}

type window struct {
	count int
	reset time.Time
}

// NewMemoryLimiter returns an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{entries: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, win time.Duration, now time.Time) (bool, time.Duration, error) {
	if limit <= 0 || win <= 0 {
		return true, 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) >= time.Minute {
		for k, e := range l.entries {
			if !now.Before(e.reset) {
				delete(l.entries, k)
			}
		}
		l.lastCleanup = now
	}

	e, ok := l.entries[key]
	if !ok || !now.Before(e.reset) {
		l.entries[key] = &window{count: 1, reset: now.Add(win)}
		return true, 0, nil
	}
	if e.count >= limit {
		return false, e.reset.Sub(now), nil
	}
	e.count++
	return true, 0, nil
}

const defaultRedisPrefix = "livesupport:auth:rl:"

var limitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return {0, ttl}
end
return {1, ttl}
`)

// RedisLimiter shares windows across replicas through Redis.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
}

// NewRedisLimiter returns a RedisLimiter; an empty prefix uses the default.
func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

var errUnexpectedReply = errors.New("authapi: unexpected redis reply")

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, win time.Duration, _ time.Time) (bool, time.Duration, error) {
	if limit <= 0 || win <= 0 {
		return true, 0, nil
	}
	windowMS := win.Milliseconds()
	if windowMS <= 0 {
		return false, 0, fmt.Errorf("authapi: rate window below 1ms")
	}

	res, err := limitScript.Run(ctx, l.client, []string{l.prefix + key}, limit, windowMS).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("authapi: redis limiter: %w", err)
	}
	if len(res) != 2 {
		return false, 0, errUnexpectedReply
	}

	retryAfter := time.Duration(res[1]) * time.Millisecond
	if res[0] == 1 {
		return true, 0, nil
	}
	return false, max(retryAfter, 0), nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
