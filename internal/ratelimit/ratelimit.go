// Package ratelimit implements fixed-window request limiting, shared through
// Redis or local to one process.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts hits per key inside a window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter shares counters between API instances.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter storing counters under prefix.
func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

// Allow implements Limiter.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1000
	}
	res, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + key}, ms).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 2 {
		return Decision{}, errors.New("ratelimit: unexpected script reply")
	}
	count, ttl := res[0], res[1]
	reset := r.now()
	if ttl > 0 {
		reset = reset.Add(time.Duration(ttl) * time.Millisecond)
	}
	return decide(int(count), limit, reset), nil
}

type window struct {
	count int
	ends  time.Time
}

// MemoryLimiter keeps counters in process. Used when Redis is unavailable.
type MemoryLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*window
	maxKeys int
}

// NewMemoryLimiter creates a limiter tracking at most maxKeys clients.
func NewMemoryLimiter(maxKeys int) *MemoryLimiter {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryLimiter{now: time.Now, windows: make(map[string]*window), maxKeys: maxKeys}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, d time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.ends) {
		if len(m.windows) >= m.maxKeys {
			for k, old := range m.windows {
				if !now.Before(old.ends) {
					delete(m.windows, k)
				}
			}
			if len(m.windows) >= m.maxKeys {
				return Decision{}, errors.New("ratelimit: too many tracked clients")
			}
		}
		w = &window{ends: now.Add(d)}
		m.windows[key] = w
	}
	w.count++
	return decide(w.count, limit, w.ends), nil
}

func decide(count, limit int, reset time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= limit, Limit: limit, Remaining: remaining, ResetAt: reset}
}
