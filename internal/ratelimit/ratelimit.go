// Package ratelimit throttles abuse-prone endpoints with a token bucket kept
// in Redis, so every instance of the service shares the same buckets.
package ratelimit

import (
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/clasedesurf/reservations/internal/config"
	"github.com/redis/go-redis/v9"
)

// The bucket is refilled and drawn from in one script so concurrent
// requests never read a stale token count.
var script = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
  tokens = capacity
  last_refill = now_ms
end

if interval_ms > 0 then
  local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
  if intervals > 0 then
    tokens = math.min(capacity, tokens + intervals)
    last_refill = last_refill + intervals * interval_ms
  end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

type Option func(*Limiter)

// WithRoutes restricts the limiter to the given "METHOD /path" pairs.
func WithRoutes(routes ...string) Option {
	return func(l *Limiter) {
		for _, r := range routes {
			l.routes[r] = true
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithPrefix namespaces the bucket keys. An empty prefix keeps the default.
func WithPrefix(prefix string) Option {
	return func(l *Limiter) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

type Limiter struct {
	rdb      redis.Scripter
	capacity int
	interval time.Duration
	ttl      time.Duration
	prefix   string
	routes   map[string]bool
	now      func() time.Time
}

// New builds a limiter allowing bursts of capacity requests, refilled at
// refillPerSecond tokens per second.
func New(rdb redis.Scripter, capacity int, refillPerSecond float64, opts ...Option) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	interval := time.Second
	if refillPerSecond > 0 {
		interval = time.Duration(float64(time.Second) / refillPerSecond)
	}
	l := &Limiter{
		rdb:      rdb,
		capacity: capacity,
		interval: interval,
		prefix:   "ratelimit",
		routes:   map[string]bool{},
		now:      time.Now,
	}
	// Keep an idle bucket around until it would be full again.
	l.ttl = time.Duration(capacity)*interval + time.Minute
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromConfig returns nil when Redis is not configured. A nil *Limiter lets
// every request through.
func FromConfig(cfg *config.Config, opts ...Option) *Limiter {
	if cfg.RedisAddr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	opts = append([]Option{WithPrefix(cfg.RateLimitPrefix)}, opts...)
	return New(rdb, cfg.RateLimitCapacity, cfg.RateLimitRefillPerSecond, opts...)
}

func (l *Limiter) applies(r *http.Request) bool {
	if len(l.routes) == 0 {
		return true
	}
	return l.routes[r.Method+" "+r.URL.Path]
}

func (l *Limiter) key(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || ip == "" {
		ip = r.RemoteAddr
	}
	if ip == "" {
		ip = "unknown"
	}
	return fmt.Sprintf("%s:%s:%s %s", l.prefix, ip, r.Method, r.URL.Path)
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.applies(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := l.key(r)
		vals, err := script.Run(r.Context(), l.rdb, []string{key},
			l.now().UnixMilli(),
			l.capacity,
			l.interval.Milliseconds(),
			int64(l.ttl/time.Second),
		).Int64Slice()
		if err != nil || len(vals) != 3 {
			// Fail open.
			log.Printf("Rate limiter unavailable for %s, letting request through: %v", key, err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.capacity))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(vals[1], 10))

		if vals[0] != 1 {
			secs := int(math.Ceil(float64(vals[2]) / 1000.0))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			apperr.Write(w, apperr.New(apperr.RateLimited, "too many requests, try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
