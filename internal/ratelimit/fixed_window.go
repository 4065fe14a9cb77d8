package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Returns {count, pttl} for the current window key.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

const defaultPrefix = "grocery:ratelimit"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// FixedWindowLimiter limits requests per key in a fixed time window, shared
// across replicas through Redis.
type FixedWindowLimiter struct {
	limit    int
	window   time.Duration
	client   redis.Scripter
	prefix   string
	failOpen bool
}

// Option customizes a FixedWindowLimiter.
type Option func(*FixedWindowLimiter)

// WithPrefix sets the Redis key prefix.
func WithPrefix(prefix string) Option {
	return func(l *FixedWindowLimiter) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithFailOpen admits requests when Redis is unreachable. The default is to
// reject them.
func WithFailOpen() Option {
	return func(l *FixedWindowLimiter) { l.failOpen = true }
}

// NewFixedWindowLimiter creates a limiter on an existing Redis client.
func NewFixedWindowLimiter(client redis.Scripter, limit int, window time.Duration, opts ...Option) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if client == nil {
		return nil, errors.New("rate limiter redis client is required")
	}
	l := &FixedWindowLimiter{
		limit:  limit,
		window: window,
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Allow counts one hit against key. The error is non-nil only when Redis
// failed; the decision then reflects the configured fail mode.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil {
		return Decision{}, errors.New("rate limiter not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	windowSlot := time.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, windowSlot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil || len(res) != 2 {
		if err == nil {
			err = fmt.Errorf("unexpected rate limit reply: %v", res)
		}
		return Decision{Allowed: l.failOpen, Limit: l.limit}, err
	}
	count, ttl := res[0], res[1]
	d := Decision{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: max(l.limit-int(count), 0),
	}
	if !d.Allowed {
		if ttl <= 0 {
			ttl = windowMs
		}
		d.RetryAfter = time.Duration(ttl) * time.Millisecond
	}
	return d, nil
}
