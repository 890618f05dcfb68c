package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mathtutor/internal/common/cache"
	pkgerrors "mathtutor/pkg/errors"

	"golang.org/x/time/rate"
)

// Limiter admits at most max events per window for key. It returns a
// TooManyRequests error once the budget is spent.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) error
}

// RedisLimiter enforces fixed-window limits shared by every instance.
type RedisLimiter struct {
	cache   cache.BasicOps
	timeout time.Duration
}

func NewRedisLimiter(cacheClient cache.BasicOps, timeout time.Duration) *RedisLimiter {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &RedisLimiter{cache: cacheClient, timeout: timeout}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 {
		return nil
	}
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		// A key without expiry would block forever.
		if ttl, ttlErr := l.cache.TTL(ctxCache, key); ttlErr == nil && ttl < 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if count > int64(max) {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}

// LocalLimiter is an in-process token bucket per key, used when Redis is
// not configured. Buckets refill at max/window with a burst of max.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*rate.Limiter)}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, max int, window time.Duration) error {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(rate.Every(window/time.Duration(max)), max)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	if !bucket.Allow() {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}
