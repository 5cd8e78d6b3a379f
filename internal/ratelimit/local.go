package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Local is an in-process token bucket per key. It is used when no Redis
// is configured and only holds for a single replica.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	window  time.Duration
	ttl     time.Duration
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLocal allows limit requests per window, refilled evenly.
func NewLocal(limit int, window time.Duration) (*Local, error) {
	if limit <= 0 || window <= 0 {
		return nil, errInvalidQuota
	}
	return &Local{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		window:  window,
		ttl:     5 * window,
		now:     time.Now,
	}, nil
}

func (l *Local) Window() time.Duration { return l.window }

func (l *Local) Allow(_ context.Context, key string) bool {
	key = normalizeKey(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		l.sweep(now)
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// sweep drops idle buckets; callers hold mu.
func (l *Local) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.ttl {
			delete(l.buckets, k)
		}
	}
}
