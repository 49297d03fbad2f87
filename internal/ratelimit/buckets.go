package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitor is one key's token bucket and when it was last used
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Buckets holds a token bucket per key with background eviction of idle keys.
type Buckets struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	// every is the refill interval for one token, burst the bucket capacity
	every time.Duration
	burst int

	// ttl controls how long an idle key stays in the map before eviction
	ttl time.Duration
	now func() time.Time
}

type BucketOption func(*Buckets)

// WithIdleTTL controls how long an idle key is kept.
func WithIdleTTL(d time.Duration) BucketOption {
	return func(b *Buckets) {
		if d > 0 {
			b.ttl = d
		}
	}
}

// WithBucketClock replaces time.Now, for tests.
func WithBucketClock(now func() time.Time) BucketOption {
	return func(b *Buckets) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuckets allows burst requests at once per key, refilled at one token
// per every. NewBuckets(time.Minute, 5) allows 5 quick submissions, then
// one a minute.
func NewBuckets(every time.Duration, burst int, opts ...BucketOption) *Buckets {
	b := &Buckets{
		visitors: make(map[string]*visitor),
		every:    every,
		burst:    burst,
		ttl:      30 * time.Minute,
		now:      time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Allow takes a token from key's bucket, creating the bucket full on first use.
func (b *Buckets) Allow(key string) bool {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(b.every), b.burst)}
		b.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Evict removes keys idle for longer than the TTL as of now.
func (b *Buckets) Evict(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for key, v := range b.visitors {
		if now.Sub(v.lastSeen) > b.ttl {
			delete(b.visitors, key)
			n++
		}
	}
	return n
}

func (b *Buckets) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.visitors)
}

// Run evicts idle keys every TTL/2 until ctx is cancelled.
func (b *Buckets) Run(ctx context.Context) {
	ticker := time.NewTicker(b.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Evict(b.now())
		}
	}
}
