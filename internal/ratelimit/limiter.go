package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultWindow        = 15 * time.Minute
	DefaultLimit         = 100
	DefaultSweepInterval = 5 * time.Minute
)

// Decision is the outcome of recording one request.
type Decision int

const (
	Allowed Decision = iota
	Throttled
)

func (d Decision) String() string {
	if d == Throttled {
		return "throttled"
	}
	return "allowed"
}

// record is one client's window. count is at least 1 while the record
// exists; the window is over once now is after resetTime.
type record struct {
	count     int
	resetTime time.Time
	// logged is set on the first denial in this window so OnFirstDenied
	// fires once per window rather than once per request
	logged bool
}

func (r *record) expired(now time.Time) bool { return now.After(r.resetTime) }

// Limiter is a fixed-window request counter per client identifier.
// The zero value is not usable, construct with New.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record

	window        time.Duration
	limit         int
	sweepInterval time.Duration
	now           func() time.Time

	// maxClients triggers an early sweep when the table reaches it; 0
	// disables it. It never causes a request to be throttled.
	maxClients int
	atCapacity bool

	store Store

	// OnFirstDenied is called once per client window, on the first throttled request
	OnFirstDenied func(clientID string)

	// OnDenied is called on every throttled request
	OnDenied func(clientID string)

	// OnCapacity is called once when a new client is turned away because
	// the table is full, and again only after a sweep frees room
	OnCapacity func()

	// OnSweep reports each sweep's evictions and the records left afterwards
	OnSweep func(removed, remaining int)

	// OnStoreError is called when the shared store fails; the request is allowed
	OnStoreError func(clientID string, err error)
}

type Option func(*Limiter)

// WithWindow sets the window length. Non-positive values are ignored.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithLimit sets the number of requests allowed per window. Non-positive values are ignored.
func WithLimit(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithSweepInterval sets how often Run sweeps expired records.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithMaxClients sets the table size at which a new client triggers an
// early sweep of expired records and OnCapacity. New clients are still
// admitted past it. 0, the default, disables it.
func WithMaxClients(n int) Option {
	return func(l *Limiter) {
		if n >= 0 {
			l.maxClients = n
		}
	}
}

// WithStore moves counting to a shared store.
func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

// WithOnFirstDenied sets a hook called on a client's first throttled request in a window.
func WithOnFirstDenied(fn func(clientID string)) Option {
	return func(l *Limiter) { l.OnFirstDenied = fn }
}

// WithOnDenied sets a hook called on every throttled request.
func WithOnDenied(fn func(clientID string)) Option {
	return func(l *Limiter) { l.OnDenied = fn }
}

// WithOnCapacity sets a hook called once each time the table grows past WithMaxClients.
func WithOnCapacity(fn func()) Option {
	return func(l *Limiter) { l.OnCapacity = fn }
}

// WithOnSweep sets a hook called after every sweep with the removed and remaining counts.
func WithOnSweep(fn func(removed, remaining int)) Option {
	return func(l *Limiter) { l.OnSweep = fn }
}

// WithOnStoreError sets a hook called when the shared store fails and the request is allowed.
func WithOnStoreError(fn func(clientID string, err error)) Option {
	return func(l *Limiter) { l.OnStoreError = fn }
}

// New builds a Limiter with the defaults (100 requests per 15 minutes,
// sweep every 5 minutes) overridden by opts. Call Run to start sweeping.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		records:       make(map[string]*record),
		window:        DefaultWindow,
		limit:         DefaultLimit,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Limiter) Window() time.Duration { return l.window }
func (l *Limiter) Limit() int            { return l.limit }

// Check records a request from clientID at the limiter's current time.
// With a shared store configured, store failures allow the request.
func (l *Limiter) Check(ctx context.Context, clientID string) Decision {
	now := l.now()
	if l.store == nil {
		return l.CheckAndRecord(clientID, now)
	}

	res, err := l.store.Hit(ctx, clientID, l.window, l.limit)
	if err != nil {
		if l.OnStoreError != nil {
			l.OnStoreError(clientID, err)
		}
		return Allowed
	}
	if res.Decision == Throttled {
		l.denied(clientID, res.FirstDenied)
	}
	return res.Decision
}

// CheckAndRecord applies the fixed-window rule for clientID at now:
// a missing or expired record is replaced by a fresh one with count 1,
// a record at the limit throttles without changing, anything else is
// incremented. The whole read-modify-write happens under one lock.
func (l *Limiter) CheckAndRecord(clientID string, now time.Time) Decision {
	l.mu.Lock()
	rec, ok := l.records[clientID]

	if !ok || rec.expired(now) {
		notify := !ok && l.full(now)
		l.records[clientID] = &record{count: 1, resetTime: now.Add(l.window)}
		l.mu.Unlock()
		if notify && l.OnCapacity != nil {
			l.OnCapacity()
		}
		return Allowed
	}

	if rec.count >= l.limit {
		first := !rec.logged
		rec.logged = true
		// hooks may be slow (logging), run them outside the lock
		l.mu.Unlock()
		l.denied(clientID, first)
		return Throttled
	}

	rec.count++
	l.mu.Unlock()
	return Allowed
}

// full sweeps expired records once the table reaches maxClients and
// reports whether it is still at the bound and had not been reported yet.
// Caller holds l.mu.
func (l *Limiter) full(now time.Time) bool {
	if l.maxClients <= 0 || len(l.records) < l.maxClients {
		return false
	}
	l.sweepLocked(now)
	if len(l.records) < l.maxClients || l.atCapacity {
		return false
	}
	l.atCapacity = true
	return true
}

func (l *Limiter) denied(clientID string, first bool) {
	if first && l.OnFirstDenied != nil {
		l.OnFirstDenied(clientID)
	}
	if l.OnDenied != nil {
		l.OnDenied(clientID)
	}
}

// Sweep deletes every record whose resetTime is before now and returns how
// many were removed. Records still inside their window are untouched.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	removed := l.sweepLocked(now)
	remaining := len(l.records)
	l.mu.Unlock()

	if l.OnSweep != nil {
		l.OnSweep(removed, remaining)
	}
	return removed
}

func (l *Limiter) sweepLocked(now time.Time) int {
	removed := 0
	for id, rec := range l.records {
		if rec.resetTime.Before(now) {
			delete(l.records, id)
			removed++
		}
	}
	if l.maxClients <= 0 || len(l.records) < l.maxClients {
		l.atCapacity = false
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Run sweeps on every interval tick until ctx is cancelled.
// Intended to be launched once as: go limiter.Run(ctx)
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(l.now())
		}
	}
}
