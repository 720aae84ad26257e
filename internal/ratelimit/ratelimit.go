// Package ratelimit implements the per-key Rate Limiter (C4): a two-bucket
// sliding window (60s, 3600s) plus a concurrent-request counter, per
// spec §4.4. It generalizes the teacher repo's single-window token bucket
// (internal/security/ratelimit.go) into the two-window-plus-concurrency
// shape the gateway actually needs.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	minuteWindow = 60 * time.Second
	hourWindow   = 3600 * time.Second
)

// Policy is a key's rate-limit configuration, normalized from whatever
// shape the caller supplied (a bare rpm integer, or a partial map).
type Policy struct {
	RPM        int
	RPH        int
	Concurrent int
}

// NormalizePolicy fills in rph/concurrent defaults from rpm when they are
// not set, matching spec §4.4 step 1.
func NormalizePolicy(p Policy) Policy {
	if p.RPH == 0 {
		p.RPH = 60 * p.RPM
	}
	if p.Concurrent == 0 {
		p.Concurrent = 10
	}
	return p
}

// Result is returned by Check.
type Result struct {
	Allowed bool
	Reason  string
}

// Status mirrors spec §4.4's status(key) operation.
type Status struct {
	PerMinute  WindowStatus `json:"per_minute"`
	PerHour    WindowStatus `json:"per_hour"`
	Concurrent ConcurrentStatus `json:"concurrent"`
}

type WindowStatus struct {
	Limit   int       `json:"limit"`
	Used    int       `json:"used"`
	ResetAt time.Time `json:"reset_at"`
}

type ConcurrentStatus struct {
	Limit int `json:"limit"`
	Used  int `json:"used"`
}

type window struct {
	count       int
	windowStart time.Time
}

type bucket struct {
	mu         sync.Mutex
	minute     window
	hour       window
	concurrent int32
	lastSeen   time.Time
	policy     Policy
}

// Limiter owns every key's sliding-window state behind a single map
// guarded by its own mutex; each bucket has its own inner mutex so keys
// never contend with each other.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	logger  *logrus.Logger

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

func NewLimiter(logger *logrus.Logger) *Limiter {
	l := &Limiter{
		buckets:     make(map[string]*bucket),
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}
	l.startCleanup(5 * time.Minute)
	return l
}

func (l *Limiter) getOrCreate(key string, policy Policy) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{policy: policy, lastSeen: time.Now()}
	l.buckets[key] = b
	return b
}

// Check implements spec §4.4's check(key, policy) operation: it evaluates
// both sliding windows and the concurrent count, and on success increments
// the minute and hour buckets (but NOT the concurrent slot, which is
// acquired separately via StartRequest).
func (l *Limiter) Check(key string, policy Policy) Result {
	policy = NormalizePolicy(policy)
	b := l.getOrCreate(key, policy)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.policy = policy
	b.lastSeen = time.Now()

	now := time.Now()

	if res := checkWindow(&b.minute, now, minuteWindow, policy.RPM, "minute_limit_exceeded"); !res.Allowed {
		l.logRejection(key, res.Reason)
		return res
	}
	if res := checkWindow(&b.hour, now, hourWindow, policy.RPH, "hour_limit_exceeded"); !res.Allowed {
		l.logRejection(key, res.Reason)
		return res
	}
	if int(atomic.LoadInt32(&b.concurrent)) >= policy.Concurrent {
		l.logRejection(key, "concurrent_limit_exceeded")
		return Result{Allowed: false, Reason: "concurrent_limit_exceeded"}
	}

	bumpWindow(&b.minute, now, minuteWindow)
	bumpWindow(&b.hour, now, hourWindow)

	return Result{Allowed: true}
}

func checkWindow(w *window, now time.Time, size time.Duration, limit int, reason string) Result {
	if now.Sub(w.windowStart) >= size {
		return Result{Allowed: true}
	}
	if w.count >= limit {
		return Result{Allowed: false, Reason: reason}
	}
	return Result{Allowed: true}
}

func bumpWindow(w *window, now time.Time, size time.Duration) {
	if now.Sub(w.windowStart) >= size {
		w.windowStart = now
		w.count = 1
		return
	}
	w.count++
}

func (l *Limiter) logRejection(key, reason string) {
	if l.logger == nil {
		return
	}
	l.logger.WithFields(logrus.Fields{
		"key":    maskKey(key),
		"reason": reason,
	}).Warn("Rate limit exceeded")
}

// StartRequest acquires a concurrent slot for key, per spec §4.4.
func (l *Limiter) StartRequest(key string, policy Policy) {
	b := l.getOrCreate(key, NormalizePolicy(policy))
	atomic.AddInt32(&b.concurrent, 1)
}

// FinishRequest releases a concurrent slot. It must run on every exit path
// (normal, error, client disconnect) exactly once; callers should call it
// from a defer immediately after a successful StartRequest.
func (l *Limiter) FinishRequest(key string) {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		return
	}
	for {
		cur := atomic.LoadInt32(&b.concurrent)
		if cur <= 0 {
			return
		}
		if atomic.CompareAndSwapInt32(&b.concurrent, cur, cur-1) {
			return
		}
	}
}

// GetStatus implements spec §4.4's status(key) operation.
func (l *Limiter) GetStatus(key string) Status {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		return Status{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	minUsed := b.minute.count
	if now.Sub(b.minute.windowStart) >= minuteWindow {
		minUsed = 0
	}
	hourUsed := b.hour.count
	if now.Sub(b.hour.windowStart) >= hourWindow {
		hourUsed = 0
	}

	return Status{
		PerMinute: WindowStatus{
			Limit:   b.policy.RPM,
			Used:    minUsed,
			ResetAt: b.minute.windowStart.Add(minuteWindow),
		},
		PerHour: WindowStatus{
			Limit:   b.policy.RPH,
			Used:    hourUsed,
			ResetAt: b.hour.windowStart.Add(hourWindow),
		},
		Concurrent: ConcurrentStatus{
			Limit: b.policy.Concurrent,
			Used:  int(atomic.LoadInt32(&b.concurrent)),
		},
	}
}

// Reset drops all sliding-window state for a key (concurrent count is left
// alone since in-flight requests still hold their slots).
func (l *Limiter) Reset(key string) {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.minute = window{}
	b.hour = window{}
}

func (l *Limiter) startCleanup(interval time.Duration) {
	l.cleanupTicker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-l.cleanupTicker.C:
				l.cleanup()
			case <-l.stopCleanup:
				return
			}
		}
	}()
}

// cleanup evicts keys idle beyond 2x the hour window, per spec §4.4.
func (l *Limiter) cleanup() {
	cutoff := time.Now().Add(-2 * hourWindow)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		l.cleanupTicker.Stop()
		close(l.stopCleanup)
	})
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****"
}
