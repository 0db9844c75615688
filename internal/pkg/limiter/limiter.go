/*
Package limiter provides keyed token-bucket rate limiting.

A KeyedLimiter hands out one rate.Limiter per key (client IP for HTTP and WebSocket
upgrades, user id for realtime events) and periodically forgets keys whose bucket
has refilled.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"groupchat/internal/pkg/errs"
	"groupchat/internal/pkg/logx"
	"groupchat/internal/pkg/resp"
)

// sweepInterval is how often idle keys are dropped.
const sweepInterval = 3 * time.Minute

// KeyedLimiter is a concurrency-safe set of token buckets indexed by key.
type KeyedLimiter struct {
	mu     sync.Mutex
	limits map[string]*rate.Limiter

	// r is the refill rate in events per second, b the bucket size.
	r rate.Limit
	b int

	stop chan struct{}
	once sync.Once
}

// NewKeyedLimiter creates a limiter and starts its sweeper goroutine.
func NewKeyedLimiter(r rate.Limit, b int) *KeyedLimiter {
	l := &KeyedLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		stop:   make(chan struct{}),
	}

	go l.sweepLoop()

	return l
}

// Allow consumes one token for key and reports whether the event may proceed.
func (l *KeyedLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

func (l *KeyedLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limits[key] = lim
	}
	return lim
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limits)
}

// Sweep drops every key whose bucket is full again.
func (l *KeyedLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, lim := range l.limits {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(l.limits, key)
			removed++
		}
	}
	return removed
}

func (l *KeyedLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			removed := l.Sweep(now)
			logx.Debug("Rate limiter sweep finished", "removed", removed, "remaining", l.Len())
		case <-l.stop:
			return
		}
	}
}

// Close stops the sweeper goroutine.
func (l *KeyedLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

// ClientIP extracts the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}

// Middleware rejects requests over the per-IP limit with ErrRateLimitExceeded.
func (l *KeyedLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}
		next.ServeHTTP(w, r)
	})
}
