package handler

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// callerIdleTTL is how long a bucket survives without traffic.
const callerIdleTTL = 10 * time.Minute

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CallerLimiter keeps one token bucket per authenticated caller. Buckets
// idle for callerIdleTTL are dropped on the next sweep.
type CallerLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*callerBucket
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewCallerLimiter(rps float64, burst int) *CallerLimiter {
	return &CallerLimiter{
		buckets:   make(map[string]*callerBucket),
		rps:       rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *CallerLimiter) Allow(caller string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= callerIdleTTL {
		l.sweep(now)
	}
	b, ok := l.buckets[caller]
	if !ok {
		b = &callerBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[caller] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// sweep requires l.mu.
func (l *CallerLimiter) sweep(now time.Time) {
	for caller, b := range l.buckets {
		if now.Sub(b.lastSeen) >= callerIdleTTL {
			delete(l.buckets, caller)
		}
	}
	l.lastSweep = now
}

// Middleware must run after the AccessGate so the caller is known.
func (l *CallerLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		if !l.Allow(p.Email) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Message: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
