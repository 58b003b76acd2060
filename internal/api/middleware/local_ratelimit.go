package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTimeout   = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalRateLimit is an in-process token bucket per client IP, used when no
// Redis is configured. Limits are per server instance.
type LocalRateLimit struct {
	requestsPerMin int

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

// NewLocalRateLimit creates a LocalRateLimit allowing requestsPerMin per
// client with a burst of the same size. Idle clients are swept until ctx is
// done.
func NewLocalRateLimit(ctx context.Context, requestsPerMin int) *LocalRateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	l := &LocalRateLimit{
		requestsPerMin: requestsPerMin,
		clients:        make(map[string]*clientLimiter),
		now:            time.Now,
	}
	go l.sweep(ctx)
	return l
}

func (l *LocalRateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := l.limiterFor(clientIP(r))

		reservation := limiter.Reserve()
		if !reservation.OK() {
			tooManyRequests(w, 0)
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			tooManyRequests(w, int(delay.Seconds())+1)
			return
		}

		remaining := int(limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		setRateLimitHeaders(w, l.requestsPerMin, remaining, l.now().Add(rateLimitWindow))

		next.ServeHTTP(w, r)
	})
}

func (l *LocalRateLimit) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.clients[ip]; ok {
		cl.lastSeen = l.now()
		return cl.limiter
	}
	perSecond := rate.Limit(float64(l.requestsPerMin) / rateLimitWindow.Seconds())
	cl := &clientLimiter{
		limiter:  rate.NewLimiter(perSecond, l.requestsPerMin),
		lastSeen: l.now(),
	}
	l.clients[ip] = cl
	return cl.limiter
}

func (l *LocalRateLimit) sweep(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *LocalRateLimit) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-limiterIdleTimeout)
	for ip, cl := range l.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}
