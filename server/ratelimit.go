package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleTimeout   = 10 * time.Minute
)

// clientLimiter tracks a per-client rate limiter and when it was last seen.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter is a token bucket per client IP.
type ipRateLimiter struct {
	perSecond float64
	burst     int

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stop chan struct{}
	once sync.Once
}

func newIPRateLimiter(perSecond float64, burst int) *ipRateLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &ipRateLimiter{
		perSecond: perSecond,
		burst:     burst,
		clients:   make(map[string]*clientLimiter),
		stop:      make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow reports whether the client may proceed. When it may not, the first
// return value is the suggested Retry-After in seconds (0 if unknown).
func (l *ipRateLimiter) Allow(ip string) (int, bool) {
	limiter := l.get(ip)

	reservation := limiter.Reserve()
	if !reservation.OK() {
		return 0, false
	}
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return int(delay.Seconds()) + 1, false
	}
	return 0, true
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cl, ok := l.clients[ip]; ok {
		cl.lastSeen = time.Now()
		return cl.limiter
	}
	limiter := rate.NewLimiter(rate.Limit(l.perSecond), l.burst)
	l.clients[ip] = &clientLimiter{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

func (l *ipRateLimiter) sweep() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for ip, cl := range l.clients {
				if time.Since(cl.lastSeen) > limiterIdleTimeout {
					delete(l.clients, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *ipRateLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// clientIP uses RemoteAddr only; X-Forwarded-For is client controlled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
