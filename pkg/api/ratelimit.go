package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
)

const (
	// Failed logins refill at one per second per client, up to loginBurst
	loginRate  = rate.Limit(1)
	loginBurst = 10

	maxLoginLimiters = 10000
)

// loginLimiter throttles failed dashboard logins per client IP. Successful
// logins never consume tokens.
type loginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLoginLimiter(limit rate.Limit, burst int) *loginLimiter {
	return &loginLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *loginLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= maxLoginLimiters {
			log.WithComponent("api").Info().Int("count", len(l.limiters)).Msg("Clearing login limiters")
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

// blocked reports whether ip has exhausted its failed login budget
func (l *loginLimiter) blocked(ip string) bool {
	return l.get(ip).Tokens() < 1
}

// fail records one failed login for ip
func (l *loginLimiter) fail(ip string) {
	if !l.get(ip).Allow() {
		log.WithComponent("api").Warn().Str("remote", ip).Msg("Login rate limit exceeded")
	}
}

// clientIP returns the peer address without port
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
