package api

import (
	"encoding/json/v2"
	"net/http"

	domainerrors "github.com/arguspanoptes/argus-server/internal/errors"
	"github.com/arguspanoptes/argus-server/internal/logger"
	"github.com/arguspanoptes/argus-server/internal/ratelimit"
)

// RateLimiter wraps KeyedRateLimiter for API use.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter builds a per-client limiter from a requests-per-minute
// budget. Bursts of up to a quarter of the budget are absorbed.
func NewRateLimiter(rpm int) *RateLimiter {
	burst := rpm / 4
	if burst < 1 {
		burst = 1
	}
	return ratelimit.New(float64(rpm)/60.0, burst)
}

// RateLimitMiddleware rate limits requests by client IP, returning 429
// when the budget is exhausted. RealIP runs earlier in the chain, so
// RemoteAddr is already the forwarded client address.
func RateLimitMiddleware(limiter *RateLimiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if !limiter.Allow(key) {
				log.Warn("rate limit exceeded", "ip", key, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.MarshalWrite(w, map[string]string{
					"code":    string(domainerrors.CodeRateLimited),
					"message": "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr.
func clientIP(r *http.Request) string {
	ip := r.RemoteAddr
	for i := len(ip) - 1; i >= 0; i-- {
		if ip[i] == ':' {
			return ip[:i]
		}
	}
	return ip
}
