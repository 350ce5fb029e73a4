package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sixwire/sixwire/internal/metrics"
	"github.com/sixwire/sixwire/internal/store"
)

// RateLimit defines the fixed-window limit for an endpoint pattern.
type RateLimit struct {
	Requests int64
	Window   time.Duration
}

// rule matches requests by method and path prefix, longest prefix first.
type rule struct {
	method string
	prefix string
	limit  RateLimit
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist []string // IPs or CIDRs exempt from rate limiting
}

// RateLimiter implements per-IP fixed-window rate limiting backed by Redis.
// Counters are ephemeral; losing Redis fails open.
type RateLimiter struct {
	redis        *store.RedisStore
	logger       zerolog.Logger
	rules        []rule
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
}

// NewRateLimiter creates a new rate limiter with per-endpoint limits tuned
// for an anonymous relay: identity churn is cheap to request, so creation
// endpoints are the tightest.
func NewRateLimiter(redis *store.RedisStore, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		redis:        redis,
		logger:       logger,
		whitelistIPs: make(map[string]bool),
		rules: []rule{
			{"POST", "/messages", RateLimit{30, time.Minute}},
			{"GET", "/messages/", RateLimit{120, time.Minute}},
			{"POST", "/identity", RateLimit{20, time.Hour}},
			{"GET", "/identity/", RateLimit{120, time.Minute}},
			{"DELETE", "/identity/", RateLimit{30, time.Minute}},
		},
	}

	// Parse whitelist entries
	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	return rl
}

// Middleware enforces the configured limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		matched, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		bucket := matched.method + " " + matched.prefix
		count, err := rl.redis.IncrRateLimit(r.Context(), bucket, ip, matched.limit.Window)
		if err != nil {
			// Fail open: a Redis outage must not take the API down.
			rl.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		remaining := matched.limit.Requests - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", matched.limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if count > matched.limit.Requests {
			metrics.RateLimitHits.WithLabelValues(bucket).Inc()
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(matched.limit.Window.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded","code":"rate_limited"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// match finds the most specific rule for a request.
func (rl *RateLimiter) match(r *http.Request) (rule, bool) {
	var best rule
	found := false
	for _, ru := range rl.rules {
		if r.Method != ru.method {
			continue
		}
		if r.URL.Path != ru.prefix && !strings.HasPrefix(r.URL.Path, ru.prefix) {
			continue
		}
		if !found || len(ru.prefix) > len(best.prefix) {
			best = ru
			found = true
		}
	}
	return best, found
}

func (rl *RateLimiter) isWhitelisted(ip string) bool {
	if rl.whitelistIPs[ip] {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

// clientIP returns the request IP without the port. RealIP middleware runs
// earlier, so RemoteAddr already reflects X-Forwarded-For where trusted.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
