package middleware

import (
	"net/http"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"media-catalog/internal/logging"
)

// RateLimitConfig holds configuration for the per-client rate limiter.
type RateLimitConfig struct {
	// Rate is the sustained number of requests per second per client.
	Rate rate.Limit
	// Burst is how many requests a client may make at once.
	Burst int
	// MaxClients bounds how many client limiters are remembered; the least
	// recently seen client is forgotten first.
	MaxClients int
}

// DefaultRateLimitConfig allows one request per second with a burst of five.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Rate: 1, Burst: 5, MaxClients: 1024}
}

type clientLimiters struct {
	mu     sync.Mutex
	config RateLimitConfig
	cache  *lru.Cache[string, *rate.Limiter]
}

func (c *clientLimiters) get(ip string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.cache.Get(ip); ok {
		return l
	}
	l := rate.NewLimiter(c.config.Rate, c.config.Burst)
	c.cache.Add(ip, l)
	return l
}

// RateLimit rejects requests from a client over its budget with 429.
func RateLimit(config RateLimitConfig) (func(http.Handler) http.Handler, error) {
	cache, err := lru.New[string, *rate.Limiter](config.MaxClients)
	if err != nil {
		return nil, err
	}
	limiters := &clientLimiters{config: config, cache: cache}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiters.get(ip).Allow() {
				logging.Debug("Rate limit exceeded for %s on %s", sanitizeLogField(ip), sanitizeLogField(r.URL.Path))
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(config.Rate)))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 || r >= 1 {
		return 1
	}
	return int(1/float64(r)) + 1
}
