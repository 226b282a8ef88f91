package middleware

import (
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"liftlog/internal/observability"

	"golang.org/x/time/rate"
)

const (
	maxLimiters     = 10000
	cleanupInterval = 5 * time.Minute
	// limiterTTL is how long an idle client keeps its bucket.
	limiterTTL = 15 * time.Minute
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles credential submissions per client IP with a token
// bucket. Idle buckets are dropped in the background.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter allows requestsPerSecond on average with bursts of up to
// burst requests per IP. Call Stop to end the cleanup goroutine.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

// cleanup drops buckets idle for longer than limiterTTL. If the map is
// still over maxLimiters, the least recently used half is evicted.
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(rl.limiters, key)
		}
	}

	if len(rl.limiters) <= maxLimiters {
		return
	}

	keys := make([]string, 0, len(rl.limiters))
	for key := range rl.limiters {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return rl.limiters[keys[i]].lastAccess.Before(rl.limiters[keys[j]].lastAccess)
	})
	for _, key := range keys[:len(keys)-maxLimiters/2] {
		delete(rl.limiters, key)
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.getLimiter(clientIP(r)).Allow() {
				observability.FromContext(r.Context()).Warn("rate limit exceeded",
					"method", r.Method,
					"path", r.URL.Path,
				)
				observability.RequestsThrottled.WithLabelValues(r.URL.Path).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
				http.Error(w, "Too many attempts, please wait a moment and try again", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds is the time for one token to refill, rounded up.
func (rl *RateLimiter) retryAfterSeconds() int {
	if rl.rate <= 0 {
		return 1
	}
	return int(math.Ceil(1 / float64(rl.rate)))
}

// clientIP strips the port from RemoteAddr so every connection from one
// address shares a limiter. chimiddleware.RealIP has already applied
// X-Forwarded-For / X-Real-IP by the time this runs.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
