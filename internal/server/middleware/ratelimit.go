package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/iudanet/fieldsync/internal/server/handlers"
	"github.com/iudanet/fieldsync/pkg/api"
)

// RateLimiter is a fixed-window token bucket per key
type RateLimiter struct {
	buckets  map[string]*bucket
	logger   *slog.Logger
	cleanupC chan struct{}
	rate     int
	window   time.Duration
	mu       sync.RWMutex
}

type bucket struct {
	lastRefill time.Time
	tokens     int
	mu         sync.Mutex
}

// NewRateLimiter allows rate requests per window for every key.
func NewRateLimiter(rate int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		window:   window,
		logger:   logger,
		cleanupC: make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupOldBuckets()
		case <-rl.cleanupC:
			return
		}
	}
}

// cleanupOldBuckets drops buckets idle for more than two windows
func (rl *RateLimiter) cleanupOldBuckets() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastRefill) > rl.window*2 {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// Stop terminates the cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.cleanupC)
}

// Allow reports whether one more request for key fits the current window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.RLock()
	b, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Another request may have created it meanwhile.
		if b, exists = rl.buckets[key]; !exists {
			b = &bucket{
				tokens:     rl.rate,
				lastRefill: time.Now(),
			}
			rl.buckets[key] = b
		}
		rl.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Sub(b.lastRefill) >= rl.window {
		b.tokens = rl.rate
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// PathRateLimit limits one path
type PathRateLimit struct {
	Path   string
	Rate   int
	Window time.Duration
}

// PathLimits holds one limiter per path. Requests to other paths pass
// through unlimited.
type PathLimits struct {
	limiters map[string]*RateLimiter
	logger   *slog.Logger
}

// NewPathLimits creates limiters for limits. Entries with a non-positive
// rate or window are skipped.
func NewPathLimits(limits []PathRateLimit, logger *slog.Logger) *PathLimits {
	pl := &PathLimits{
		limiters: make(map[string]*RateLimiter, len(limits)),
		logger:   logger,
	}
	for _, limit := range limits {
		if limit.Rate <= 0 || limit.Window <= 0 {
			continue
		}
		pl.limiters[limit.Path] = NewRateLimiter(limit.Rate, limit.Window, logger)
	}
	return pl
}

// Middleware limits requests per authenticated actor, falling back to the
// client IP for anonymous requests. It must run after AuthMiddleware for
// the actor to be known.
func (pl *PathLimits) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter, exists := pl.limiters[r.URL.Path]
		if !exists {
			next.ServeHTTP(w, r)
			return
		}

		key := rateKey(r)
		if !limiter.Allow(key) {
			tooManyRequests(w, r, pl.logger, key, limiter.window)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Stop terminates the cleanup goroutines of every limiter
func (pl *PathLimits) Stop() {
	for _, limiter := range pl.limiters {
		limiter.Stop()
	}
}

func tooManyRequests(w http.ResponseWriter, r *http.Request, logger *slog.Logger, key string, window time.Duration) {
	logger.Warn("Rate limit exceeded",
		"key", key,
		"method", r.Method,
		"path", r.URL.Path,
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:   "rate_limited",
		Message: "rate limit exceeded, please try again later",
	})
}

// rateKey prefers the device or user of the request over its address, so
// devices behind one NAT do not share a bucket.
func rateKey(r *http.Request) string {
	if actor, ok := handlers.GetActor(r.Context()); ok {
		if actor.DeviceID != "" {
			return "device:" + actor.DeviceID
		}
		return "user:" + actor.Username
	}
	return getClientIP(r)
}

// getClientIP extracts the client address, honouring X-Forwarded-For and
// X-Real-IP set by a reverse proxy.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for idx := 0; idx < len(xff); idx++ {
			if xff[idx] == ',' {
				return xff[:idx]
			}
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}
