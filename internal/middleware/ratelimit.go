package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"
)

// maxTrackedClients caps the number of per-IP buckets held in memory so a
// scan across many source addresses cannot exhaust the process.
const maxTrackedClients = 100000

// RateLimiter applies per-client token bucket rate limiting keyed by IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	rate    float64 // sustained tokens per second
	burst   int
}

type bucket struct {
	tokens   float64
	refilled time.Time // last refill computation
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter with the given sustained rate
// (requests per second) and burst size.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
	}
}

// Handler returns HTTP middleware that enforces per-IP rate limiting.
// Rejected requests receive 429 with a Retry-After hint.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, retryAfter, allowed := rl.take(clientIP(r))

		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(time.Second).Unix()))

		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(retryAfter)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// take attempts to consume one token for the given client. It returns the
// remaining token count, the seconds until a token frees up when rejected,
// and whether the request is allowed.
func (rl *RateLimiter) take(ip string) (remaining int, retryAfter float64, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.clients[ip]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			return 0, 1.0 / rl.rate, false
		}
		b = &bucket{
			tokens:   float64(rl.burst) - 1, // this request consumes one
			refilled: now,
			lastSeen: now,
		}
		rl.clients[ip] = b
		return int(b.tokens), 0, true
	}

	b.tokens = math.Min(float64(rl.burst), b.tokens+now.Sub(b.refilled).Seconds()*rl.rate)
	b.refilled = now
	b.lastSeen = now

	if b.tokens < 1 {
		return 0, (1 - b.tokens) / rl.rate, false
	}

	b.tokens--
	return int(b.tokens), 0, true
}

// StartCleanup spawns a goroutine that evicts buckets idle for longer than
// maxIdle, checking every interval. The returned function stops it.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evictIdle(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) evictIdle(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for ip, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// Len returns the number of tracked client buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// clientIP derives the limiting key from RemoteAddr only. Forwarding
// headers are ignored here since they can be set by the client to dodge
// the limit.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
