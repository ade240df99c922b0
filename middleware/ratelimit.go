package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// bucket is a token bucket refilled at rate tokens per second.
type bucket struct {
	tokens   float64
	last     time.Time
	lastSeen time.Time
}

// KeyLimiter rate limits per key, e.g. per signed-in user.
type KeyLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	now     func() time.Time
}

// NewKeyLimiter allows burst requests at once and rate per second after
// that. A nil *KeyLimiter allows everything.
func NewKeyLimiter(rate float64, burst int) *KeyLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
}

// Allow consumes one token for key. When refused it also returns how long
// until the next token.
func (kl *KeyLimiter) Allow(key string) (bool, time.Duration) {
	if kl == nil {
		return true, 0
	}
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	b, ok := kl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(kl.burst), last: now}
		kl.buckets[key] = b
	}
	b.lastSeen = now

	b.tokens = math.Min(float64(kl.burst), b.tokens+now.Sub(b.last).Seconds()*kl.rate)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if kl.rate <= 0 {
		return false, time.Hour
	}
	wait := time.Duration((1 - b.tokens) / kl.rate * float64(time.Second))
	return false, wait
}

// Sweep forgets keys unused for ttl and returns how many were removed.
func (kl *KeyLimiter) Sweep(ttl time.Duration) int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	cutoff := kl.now().Add(-ttl)
	n := 0
	for k, b := range kl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(kl.buckets, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (kl *KeyLimiter) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.buckets)
}

// Run sweeps every ttl until ctx is done.
func (kl *KeyLimiter) Run(ctx context.Context, ttl time.Duration) {
	t := time.NewTicker(ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			kl.Sweep(ttl)
		}
	}
}

// KeyFunc picks the rate limit key for a request.
type KeyFunc func(r *http.Request) string

// ClientIP keys by r.RemoteAddr without the port. chi's RealIP middleware
// has already applied X-Forwarded-For when the router uses it.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit refuses requests over the limit with 429 and Retry-After. The
// response body comes from onLimited, or a plain-text message when nil.
func RateLimit(kl *KeyLimiter, key KeyFunc, onLimited http.HandlerFunc) func(http.Handler) http.Handler {
	if kl == nil {
		return identity
	}
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := kl.Allow(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			if onLimited != nil {
				onLimited(w, r)
				return
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}
