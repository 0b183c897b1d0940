// Package ratelimit provides per-client request throttling for the API,
// built on golang.org/x/time/rate token buckets.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config tunes the per-client buckets.
type Config struct {
	// RPS is the sustained requests-per-second budget per client.
	RPS int
	// Burst is the bucket size.
	Burst int
	// MaxKeys caps the number of tracked clients; oldest entries are
	// evicted past the cap.
	MaxKeys int
}

// DefaultConfig suits a small operator-facing API.
func DefaultConfig() Config {
	return Config{RPS: 20, Burst: 40, MaxKeys: 10000}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks a token bucket per client key.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  Config
}

// New creates a limiter with the given config.
func New(config Config) *Limiter {
	if config.RPS <= 0 {
		config = DefaultConfig()
	}
	return &Limiter{
		entries: make(map[string]*entry),
		config:  config,
	}
}

// Allow reports whether the client may proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= l.config.MaxKeys {
			l.evictOldest()
		}
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.config.RPS), l.config.Burst)}
		l.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// evictOldest drops the least recently seen client. Caller holds the lock.
func (l *Limiter) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range l.entries {
		if oldestKey == "" || e.lastSeen.Before(oldest) {
			oldestKey = key
			oldest = e.lastSeen
		}
	}
	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}

// Middleware rejects requests over the client's budget with 429. Clients
// are keyed by remote IP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			key = r.RemoteAddr
		}

		if !l.Allow(key) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": "rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
