package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatforge/bridge-api/internal/auth"
)

// RateLimitConfig describes a token-bucket limit for a route group.
type RateLimitConfig struct {
	WindowSeconds int // e.g. 60
	MaxRequests   int // per window
	Burst         int // token bucket size
}

// bucket tracks one subject's spend. Tokens refill continuously at
// MaxRequests/WindowSeconds per second, capped at Burst.
type bucket struct {
	mu        sync.Mutex
	level     float64
	size      float64
	perSecond float64
	topped    time.Time // last refill
}

// take refills for the elapsed time and tries to consume one token. It
// reports the whole tokens left, when the next token lands (Retry-After)
// and when the bucket is full again (X-RateLimit-Reset).
func (b *bucket) take(now time.Time) (ok bool, left int, next, reset time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.level += now.Sub(b.topped).Seconds() * b.perSecond
	if b.level > b.size {
		b.level = b.size
	}
	b.topped = now

	reset = now.Add(time.Duration((b.size - b.level) / b.perSecond * float64(time.Second)))

	if b.level < 1.0 {
		wait := (1.0 - b.level) / b.perSecond
		return false, 0, now.Add(time.Duration(wait * float64(time.Second))), reset
	}
	b.level--
	return true, int(b.level), now, reset
}

// limiterSet holds one bucket per operator subject, created on first use
// and swept once idle.
type limiterSet struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     RateLimitConfig
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	ls := &limiterSet{buckets: make(map[string]*bucket), cfg: cfg}
	go ls.sweep()
	return ls
}

func (ls *limiterSet) take(subject string, now time.Time) (bool, int, time.Time, time.Time) {
	ls.mu.Lock()
	b, exists := ls.buckets[subject]
	if !exists {
		b = &bucket{
			level:     float64(ls.cfg.Burst),
			size:      float64(ls.cfg.Burst),
			perSecond: float64(ls.cfg.MaxRequests) / float64(ls.cfg.WindowSeconds),
			topped:    now,
		}
		ls.buckets[subject] = b
	}
	ls.mu.Unlock()
	return b.take(now)
}

// sweep drops buckets idle for over an hour so one-shot subjects do not
// accumulate in the map.
func (ls *limiterSet) sweep() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		ls.mu.Lock()
		for subject, b := range ls.buckets {
			b.mu.Lock()
			idle := time.Since(b.topped) > time.Hour
			b.mu.Unlock()
			if idle {
				delete(ls.buckets, subject)
			}
		}
		ls.mu.Unlock()
	}
}

// RateLimitMiddleware enforces a per-subject token bucket. Each middleware
// instance owns its own buckets, so route groups can carry different limits.
func RateLimitMiddleware(config RateLimitConfig) func(http.Handler) http.Handler {
	limiter := newLimiterSet(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Subject is set by the auth middleware; requests without one
			// are not limited here.
			subject := auth.Subject(r.Context())
			if subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, nextToken, reset := limiter.take(subject, time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			w.Header().Set("X-RateLimit-Burst", strconv.Itoa(config.Burst))

			if !allowed {
				retryAfter := int(time.Until(nextToken).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				log.Warn().
					Str("subject", subject).
					Str("path", r.URL.Path).
					Int("retryAfter", retryAfter).
					Msg("Rate limit exceeded")

				writeError(w, r, http.StatusTooManyRequests,
					"Rate limit exceeded. Please retry after "+strconv.Itoa(retryAfter)+" seconds.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
