// Package retry implements exponential backoff with jitter for the outbound
// stages of the pipeline.
package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy drives one stage's retry behavior. Classify decides which errors
// are worth another attempt; nil means the default Transient predicate.
type Policy struct {
	InitialDelay time.Duration
	Backoff      float64
	MaxDelay     time.Duration
	MaxRetries   int
	Classify     func(error) bool

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a policy with the stock defaults: 500ms initial delay, factor
// 2 backoff, 10s cap, 3 retries.
func New() *Policy {
	return &Policy{
		InitialDelay: 500 * time.Millisecond,
		Backoff:      2.0,
		MaxDelay:     10 * time.Second,
		MaxRetries:   3,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:        sleepCtx,
	}
}

// WithSeed fixes the jitter RNG, making delays reproducible in tests.
func (p *Policy) WithSeed(seed int64) *Policy {
	p.mu.Lock()
	p.rng = rand.New(rand.NewSource(seed))
	p.mu.Unlock()
	return p
}

// WithSleep replaces the sleep function, letting tests run without waiting.
func (p *Policy) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Policy {
	p.sleep = fn
	return p
}

// Delay computes the backoff before retry n (1-based):
// min(MaxDelay, InitialDelay * Backoff^(n-1) * U(0.8, 1.2)).
// Jitter applies before the cap, so the cap is a hard ceiling.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.Backoff, float64(attempt-1))

	p.mu.Lock()
	jitter := 0.8 + 0.4*p.rng.Float64()
	p.mu.Unlock()

	d *= jitter
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, fails permanently, or exhausts the retry
// budget. The last error is returned on exhaustion. Context cancellation
// during a backoff sleep aborts with the pending error.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	classify := p.Classify
	if classify == nil {
		classify = Transient
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !classify(err) {
			return err
		}
		if attempt > p.MaxRetries {
			return err
		}

		delay := p.Delay(attempt)
		log.Debug().
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("transient failure, backing off")
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
