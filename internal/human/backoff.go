package human

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"coupon-clipper/internal/config"
)

const backoffStart = time.Second

// Backoff считает экспоненциальную паузу после rate limit: 1s, *factor, не больше max, ±jitter%.
type Backoff struct {
	mu        sync.Mutex
	current   time.Duration
	factor    float64
	max       time.Duration
	jitterPct int
	rng       *rand.Rand
}

func NewBackoff(settings config.Settings, rng *rand.Rand) *Backoff {
	if rng == nil {
		rng = NewRand()
	}
	factor := settings.RateLimitBackoffFactor
	if factor < 1 {
		factor = 1
	}
	maxWait := settings.GetMaxBackoff()
	if maxWait < backoffStart {
		maxWait = backoffStart
	}
	return &Backoff{
		current:   backoffStart,
		factor:    factor,
		max:       maxWait,
		jitterPct: settings.BackoffJitterPct,
		rng:       rng,
	}
}

// Next возвращает паузу и увеличивает следующую.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	base := b.current
	if base > b.max {
		base = b.max
	}

	// Jitter: ±jitterPct%
	jitterRange := float64(base) * float64(b.jitterPct) / 100
	jitter := (b.rng.Float64() - 0.5) * 2 * jitterRange
	wait := float64(base) + jitter

	if wait < float64(backoffStart) {
		wait = float64(backoffStart)
	}
	if wait > float64(b.max) {
		wait = float64(b.max)
	}

	next := time.Duration(float64(b.current) * b.factor)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return time.Duration(math.Max(wait, 0))
}

// Current: следующая пауза без jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = backoffStart
	b.mu.Unlock()
}
