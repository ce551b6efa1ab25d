package delay

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// MaxDelay caps every computed delay before jitter is applied.
const MaxDelay = 30 * time.Second

// jitterRatio is the half-width of the uniform jitter window.
const jitterRatio = 0.2

// DelayFunc is a function that returns the delay before a given attempt.
type DelayFunc func(attempt int) time.Duration

// Jittered returns a DelayFunc computing the delay that precedes attempt n (n >= 2):
//
//	min(base * 2^(n-2), MaxDelay) * (1 + U[-0.2, 0.2]), floored at base.
//
// With a base of 2 seconds the un-jittered delays are:
//
// Before attempt 2: 2s
// Before attempt 3: 4s
// Before attempt 4: 8s
// Before attempt 5: 16s
// Before attempt 6: 30s
// ...
//
// Attempts below 2 have no preceding delay and return 0.
// A nil rng uses the package-level source, a seeded rng makes the sequence deterministic.
// The returned function is safe for concurrent use, calls share rng under a lock.
func Jittered(base time.Duration, rng *rand.Rand) DelayFunc {
	var mu sync.Mutex

	return func(attempt int) time.Duration {
		if attempt < 2 || base <= 0 {
			return 0
		}

		exp := Exponential(base, attempt-2)

		mu.Lock()
		u := uniform(rng)
		mu.Unlock()

		factor := 1 + (u*2*jitterRatio - jitterRatio)

		jittered := time.Duration(float64(exp) * factor)
		return max(jittered, base)
	}
}

// Exponential returns min(base * 2^shift, MaxDelay) without overflowing.
func Exponential(base time.Duration, shift int) time.Duration {
	if base <= 0 {
		return 0
	}
	if base >= MaxDelay {
		return MaxDelay
	}

	// Pre-calculate max shifts to prevent overflow
	logDelay := math.Floor(math.Log2(float64(base)))
	maxShifts := 62 - int(logDelay)
	if shift > maxShifts {
		return MaxDelay
	}

	return min(base<<uint(max(shift, 0)), MaxDelay)
}

func uniform(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64() // #nosec G404 -- jitter, not security sensitive
	}
	return rng.Float64()
}

// Sleep waits for d or until ctx is done, whichever happens first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
