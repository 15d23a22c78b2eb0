package activation

import (
	"context"
	rand "math/rand/v2"
	"sync"
	"time"
)

const (
	// conflictCeilingFactor bounds conflict-retry delays at this multiple of the base.
	conflictCeilingFactor = 16
	// maxConflictShift stops base<<attempt from overflowing on long retry budgets.
	maxConflictShift = 30
)

// conflictBackoff spaces the re-reads that follow a stale-version write.
//
// Writers racing on one subscription all retry, so each delay is drawn uniformly from
// [base, min(ceiling, base*2^attempt)) to spread them out. Safe for concurrent use.
type conflictBackoff struct {
	base    time.Duration
	ceiling time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// newConflictBackoff creates a backoff starting at base. A non-zero seed makes the
// delay sequence reproducible.
func newConflictBackoff(base time.Duration, seed int64) *conflictBackoff {
	if base <= 0 {
		base = DefaultRetryBackoff
	}

	s1, s2 := rand.Uint64(), rand.Uint64()
	if seed != 0 {
		s1 = uint64(seed)
		s2 = s1 ^ 0x9e3779b97f4a7c15
	}

	return &conflictBackoff{
		base:    base,
		ceiling: base * conflictCeilingFactor,
		rng:     rand.New(rand.NewPCG(s1, s2)), //nolint:gosec // retry jitter
	}
}

// next returns the delay before retry number attempt (starting at 1).
func (b *conflictBackoff) next(attempt int) time.Duration {
	attempt = max(attempt, 1)

	upper := b.base << min(attempt, maxConflictShift)
	if upper <= 0 || upper > b.ceiling {
		upper = b.ceiling
	}
	if upper <= b.base {
		return b.base
	}

	b.mu.Lock()
	jitter := b.rng.Int64N(int64(upper - b.base))
	b.mu.Unlock()

	return b.base + time.Duration(jitter)
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
