// Package retry provides the bounded retry strategy for callback delivery.
// Failed deliveries are re-posted with a randomized delay until the retry
// budget is spent, after which the job is dropped.
package retry

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Strategy defines the retry behavior for failed callback deliveries.
//
// The delay before re-attempt n is: BaseDelay*n + uniform(MinJitter, MaxJitter).
//
// Example with defaults (2 retries, 0 base, 1s-10s jitter):
//
//	Attempt 1: immediately
//	Retry 1:   after 1s-10s
//	Retry 2:   after 1s-10s
//	→ Drop
type Strategy struct {
	MaxRetries int           // Re-posts allowed after the first attempt
	BaseDelay  time.Duration // Linear component, multiplied by the retry number
	MinJitter  time.Duration // Lower bound of the random component
	MaxJitter  time.Duration // Upper bound of the random component

	// Rand overrides the random source; nil uses a package-level source.
	Rand *rand.Rand
}

// Defaults applied by DefaultStrategy.
const (
	DefaultMaxRetries = 2
	DefaultMinJitter  = 1 * time.Second
	DefaultMaxJitter  = 10 * time.Second
)

var (
	randMu  sync.Mutex
	randSrc = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // jitter, not crypto
)

// DefaultStrategy returns the default delivery retry strategy:
// 2 retries (3 attempts total), each delayed by a random 1s-10s.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxRetries: DefaultMaxRetries,
		MinJitter:  DefaultMinJitter,
		MaxJitter:  DefaultMaxJitter,
	}
}

// NextDelay returns the delay before re-attempt number retry (1-based).
func (s Strategy) NextDelay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	return s.BaseDelay*time.Duration(retry) + s.jitter()
}

func (s Strategy) jitter() time.Duration {
	lo, hi := s.MinJitter, s.MaxJitter
	if hi < lo {
		lo, hi = hi, lo
	}
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}

	span := int64(hi - lo)
	var n int64
	if s.Rand != nil {
		n = s.Rand.Int63n(span + 1)
	} else {
		randMu.Lock()
		n = randSrc.Int63n(span + 1)
		randMu.Unlock()
	}
	return lo + time.Duration(n)
}

// CanRetry reports whether a job that just failed on attempt retry may be
// re-posted with counter retry+1.
func (s Strategy) CanRetry(retry int) bool {
	return retry+1 <= s.MaxRetries
}

// Exhausted reports whether a fetched job's counter is already past the budget.
// Such a job is dropped without an attempt.
func (s Strategy) Exhausted(retry int) bool {
	return retry > s.MaxRetries
}

// MaxAttempts returns the total number of delivery attempts per job.
func (s Strategy) MaxAttempts() int {
	return s.MaxRetries + 1
}

// GetRetrySchedule returns a human-readable description of the retry schedule.
//
// Example output:
//
//	Retry Schedule:
//	  Attempt 1: immediately
//	  Attempt 2: after 1s-10s
//	  Attempt 3: after 1s-10s
//	  → Drop
func (s Strategy) GetRetrySchedule() string {
	schedule := "Retry Schedule:\n  Attempt 1: immediately\n"
	for i := 1; i <= s.MaxRetries; i++ {
		base := s.BaseDelay * time.Duration(i)
		schedule += fmt.Sprintf("  Attempt %d: after %v-%v\n", i+1, base+s.MinJitter, base+s.MaxJitter)
	}
	schedule += "  → Drop\n"
	return schedule
}
