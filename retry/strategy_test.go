package retry

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStrategy(t *testing.T) {
	strategy := DefaultStrategy()

	assert.Equal(t, 2, strategy.MaxRetries)
	assert.Equal(t, time.Duration(0), strategy.BaseDelay)
	assert.Equal(t, 1*time.Second, strategy.MinJitter)
	assert.Equal(t, 10*time.Second, strategy.MaxJitter)
	assert.Equal(t, 3, strategy.MaxAttempts())
}

func TestStrategy_NextDelay_WithinJitterBounds(t *testing.T) {
	strategy := DefaultStrategy()
	strategy.Rand = rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		delay := strategy.NextDelay(1)
		assert.GreaterOrEqual(t, delay, 1*time.Second)
		assert.LessOrEqual(t, delay, 10*time.Second)
	}
}

func TestStrategy_NextDelay_Linear(t *testing.T) {
	strategy := Strategy{
		MaxRetries: 5,
		BaseDelay:  30 * time.Second,
		MinJitter:  2 * time.Second,
		MaxJitter:  2 * time.Second,
	}

	tests := []struct {
		retry    int
		expected time.Duration
	}{
		{0, 2 * time.Second},
		{1, 32 * time.Second},
		{2, 62 * time.Second},
		{3, 92 * time.Second},
		{-4, 2 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, strategy.NextDelay(tt.retry), "retry %d", tt.retry)
	}
}

func TestStrategy_NextDelay_BoundaryValues(t *testing.T) {
	t.Run("Zero jitter", func(t *testing.T) {
		strategy := Strategy{MaxRetries: 1}
		assert.Equal(t, time.Duration(0), strategy.NextDelay(1))
	})

	t.Run("Swapped bounds", func(t *testing.T) {
		strategy := Strategy{MinJitter: 5 * time.Second, MaxJitter: 1 * time.Second}
		delay := strategy.NextDelay(1)
		assert.GreaterOrEqual(t, delay, 1*time.Second)
		assert.LessOrEqual(t, delay, 5*time.Second)
	})

	t.Run("Negative lower bound", func(t *testing.T) {
		strategy := Strategy{MinJitter: -time.Second, MaxJitter: -time.Second}
		assert.Equal(t, time.Duration(0), strategy.NextDelay(1))
	})
}

func TestStrategy_CanRetry(t *testing.T) {
	strategy := DefaultStrategy()

	tests := []struct {
		name     string
		retry    int
		expected bool
	}{
		{"First attempt failed", 0, true},
		{"First retry failed", 1, true},
		{"Last retry failed", 2, false},
		{"Beyond budget", 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, strategy.CanRetry(tt.retry))
		})
	}
}

func TestStrategy_Exhausted(t *testing.T) {
	strategy := DefaultStrategy()

	assert.False(t, strategy.Exhausted(0))
	assert.False(t, strategy.Exhausted(2))
	assert.True(t, strategy.Exhausted(3))

	none := Strategy{}
	assert.False(t, none.Exhausted(0))
	assert.False(t, none.CanRetry(0))
	assert.True(t, none.Exhausted(1))
}

func TestStrategy_GetRetrySchedule(t *testing.T) {
	strategy := Strategy{
		MaxRetries: 3,
		BaseDelay:  10 * time.Second,
		MinJitter:  1 * time.Second,
		MaxJitter:  5 * time.Second,
	}

	schedule := strategy.GetRetrySchedule()

	assert.Contains(t, schedule, "Retry Schedule:")
	assert.Contains(t, schedule, "Attempt 1: immediately")
	assert.Contains(t, schedule, "Attempt 2: after 11s-15s")
	assert.Contains(t, schedule, "Attempt 3: after 21s-25s")
	assert.Contains(t, schedule, "Attempt 4: after 31s-35s")
	assert.NotContains(t, schedule, "Attempt 5")
	assert.Contains(t, schedule, "→ Drop")

	lines := strings.Split(strings.TrimSpace(schedule), "\n")
	assert.Len(t, lines, 6)
}

// Realistic flow: a job failing every attempt is attempted MaxRetries+1 times.
func TestStrategy_RealisticRetryFlow(t *testing.T) {
	strategy := DefaultStrategy()

	attempts := 0
	retry := 0
	for {
		if strategy.Exhausted(retry) {
			break
		}
		attempts++
		if !strategy.CanRetry(retry) {
			break
		}
		retry++
	}

	assert.Equal(t, strategy.MaxAttempts(), attempts)
	assert.Equal(t, 2, retry)
}
