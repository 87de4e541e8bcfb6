package reliability

import (
	"sync"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// FailureStreak counts consecutive failures and yields the delay to wait
// before the next attempt. The first failure waits nothing.
type FailureStreak struct {
	Base time.Duration
	Cap  time.Duration

	mu    sync.Mutex
	count int
}

// Failure records a failure and returns the delay before retrying.
func (f *FailureStreak) Failure() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	if f.count == 1 {
		return 0
	}
	return ExponentialBackoff(f.count-2, f.Base, f.Cap)
}

// Success resets the streak.
func (f *FailureStreak) Success() {
	f.mu.Lock()
	f.count = 0
	f.mu.Unlock()
}

// Count returns the current number of consecutive failures.
func (f *FailureStreak) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}
