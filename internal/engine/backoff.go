package engine

import "time"

// retryLadder is the fixed escalating backoff between dispatch attempts.
// The last tier repeats for any further attempts.
var retryLadder = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// RetryDelay returns the backoff after the given attempt number (1-based:
// attempt 1 is the first dispatch).
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(retryLadder) {
		return retryLadder[len(retryLadder)-1]
	}
	return retryLadder[attempt-1]
}
