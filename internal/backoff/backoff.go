// Package backoff computes retry delays shared by the delivery
// transports.
package backoff

import (
	"time"
)

// MaxDelay caps the exponential growth.
const MaxDelay = 30 * time.Second

// Delay returns the wait before retry attempt n (1-based):
// base * 2^(n-1), capped at MaxDelay.
func Delay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= MaxDelay {
			return MaxDelay
		}
	}
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}
