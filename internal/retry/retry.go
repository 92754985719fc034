// Package retry holds the bounded backoff shared by the remote model clients.
package retry

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

const (
	baseDelay = 200 * time.Millisecond
	maxDelay  = 5 * time.Second
)

// Delay is the exponential backoff for the given zero-based attempt, capped at 5s.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return maxDelay
	}
	d := baseDelay << attempt
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// After honors a Retry-After header in seconds, falling back to Delay.
func After(h http.Header, attempt int) time.Duration {
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			d := time.Duration(secs) * time.Second
			if d > maxDelay {
				d = maxDelay
			}
			return d
		}
	}
	return Delay(attempt)
}

// Retryable reports whether an HTTP status is worth another attempt.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
