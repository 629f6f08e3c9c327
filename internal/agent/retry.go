package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	maxRetries    = 3
	baseDelay     = 2 * time.Second
	maxDelay      = 30 * time.Second
	jitterPercent = 30 // ±30% jitter
)

// isRetryableError reports whether a narrative service error is transient:
// rate limiting, overload, 5xx, or a dropped connection.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())

	for _, marker := range []string{
		"429", "rate limit", "rate_limit", "resource_exhausted", // quota
		"529", "overloaded", "unavailable", // capacity
		"500", "502", "503", "504", // server
		"connection refused", "connection reset", "timeout", "eof", "temporary failure", // network
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// retryDelay returns the delay before retry n (0-indexed) with jitter.
func retryDelay(attempt int) time.Duration {
	delay := baseDelay
	for range attempt {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	spread := int64(delay) * jitterPercent / 100
	jitter := time.Duration(rand.Int64N(2*spread+1) - spread)
	return delay + jitter
}

// sleepWithContext sleeps for d, returning early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func formatRetryMessage(attempt, maxAttempts int, delay time.Duration, err error) string {
	return fmt.Sprintf("连接不稳定，%s 后重试 (%d/%d): %s",
		delay.Round(time.Millisecond), attempt+1, maxAttempts, truncateError(err))
}

func truncateError(err error) string {
	s := err.Error()
	if r := []rune(s); len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return s
}
