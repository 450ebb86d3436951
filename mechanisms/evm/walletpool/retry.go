package walletpool

import (
	"context"
	"strings"
	"time"
)

var nonceErrorSubstrings = []string{
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"already known",
	"oldnonce",
	"noncetoolow",
}

// IsNonceError reports whether err's message matches one of the nonce-contention
// signatures an EVM RPC endpoint returns when two wallets race on the same nonce.
func IsNonceError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range nonceErrorSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// WithRetry runs fn up to cfg.MaxRetryAttempts times, waiting cfg.RetryDelay
// between attempts, stopping early on a non-nonce error or context cancellation.
func WithRetry[T any](ctx context.Context, cfg Config, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(cfg.RetryDelay):
			}
		}
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsNonceError(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
