package ai

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	apperrors "resumetailor/internal/errors"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// retryPolicy bounds a model call: maxRetries extra attempts, each with its own timeout.
type retryPolicy struct {
	maxRetries int
	timeout    time.Duration
	// backoff returns the pause before the given retry attempt (1-based)
	backoff func(attempt int) time.Duration
}

func newRetryPolicy(maxRetries int, timeout time.Duration) retryPolicy {
	return retryPolicy{maxRetries: max(maxRetries, 0), timeout: timeout, backoff: jitteredBackoff}
}

// jitteredBackoff is exponential with up to 10% jitter, capped at 30 seconds.
func jitteredBackoff(attempt int) time.Duration {
	baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	jitter := time.Duration(0)
	if jitterMax := int64(float64(baseDelay) * 0.1); jitterMax > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			jitter = time.Duration(n.Int64())
		}
	}
	return min(baseDelay+jitter, 30*time.Second)
}

// executeWithRetry runs fn until it succeeds, fails with a non-retryable
// error, or runs out of attempts.
func executeWithRetry(ctx context.Context, operation string, policy retryPolicy, logger *apperrors.Logger,
	fn func(ctx context.Context) (*Response, error)) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= policy.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", policy.maxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(policy.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := runAttempt(ctx, policy.timeout, fn)
		if err == nil {
			if attempt > 0 {
				logger.Info("AI operation succeeded after retry",
					"operation", operation,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err

		// The caller gave up; another attempt cannot help.
		if ctx.Err() != nil {
			break
		}
		if !isRetryableError(err) {
			logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", operation,
				"error", err.Error())
			break
		}
	}

	logger.LogError(lastErr, "AI operation failed after all retry attempts",
		"operation", operation,
		"max_retries", policy.maxRetries)

	return nil, fmt.Errorf("operation '%s' failed: %w", operation, lastErr)
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (*Response, error)) (*Response, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// An attempt ran into its own deadline.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.Code)
	}

	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return isRetryableStatus(openaiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return isRetryableStatus(reqErr.HTTPStatusCode)
	}

	return false
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
