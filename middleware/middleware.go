package middleware

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweetpotato0/auto-concierge/errors"
	"github.com/sweetpotato0/auto-concierge/pkg/logging"
	"github.com/sweetpotato0/auto-concierge/provider"
)

// ErrRateLimitExceeded indicates the rate limiter rejected the call.
var ErrRateLimitExceeded = goerrors.New("rate limit exceeded")

// Middleware wraps a model client with cross-cutting behavior. Middlewares
// compose at wiring time, so the engine only ever sees a plain ModelClient.
type Middleware func(provider.ModelClient) provider.ModelClient

// Chain applies middlewares to client. The first middleware listed is the
// outermost wrapper.
func Chain(client provider.ModelClient, mws ...Middleware) provider.ModelClient {
	for i := len(mws) - 1; i >= 0; i-- {
		client = mws[i](client)
	}
	return client
}

// Logging records each generation call: prompt size, latency, and outcome.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = logging.WithComponent("model")
	}
	return func(next provider.ModelClient) provider.ModelClient {
		return provider.Func(func(ctx context.Context, prompt string) (string, error) {
			start := time.Now()
			content, err := next.Generate(ctx, prompt)
			elapsed := time.Since(start)
			if err != nil {
				logger.Error("model call failed", "prompt_chars", len(prompt), "elapsed", elapsed, "error", err)
				return "", err
			}
			logger.Debug("model call completed", "prompt_chars", len(prompt), "response_chars", len(content), "elapsed", elapsed)
			return content, nil
		})
	}
}

// Retry re-issues a failed generation up to attempts times total, sleeping
// backoff between tries. Context cancellation is never retried.
func Retry(attempts int, backoff time.Duration) Middleware {
	if attempts < 1 {
		attempts = 1
	}
	return func(next provider.ModelClient) provider.ModelClient {
		return provider.Func(func(ctx context.Context, prompt string) (string, error) {
			var lastErr error
			for i := 0; i < attempts; i++ {
				if i > 0 && backoff > 0 {
					select {
					case <-ctx.Done():
						return "", ctx.Err()
					case <-time.After(backoff):
					}
				}
				content, err := next.Generate(ctx, prompt)
				if err == nil {
					return content, nil
				}
				if ctx.Err() != nil {
					return "", err
				}
				lastErr = err
			}
			return "", lastErr
		})
	}
}

// RateLimiter caps the total number of generation calls until Reset. It
// protects demo and batch wiring from runaway model spend.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	counter     int
}

// NewRateLimiter creates a rate limiter allowing maxRequests calls.
func NewRateLimiter(maxRequests int) *RateLimiter {
	return &RateLimiter{maxRequests: maxRequests}
}

// Wrap returns the middleware enforcing the limit.
func (l *RateLimiter) Wrap() Middleware {
	return func(next provider.ModelClient) provider.ModelClient {
		return provider.Func(func(ctx context.Context, prompt string) (string, error) {
			l.mu.Lock()
			if l.counter >= l.maxRequests {
				l.mu.Unlock()
				return "", ErrRateLimitExceeded
			}
			l.counter++
			l.mu.Unlock()
			return next.Generate(ctx, prompt)
		})
	}
}

// Reset clears the call counter.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	l.counter = 0
	l.mu.Unlock()
}

// Count returns the number of calls made since the last reset.
func (l *RateLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counter
}

// PromptLimit rejects prompts above maxChars before they reach the provider.
func PromptLimit(maxChars int) Middleware {
	return func(next provider.ModelClient) provider.ModelClient {
		return provider.Func(func(ctx context.Context, prompt string) (string, error) {
			if maxChars > 0 && len(prompt) > maxChars {
				return "", fmt.Errorf("%w: prompt of %d chars exceeds limit %d", errors.ErrInvalidArgument, len(prompt), maxChars)
			}
			return next.Generate(ctx, prompt)
		})
	}
}
