package middleware

import (
	"context"
	goerrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sweetpotato0/auto-concierge/errors"
	"github.com/sweetpotato0/auto-concierge/provider"
)

func TestChainOrdering(t *testing.T) {
	var trace []string
	tag := func(name string) Middleware {
		return func(next provider.ModelClient) provider.ModelClient {
			return provider.Func(func(ctx context.Context, prompt string) (string, error) {
				trace = append(trace, name)
				return next.Generate(ctx, prompt)
			})
		}
	}
	base := provider.Func(func(ctx context.Context, prompt string) (string, error) {
		trace = append(trace, "base")
		return "ok", nil
	})

	client := Chain(base, tag("outer"), tag("inner"))
	if _, err := client.Generate(context.Background(), "p"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got := strings.Join(trace, ","); got != "outer,inner,base" {
		t.Errorf("Unexpected execution order: %s", got)
	}
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	flaky := provider.Func(func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("%w: transient", errors.ErrModelUnavailable)
		}
		return "recovered", nil
	})

	client := Chain(flaky, Retry(3, 0))
	content, err := client.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("Expected recovery, got %v", err)
	}
	if content != "recovered" || calls != 3 {
		t.Errorf("Expected success on call 3, got %q after %d calls", content, calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	down := provider.Func(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", fmt.Errorf("%w: down", errors.ErrModelUnavailable)
	})

	client := Chain(down, Retry(2, 0))
	_, err := client.Generate(context.Background(), "p")
	if !goerrors.Is(err, errors.ErrModelUnavailable) {
		t.Fatalf("Expected last error surfaced, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	down := provider.Func(func(ctx context.Context, prompt string) (string, error) {
		calls++
		cancel()
		return "", fmt.Errorf("%w: down", errors.ErrModelUnavailable)
	})

	client := Chain(down, Retry(5, 0))
	if _, err := client.Generate(ctx, "p"); err == nil {
		t.Fatalf("Expected error")
	}
	if calls != 1 {
		t.Errorf("Cancellation must stop retries, got %d calls", calls)
	}
}

func TestRateLimiter(t *testing.T) {
	base := provider.Func(func(ctx context.Context, prompt string) (string, error) {
		return "ok", nil
	})
	limiter := NewRateLimiter(2)
	client := Chain(base, limiter.Wrap())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := client.Generate(ctx, "p"); err != nil {
			t.Fatalf("Call %d should pass: %v", i, err)
		}
	}
	if _, err := client.Generate(ctx, "p"); !goerrors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("Expected ErrRateLimitExceeded, got %v", err)
	}
	if limiter.Count() != 2 {
		t.Errorf("Expected 2 counted calls, got %d", limiter.Count())
	}

	limiter.Reset()
	if _, err := client.Generate(ctx, "p"); err != nil {
		t.Errorf("Reset should re-open the limiter: %v", err)
	}
}

func TestPromptLimit(t *testing.T) {
	base := provider.Func(func(ctx context.Context, prompt string) (string, error) {
		return "ok", nil
	})
	client := Chain(base, PromptLimit(10))

	if _, err := client.Generate(context.Background(), "short"); err != nil {
		t.Errorf("Short prompt should pass: %v", err)
	}
	_, err := client.Generate(context.Background(), strings.Repeat("x", 11))
	if !goerrors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for oversized prompt, got %v", err)
	}
}
