package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/asklake/asklake/internal/observability"
)

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		MaxJitter:   DefaultMaxJitter,
	}
}

// Invoker wraps a Client and retries throttled invocations. It holds no per
// request state and is safe for concurrent use.
type Invoker struct {
	Client Client
	Policy RetryPolicy
	Logger *slog.Logger

	// Sleep and Jitter default to a context-aware timer and a uniform random
	// source. Tests replace them to observe the schedule without waiting.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(max time.Duration) time.Duration
}

func NewInvoker(client Client, policy RetryPolicy, logger *slog.Logger) (*Invoker, error) {
	if client == nil {
		return nil, fmt.Errorf("generator client is required")
	}
	if policy.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", policy.MaxAttempts)
	}
	return &Invoker{Client: client, Policy: policy, Logger: logger}, nil
}

func (i *Invoker) InvokeWithRetry(ctx context.Context, req Request) (Response, error) {
	maxAttempts := i.Policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	schedule := &ThrottleBackOff{
		BaseDelay: i.Policy.BaseDelay,
		MaxDelay:  i.Policy.MaxDelay,
		MaxJitter: i.Policy.MaxJitter,
		Jitter:    i.Jitter,
	}
	sleep := i.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 0; ; attempt++ {
		resp, err := i.Client.Invoke(ctx, req)
		throttled := err != nil && IsThrottling(err)
		observability.ObserveGeneratorAttempt(throttled)
		if err == nil {
			return resp, nil
		}
		if !throttled || attempt >= maxAttempts-1 {
			return Response{}, err
		}

		delay := schedule.NextBackOff()
		if i.Logger != nil {
			i.Logger.WarnContext(ctx, "generator throttled, retrying",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", maxAttempts),
				slog.String("delay", delay.String()),
				slog.Any("error", err),
			)
		}
		if err := sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
