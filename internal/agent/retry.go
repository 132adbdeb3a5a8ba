package agent

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how structured calls are retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

// DefaultRetryPolicy is three attempts with 1s, 2s backoff plus up to a
// second of jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxJitter:   time.Second,
	}
}

// Delay is the pause after the failed attempt with 0-based index attempt:
// 2^attempt * BaseDelay plus jitter.
func (p RetryPolicy) Delay(attempt int, jitter time.Duration) time.Duration {
	return time.Duration(1<<attempt)*p.BaseDelay + jitter
}

// RetryClient retries structured calls that fail transiently. Streams pass
// through untouched since partial output may already have been consumed.
type RetryClient struct {
	next   Generator
	policy RetryPolicy
	logger *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

var _ Generator = (*RetryClient)(nil)

type RetryOption func(*RetryClient)

func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(r *RetryClient) {
		r.logger = logger.With("component", "retry")
	}
}

// WithSleep replaces the wait between attempts. Tests use it to avoid
// real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *RetryClient) {
		r.sleep = sleep
	}
}

func WithJitter(jitter func(max time.Duration) time.Duration) RetryOption {
	return func(r *RetryClient) {
		r.jitter = jitter
	}
}

func NewRetryClient(next Generator, policy RetryPolicy, opts ...RetryOption) *RetryClient {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r := &RetryClient{
		next:   next,
		policy: policy,
		logger: slog.Default().With("component", "retry"),
		sleep:  sleepContext,
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GenerateStructured calls the wrapped generator up to MaxAttempts times.
// The last error is returned unchanged.
func (r *RetryClient) GenerateStructured(ctx context.Context, req StructuredRequest) (string, error) {
	var lastErr error

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		out, err := r.next.GenerateStructured(ctx, req)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded",
					"operation", req.Operation,
					"attempt", attempt+1)
			}
			return out, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return "", err
		}
		if attempt == r.policy.MaxAttempts-1 {
			break
		}

		delay := r.policy.Delay(attempt, r.jitter(r.policy.MaxJitter))
		r.logger.Warn("transient API error, retrying",
			"operation", req.Operation,
			"attempt", attempt+1,
			"max_attempts", r.policy.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err)

		if err := r.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	r.logger.Error("retries exhausted",
		"operation", req.Operation,
		"max_attempts", r.policy.MaxAttempts,
		"error", lastErr)
	return "", lastErr
}

func (r *RetryClient) GenerateStream(ctx context.Context, req StreamRequest) (Stream, error) {
	return r.next.GenerateStream(ctx, req)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
