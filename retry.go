package strata

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// RetryPolicy decides how a failing call is retried. The zero value is not
// usable; build one with NewRetryPolicy.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration // 0 = uncapped
	Timeout     time.Duration // overall budget across attempts; 0 = no limit

	// Backoff returns the wait before retry i (0-indexed). Defaults to
	// exponential backoff with jitter.
	Backoff func(base time.Duration, i int) time.Duration
	// Sleep blocks for d or until ctx is done. Tests inject a no-op.
	Sleep func(ctx context.Context, d time.Duration) error
	// Retryable classifies errors. Defaults to IsTransient.
	Retryable func(error) bool
	Logger    *slog.Logger
}

// RetryOption configures a RetryPolicy.
type RetryOption func(*RetryPolicy)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(p *RetryPolicy) { p.MaxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second attempt (default: 1s).
// Each subsequent delay doubles: baseDelay, 2×baseDelay, 4×baseDelay, …
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) { p.BaseDelay = d }
}

// RetryMaxDelay caps a single backoff wait.
func RetryMaxDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) { p.MaxDelay = d }
}

// RetryTimeout sets the overall timeout for the entire retry sequence. The
// zero value (default) disables the timeout.
func RetryTimeout(d time.Duration) RetryOption {
	return func(p *RetryPolicy) { p.Timeout = d }
}

// RetryLogger sets the structured logger for retry events. Retries log at
// WARN and exhaustion at ERROR. If not set, nothing is logged.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(p *RetryPolicy) { p.Logger = l }
}

// RetryBackoff replaces the backoff function.
func RetryBackoff(fn func(base time.Duration, i int) time.Duration) RetryOption {
	return func(p *RetryPolicy) { p.Backoff = fn }
}

// RetrySleep replaces the wait between attempts.
func RetrySleep(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(p *RetryPolicy) { p.Sleep = fn }
}

// RetryIf replaces the retryable-error classifier.
func RetryIf(fn func(error) bool) RetryOption {
	return func(p *RetryPolicy) { p.Retryable = fn }
}

// NewRetryPolicy returns a policy with 3 attempts and a 1s base delay,
// adjusted by opts.
func NewRetryPolicy(opts ...RetryOption) RetryPolicy {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	for _, o := range opts {
		o(&p)
	}
	return p.withDefaults()
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Backoff == nil {
		p.Backoff = retryBackoff
	}
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	if p.Logger == nil {
		p.Logger = nopLogger
	}
	return p
}

// Validate rejects policies that could never make a call.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return &ValidationError{Field: "retry max attempts", Reason: "must be at least 1"}
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 || p.Timeout < 0 {
		return &ValidationError{Field: "retry delay", Reason: "must not be negative"}
	}
	return nil
}

// Do runs fn until it succeeds, fails permanently or attempts run out.
// It returns the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) (int, error) {
	_, n, err := Retry(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return n, err
}

// Retry is the generic form of RetryPolicy.Do.
func Retry[T any](ctx context.Context, p RetryPolicy, name string, fn func(ctx context.Context) (T, error)) (T, int, error) {
	p = p.withDefaults()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Timeout > 0 {
		deadline := time.Now().Add(p.Timeout)
		if existing, ok := ctx.Deadline(); !ok || deadline.Before(existing) {
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadline(ctx, deadline)
			defer cancel()
		}
	}

	var zero T
	var last error
	for i := 0; i < p.MaxAttempts; i++ {
		result, err := fn(ctx)
		if err == nil || !p.Retryable(err) {
			return result, i + 1, err
		}
		last = err
		p.Logger.Warn("retrying transient error",
			"op", name,
			"status", statusOf(err),
			"attempt", i+1,
			"max_attempts", p.MaxAttempts,
			"error", err)
		if i < p.MaxAttempts-1 {
			if serr := p.Sleep(ctx, p.delay(i, err)); serr != nil {
				return zero, i + 1, serr
			}
		}
	}
	p.Logger.Error("all retry attempts exhausted",
		"op", name,
		"attempts", p.MaxAttempts,
		"error", last)
	return zero, p.MaxAttempts, last
}

// delay computes the wait before retry i: the backoff, raised to the
// server's Retry-After when that is longer, capped by MaxDelay.
func (p RetryPolicy) delay(i int, err error) time.Duration {
	d := p.Backoff(p.BaseDelay, i)
	if ra := retryAfterOf(err); ra > d {
		d = ra
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// statusOf extracts the HTTP status code from an ErrHTTP, or 0.
func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryAfterOf extracts the Retry-After duration from an ErrHTTP, or 0.
func retryAfterOf(err error) time.Duration {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// retryBackoff returns the delay for retry i (0-indexed).
// Exponential: base * 2^i, plus up to 50% random jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	if base <= 0 {
		return 0
	}
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

// retryEmbeddingProvider wraps an EmbeddingProvider and retries transient
// failures according to a RetryPolicy.
type retryEmbeddingProvider struct {
	inner  EmbeddingProvider
	policy RetryPolicy
}

// WithEmbeddingRetry wraps p with automatic retry on transient failures.
// Compose with any EmbeddingProvider:
//
//	emb = strata.WithEmbeddingRetry(openaicompat.NewEmbedding(key, model, 1536))
//	emb = strata.WithEmbeddingRetry(emb, strata.RetryMaxAttempts(5))
func WithEmbeddingRetry(p EmbeddingProvider, opts ...RetryOption) EmbeddingProvider {
	return &retryEmbeddingProvider{inner: p, policy: NewRetryPolicy(opts...)}
}

func (r *retryEmbeddingProvider) Name() string    { return r.inner.Name() }
func (r *retryEmbeddingProvider) Dimensions() int { return r.inner.Dimensions() }

func (r *retryEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, _, err := Retry(ctx, r.policy, r.inner.Name()+".embed", func(ctx context.Context) ([][]float32, error) {
		return r.inner.Embed(ctx, texts)
	})
	return vecs, err
}

var _ EmbeddingProvider = (*retryEmbeddingProvider)(nil)
