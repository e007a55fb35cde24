package llm

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/aretw0/errand/internal/logging"
	"golang.org/x/time/rate"
)

// RetryPolicy controls exponential backoff between attempts.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	Jitter          bool
}

// DefaultRetryPolicy retries three times starting at half a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     8 * time.Second,
		Jitter:          true,
	}
}

// NextDelay returns the wait before attempt+1.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(p.InitialInterval) * math.Pow(factor, float64(attempt-1))
	if p.MaxInterval > 0 {
		delay = math.Min(delay, float64(p.MaxInterval))
	}
	d := time.Duration(delay)
	if p.Jitter && d > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(d)/2+1)); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	return max(d, 0)
}

// Resilient wraps a Client with per-call timeouts, rate limiting and retries
// of recoverable failures.
type Resilient struct {
	next    Client
	policy  RetryPolicy
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Resilient client.
type Option func(*Resilient)

// WithRetryPolicy overrides the backoff policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Resilient) { r.policy = p }
}

// WithRateLimit caps calls per second with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *Resilient) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(r *Resilient) { r.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resilient) { r.logger = l }
}

// NewResilient wraps next.
func NewResilient(next Client, opts ...Option) *Resilient {
	r := &Resilient{
		next:    next,
		policy:  DefaultRetryPolicy(),
		timeout: 60 * time.Second,
		logger:  logging.NewNop(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy.MaxAttempts < 1 {
		r.policy.MaxAttempts = 1
	}
	return r
}

// Complete runs the request, retrying recoverable errors with backoff.
// The returned error is always an *Error.
func (r *Resilient) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr *Error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", Classify(err)
			}
		}

		out, err := r.attempt(ctx, req)
		if err == nil {
			return out, nil
		}

		lastErr = Classify(err)
		if !lastErr.Recoverable || ctx.Err() != nil || attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.policy.NextDelay(attempt)
		r.logger.Warn("LLM call failed, retrying",
			"call", req.Name, "attempt", attempt, "category", lastErr.Category, "delay", delay, "error", err)
		if err := r.sleep(ctx, delay); err != nil {
			return "", Classify(err)
		}
	}
	return "", lastErr
}

func (r *Resilient) attempt(ctx context.Context, req Request) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.next.Complete(ctx, req)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
