package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Policy controls how table calls are retried.
type Policy struct {
	QuotaBackoff     time.Duration // Fixed wait after a quota error
	MaxQuotaRetries  int           // 0 retries quota errors without bound
	TransientRetries int           // Retries after a transient error before giving up
	TransientBackoff time.Duration // Initial transient backoff, doubled per retry
	CallTimeout      time.Duration // Deadline for a single attempt; 0 disables
}

// DefaultPolicy returns the policy tuned for the Sheets per-minute quota.
func DefaultPolicy() Policy {
	return Policy{
		QuotaBackoff:     20 * time.Second,
		TransientRetries: 3,
		TransientBackoff: time.Second,
		CallTimeout:      30 * time.Second,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryEvent describes one wait before a retry.
type RetryEvent struct {
	Op      string
	Kind    Kind
	Attempt int
	Wait    time.Duration
	Err     error
}

// Retrier runs table operations under a Policy.
type Retrier struct {
	policy  Policy
	sleep   Sleeper
	logger  *slog.Logger
	onRetry func(RetryEvent)
}

// RetryOption configures a Retrier.
type RetryOption func(*Retrier)

// WithSleeper replaces the real-time sleeper.
func WithSleeper(s Sleeper) RetryOption {
	return func(r *Retrier) {
		r.sleep = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RetryOption {
	return func(r *Retrier) {
		r.logger = logger
	}
}

// WithOnRetry registers a hook called before every wait.
func WithOnRetry(fn func(RetryEvent)) RetryOption {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// NewRetrier creates a Retrier.
func NewRetrier(p Policy, opts ...RetryOption) *Retrier {
	r := &Retrier{
		policy: p,
		sleep:  Sleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the retry policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the retry
// budget for its error kind is spent. Quota errors wait a fixed interval and
// retry the same call; transient errors back off exponentially with jitter.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var quotaRetries, transientRetries int
	backoff := r.policy.TransientBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.call(ctx, op, fn)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		kind := KindOf(err)
		var wait time.Duration
		var attempt int

		switch kind {
		case KindQuota:
			quotaRetries++
			if r.policy.MaxQuotaRetries > 0 && quotaRetries > r.policy.MaxQuotaRetries {
				return fmt.Errorf("%s: quota retries exhausted: %w", op, err)
			}
			attempt = quotaRetries
			wait = r.policy.QuotaBackoff
			r.logger.Info("quota exceeded, backing off",
				"op", op,
				"attempt", attempt,
				"backoff", wait,
			)

		case KindTransient:
			transientRetries++
			if transientRetries > r.policy.TransientRetries {
				return fmt.Errorf("%s: max retries exceeded: %w", op, err)
			}
			attempt = transientRetries
			wait = jitter(backoff)
			backoff *= 2
			r.logger.Debug("retrying table call",
				"op", op,
				"attempt", attempt,
				"backoff", wait,
				"error", err,
			)

		default:
			return err
		}

		if r.onRetry != nil {
			r.onRetry(RetryEvent{Op: op, Kind: kind, Attempt: attempt, Wait: wait, Err: err})
		}

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// call runs one attempt under the per-call deadline. An attempt that hits its
// own deadline while the parent is still live is transient.
func (r *Retrier) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if r.policy.CallTimeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.policy.CallTimeout)
	defer cancel()

	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && KindOf(err) == KindUnknown {
		return NewError(KindTransient, op, err)
	}
	return err
}

// jitter returns backoff * (0.5 to 1.5).
func jitter(backoff time.Duration) time.Duration {
	if backoff <= 0 {
		return 0
	}
	return backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
}
