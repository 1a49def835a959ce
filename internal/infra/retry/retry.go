// Package retry decides whether a failed remote call is attempted again and
// runs calls under that decision with a failsafe-go retry policy.
//
// Only Transient failures are retried. Absence, Auth and Validation are
// terminal on the first attempt. Delays grow as unit·2ⁿ, capped at MaxDelay.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/ledgerline/debtsync/internal/domain"
	"github.com/ledgerline/debtsync/internal/infra/observability"
)

// Config bounds retries. Zero durations fall back to DefaultConfig.
type Config struct {
	MaxRetries  int
	BackoffUnit time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig returns production defaults: two retries, 2s then 4s.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  2,
		BackoffUnit: time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = def.BackoffUnit
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.MaxDelay < c.BackoffUnit {
		c.MaxDelay = c.BackoffUnit
	}
	return c
}

// Backoff returns the delay before retry number attempt (1-based).
func (c Config) Backoff(attempt int) time.Duration {
	c = c.normalize()
	if attempt < 0 {
		attempt = 0
	}
	d := c.BackoffUnit
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}

// Backoff is DefaultConfig().Backoff.
func Backoff(attempt int) time.Duration {
	return DefaultConfig().Backoff(attempt)
}

// Retryable reports whether err is worth another attempt.
// Unclassified errors (transport failures, timeouts) are treated as Transient;
// caller cancellation is not retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch domain.KindOf(err) {
	case domain.KindTransient:
		return true
	case domain.KindAbsence, domain.KindAuth, domain.KindValidation:
		return false
	}
	var conflict *domain.SyncConflictError
	if errors.As(err, &conflict) {
		return false
	}
	return !errors.Is(err, domain.ErrInvalidMutation) && !errors.Is(err, domain.ErrRemoteMalformed)
}

// Decision is the outcome of Decide.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide reports whether the call that just failed with err on the given
// attempt (0 for the first call) should run again, and after how long.
func (c Config) Decide(err error, attempt int) Decision {
	c = c.normalize()
	if !Retryable(err) || attempt >= c.MaxRetries {
		return Decision{}
	}
	return Decision{Retry: true, Delay: c.Backoff(attempt + 1)}
}

// Decide is DefaultConfig().Decide.
func Decide(err error, attempt int) Decision {
	return DefaultConfig().Decide(err, attempt)
}

// ─── Executor ───────────────────────────────────────────────────────────────

// Policy builds a failsafe-go retry policy for results of type T.
func Policy[T any](cfg Config) retrypolicy.RetryPolicy[T] {
	cfg = cfg.normalize()
	return retrypolicy.NewBuilder[T]().
		WithBackoff(cfg.Backoff(1), cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		HandleIf(func(_ T, err error) bool {
			return Retryable(err)
		}).
		ReturnLastFailure().
		OnRetryScheduled(func(e failsafe.ExecutionScheduledEvent[T]) {
			observability.RemoteRetries.WithLabelValues(kindLabel(e.LastError())).Inc()
		}).
		Build()
}

// Do runs fn under cfg's retry policy. The returned error is the last
// failure, unwrapped from the policy.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	return failsafe.With(Policy[T](cfg)).WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[T]) (T, error) {
		return fn(exec.Context())
	})
}

func kindLabel(err error) string {
	if k := domain.KindOf(err); k != 0 {
		return k.String()
	}
	return "transport"
}
