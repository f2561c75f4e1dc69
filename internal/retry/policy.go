package retry

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/pagepub/internal/config"
	perrors "git.home.luguber.info/inful/pagepub/internal/errors"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	Mode       config.RetryBackoffMode // fixed|linear|exponential
	Initial    time.Duration           // base delay
	Max        time.Duration           // cap for growth
	MaxRetries int                     // maximum retry attempts after the first failure
}

// DefaultPolicy returns a sensible default policy (linear, 1s initial, 30s cap, 2 retries).
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 2}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	if mode != "" {
		switch mode {
		case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
			p.Mode = mode
		default:
			// unknown -> keep default
		}
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromPublishConfig builds a policy from publish tuning knobs.
func FromPublishConfig(pc config.PublishConfig) Policy {
	return NewPolicy(pc.RetryBackoff, pc.RetryInitial, pc.RetryMax, pc.RetryMaxAttempts)
}

// Delay returns the backoff delay for the given retry attempt number (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		d := p.Initial * (1 << (retryCount - 1))
		if d > p.Max {
			return p.Max
		}
		return d
	case config.RetryBackoffLinear:
		fallthrough
	default:
		d := p.Initial * time.Duration(retryCount)
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// String renders the policy for logs.
func (p Policy) String() string {
	return fmt.Sprintf("%s initial=%s max=%s retries=%d", p.Mode, p.Initial, p.Max, p.MaxRetries)
}

// Do runs fn, retrying transient failures per the policy. Permanent failures
// (not marked retryable via internal/errors) return immediately. The context
// bounds the whole loop including backoff sleeps.
func Do(ctx context.Context, p Policy, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.Delay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !perrors.IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("failed after %d retries: %w", p.MaxRetries, lastErr)
}
