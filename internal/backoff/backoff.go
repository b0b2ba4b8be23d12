// Package backoff wraps cenkalti/backoff/v4 with the retry policy the
// catchup driver and live-stream client use: exponential delay capped at a
// maximum, retried up to an optional attempt count (unlimited by default).
package backoff

import (
	"context"
	"time"

	cenkalti "github.com/cenkalti/backoff/v4"
)

// Policy configures a retry loop. Zero value is not usable; use New.
type Policy struct {
	initial    time.Duration
	multiplier float64
	max        time.Duration
	maxRetries int
}

// Option configures a Policy.
type Option func(*Policy)

// WithInitial sets the first retry's delay.
func WithInitial(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.initial = d
		}
	}
}

// WithMultiplier sets the delay growth factor applied between attempts.
func WithMultiplier(m float64) Option {
	return func(p *Policy) {
		if m > 1 {
			p.multiplier = m
		}
	}
}

// WithMax sets the delay ceiling.
func WithMax(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.max = d
		}
	}
}

// WithMaxRetries sets how many attempts are made after the first failure
// before Run gives up and returns the last error. Zero means retry forever.
func WithMaxRetries(n int) Option {
	return func(p *Policy) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// New builds a Policy with the package defaults: 500ms initial delay, x2
// multiplier, 30s cap, unlimited retries. The live-stream client uses these
// as is; the catchup driver caps retries at 8.
func New(opts ...Option) Policy {
	p := Policy{
		initial:    500 * time.Millisecond,
		multiplier: 2,
		max:        30 * time.Second,
		maxRetries: 0,
	}
	for _, o := range opts {
		o(&p)
	}
	return p
}

func (p Policy) backOff() cenkalti.BackOff {
	eb := cenkalti.NewExponentialBackOff()
	eb.InitialInterval = p.initial
	eb.Multiplier = p.multiplier
	eb.MaxInterval = p.max
	eb.MaxElapsedTime = 0 // bounded by maxRetries instead of wall-clock time
	eb.RandomizationFactor = 0
	var bo cenkalti.BackOff = eb
	if p.maxRetries > 0 {
		bo = cenkalti.WithMaxRetries(bo, uint64(p.maxRetries))
	}
	return bo
}

// Run calls fn until it succeeds, ctx is canceled, or the policy's retry
// budget is exhausted. notify, if non-nil, is called after every failed
// attempt (including the last one, which is not followed by a sleep) with
// the error and the attempt number (1-based).
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error, notify func(err error, attempt int)) error {
	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err != nil && notify != nil {
			notify(err, attempt)
		}
		return err
	}
	return cenkalti.Retry(op, cenkalti.WithContext(p.backOff(), ctx))
}
