// Package ratelimiter throttles connection admission with a token bucket.
//
// The mover serves one request per connection, so limiting accepted
// connections per second is equivalent to limiting request throughput. The
// bucket refills at the sustained rate while the burst capacity absorbs
// short connection spikes without turning clients away.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// unlimited stands in for rate.Inf, which misbehaves with SetLimit.
const unlimited = 1_000_000_000

// ConnLimiter bounds the rate of admitted connections. All methods are safe
// for concurrent use.
type ConnLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter admitting connsPerSecond sustained with the given
// burst capacity. A zero rate disables limiting. A zero burst defaults to
// the rate; a bucket that can never hold a token would admit nothing.
func New(connsPerSecond, burst uint) *ConnLimiter {
	if connsPerSecond == 0 {
		connsPerSecond = unlimited
		burst = unlimited
	}
	if burst == 0 {
		burst = connsPerSecond
	}

	return &ConnLimiter{
		limiter: rate.NewLimiter(rate.Limit(connsPerSecond), int(burst)),
	}
}

// Allow reports whether a connection may be admitted right now, consuming a
// token when it may. Use this to reject over-rate connections outright.
func (l *ConnLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait blocks until a token is available or ctx is cancelled. Use this to
// throttle the accept loop instead of rejecting.
func (l *ConnLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// SetLimit adjusts the sustained rate at runtime. The burst follows the new
// rate when it was not set to a custom larger value.
func (l *ConnLimiter) SetLimit(connsPerSecond uint) {
	if connsPerSecond == 0 {
		connsPerSecond = unlimited
	}

	oldRate := uint(l.limiter.Limit())
	oldBurst := uint(l.limiter.Burst())
	l.limiter.SetLimit(rate.Limit(connsPerSecond))

	if oldBurst == oldRate*2 || oldBurst <= oldRate {
		l.limiter.SetBurst(int(connsPerSecond * 2))
	}
}

// Tokens returns the tokens currently in the bucket, for monitoring.
func (l *ConnLimiter) Tokens() float64 {
	return l.limiter.Tokens()
}
