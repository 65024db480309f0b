//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package model

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"
)

// RetryCondition determines whether an error is retryable.
type RetryCondition interface {
	Match(err error) bool
}

// RetryConditionFunc is an adapter to allow the use of ordinary
// functions as RetryCondition.
type RetryConditionFunc func(error) bool

// Match calls f(err).
func (f RetryConditionFunc) Match(err error) bool { return f(err) }

// RetryPolicy defines retry configuration for completion calls.
// Attempts are counted inclusive of the first try: MaxAttempts=3 means
// 1 initial try + up to 2 retries. Only transport-level failures are
// retried; a completion that parses badly is a new planning turn, never
// a silent retry.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	Jitter          bool
	RetryOn         []RetryCondition
}

// DefaultRetryPolicy returns the policy used when none is configured:
// 3 attempts with exponential backoff on timeouts and transient network
// failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     5 * time.Second,
		Jitter:          true,
		RetryOn:         []RetryCondition{RetryConditionFunc(IsTransientError)},
	}
}

// NextDelay returns the backoff delay before the given attempt number.
// attempt starts at 1 for the first try; delay applies before the next
// retry, so callers typically pass the current attempt count.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialInterval)
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1.0
	}
	if attempt > 1 {
		delay *= math.Pow(factor, float64(attempt-1))
	}
	maxInt := p.MaxInterval
	if maxInt <= 0 {
		maxInt = p.InitialInterval
	}
	if maxInt > 0 {
		delay = math.Min(delay, float64(maxInt))
	}
	d := time.Duration(delay)
	if p.Jitter && d > 0 {
		// Additive jitter in [0, d). Use crypto/rand to avoid gosec G404.
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(d))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

// ShouldRetry reports whether the given error matches any of the
// policy's conditions. An empty condition list retries nothing.
func (p RetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	for _, c := range p.RetryOn {
		if c != nil && c.Match(err) {
			return true
		}
	}
	return false
}

// IsTransientError reports whether an error looks like a transient
// transport failure: timeouts and temporary network errors. Context
// cancellation is never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
