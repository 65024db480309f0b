//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package model

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelayExponentialBackoff(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: 100 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     time.Second,
	}
	assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 400*time.Millisecond, p.NextDelay(3))
	// Capped at MaxInterval.
	assert.Equal(t, time.Second, p.NextDelay(10))
}

func TestNextDelayJitterBounds(t *testing.T) {
	p := RetryPolicy{
		InitialInterval: 100 * time.Millisecond,
		BackoffFactor:   2.0,
		MaxInterval:     time.Second,
		Jitter:          true,
	}
	for i := 0; i < 20; i++ {
		d := p.NextDelay(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 200*time.Millisecond)
	}
}

func TestShouldRetry(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.False(t, p.ShouldRetry(nil))
	assert.False(t, p.ShouldRetry(errors.New("validation failed")))
	assert.True(t, p.ShouldRetry(context.DeadlineExceeded))
	assert.True(t, p.ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))

	empty := RetryPolicy{MaxAttempts: 3}
	assert.False(t, empty.ShouldRetry(context.DeadlineExceeded))
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, IsTransientError(nil))
	assert.False(t, IsTransientError(context.Canceled))
	assert.True(t, IsTransientError(context.DeadlineExceeded))
	assert.True(t, IsTransientError(&net.OpError{Op: "read", Err: errors.New("reset")}))
	assert.False(t, IsTransientError(errors.New("bad request")))
}
