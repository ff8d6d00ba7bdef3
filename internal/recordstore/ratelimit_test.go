// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(perMinute int) (*rateLimiter, func(d time.Duration)) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	l := newRateLimiter(perMinute)
	l.now = func() time.Time { return now }
	advance := func(d time.Duration) { now = now.Add(d) }
	return l, advance
}

func TestRateLimiter_AllowsUpToCap(t *testing.T) {
	l, _ := newTestLimiter(3)

	for i := 0; i < 3; i++ {
		ok, _ := l.allow("dev-1")
		assert.True(t, ok, "request %d within the cap", i+1)
	}

	ok, retry := l.allow("dev-1")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	l, advance := newTestLimiter(1)

	ok, _ := l.allow("dev-1")
	assert.True(t, ok)
	ok, retry := l.allow("dev-1")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)

	advance(30 * time.Second)
	ok, retry = l.allow("dev-1")
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retry)

	advance(31 * time.Second)
	ok, _ = l.allow("dev-1")
	assert.True(t, ok, "a fresh window opens after a minute")
}

func TestRateLimiter_PerDeviceWindows(t *testing.T) {
	l, _ := newTestLimiter(1)

	ok, _ := l.allow("dev-1")
	assert.True(t, ok)
	ok, _ = l.allow("dev-2")
	assert.True(t, ok, "another device has its own window")
	ok, _ = l.allow("dev-1")
	assert.False(t, ok)
}

func TestRateLimiter_DisabledWhenUnconfigured(t *testing.T) {
	l, _ := newTestLimiter(0)

	for i := 0; i < 100; i++ {
		ok, _ := l.allow("dev-1")
		assert.True(t, ok)
	}
}
