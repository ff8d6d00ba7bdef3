// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"sync"
	"time"
)

// rateLimiter caps mutating requests per device with a fixed per-minute
// window. Exceeding the cap yields the time until the window resets, which
// the transport reports as a retry-after.
type rateLimiter struct {
	mu        sync.Mutex
	perMinute int
	now       func() time.Time
	windows   map[string]*rateWindow
}

type rateWindow struct {
	start time.Time
	count int
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		now:       time.Now,
		windows:   make(map[string]*rateWindow),
	}
}

// allow consumes one slot for the device. When the cap is exhausted it
// returns false and how long until the device may retry.
func (l *rateLimiter) allow(device string) (bool, time.Duration) {
	if l.perMinute <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[device]
	if w == nil || now.Sub(w.start) >= time.Minute {
		l.windows[device] = &rateWindow{start: now, count: 1}
		return true, 0
	}
	if w.count < l.perMinute {
		w.count++
		return true, 0
	}
	return false, w.start.Add(time.Minute).Sub(now)
}
