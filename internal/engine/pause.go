// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import (
	"sync"
	"time"
)

// Pauser is the shared rate-limit gate. When the server answers with a
// retry-after, every submission path holds off until the deadline passes.
// Reads vastly outnumber writes, hence the RWMutex.
type Pauser struct {
	mu    sync.RWMutex
	until time.Time
	now   func() time.Time
}

func NewPauser() *Pauser {
	return &Pauser{now: time.Now}
}

// PauseFor extends the pause deadline by d from now. A shorter new deadline
// never rolls an existing one back.
func (p *Pauser) PauseFor(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline := p.now().Add(d)
	if deadline.After(p.until) {
		p.until = deadline
	}
}

// Active reports whether submissions are currently gated.
func (p *Pauser) Active() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.now().Before(p.until)
}

// Remaining returns how long until the gate opens, zero when open.
func (p *Pauser) Remaining() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if d := p.until.Sub(p.now()); d > 0 {
		return d
	}
	return 0
}
