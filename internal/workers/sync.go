// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package workers

import (
	"context"
	"time"

	"github.com/cloudmirror/cloudmirror/internal/logger"
)

// Syncer is the slice of the engine the periodic worker drives.
type Syncer interface {
	Sync(ctx context.Context) error
}

// SyncWorker runs a synchronization pass on a fixed interval, as a safety
// net for pushes that were deferred (offline periods, rate-limit pauses)
// and never re-triggered by a local save.
type SyncWorker struct {
	engine   Syncer
	interval time.Duration
	logger   *logger.Logger
	ctx      context.Context
}

func NewSyncWorker(ctx context.Context, engine Syncer, interval time.Duration, log *logger.Logger) *SyncWorker {
	return &SyncWorker{
		engine:   engine,
		interval: interval,
		logger:   log,
		ctx:      ctx,
	}
}

// Run starts the periodic loop in a goroutine and returns immediately. The
// loop stops when the worker's context is cancelled.
func (w *SyncWorker) Run() {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				if err := w.engine.Sync(w.ctx); err != nil {
					w.logger.Warn().Err(err).Msg("periodic sync failed")
				}
			}
		}
	}()
}
