// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudmirror/cloudmirror/internal/logger"
)

// mockWorker is a test implementation of the Worker interface
// that tracks how many times Run was called.
type mockWorker struct {
	runCount int
}

func (m *mockWorker) Run() {
	m.runCount++
}

func TestWorkers_Run_AllWorkersAreCalled(t *testing.T) {
	w1 := &mockWorker{}
	w2 := &mockWorker{}
	w3 := &mockWorker{}

	ws := NewWorkers(w1, w2, w3)
	ws.Run()

	for i, w := range []*mockWorker{w1, w2, w3} {
		if w.runCount != 1 {
			t.Errorf("worker[%d]: expected runCount=1, got %d", i, w.runCount)
		}
	}
}

func TestWorkers_Run_Empty(t *testing.T) {
	ws := NewWorkers()

	// Should not panic on empty workers list
	ws.Run()
}

// countingSyncer counts Sync invocations.
type countingSyncer struct {
	calls atomic.Int64
	err   error
}

func (s *countingSyncer) Sync(_ context.Context) error {
	s.calls.Add(1)
	return s.err
}

func TestSyncWorker_RunsPeriodically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer := &countingSyncer{}
	w := NewSyncWorker(ctx, syncer, 10*time.Millisecond, logger.Nop())
	w.Run()

	deadline := time.After(2 * time.Second)
	for syncer.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 sync passes, got %d", syncer.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSyncWorker_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	syncer := &countingSyncer{}
	w := NewSyncWorker(ctx, syncer, 5*time.Millisecond, logger.Nop())
	w.Run()

	// Let it tick, then cancel and verify the loop goes quiet.
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	settled := syncer.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := syncer.calls.Load(); got != settled {
		t.Errorf("worker kept ticking after cancel: %d -> %d", settled, got)
	}
}

func TestSyncWorker_KeepsRunningAfterSyncError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer := &countingSyncer{err: errors.New("wire down")}
	w := NewSyncWorker(ctx, syncer, 5*time.Millisecond, logger.Nop())
	w.Run()

	deadline := time.After(2 * time.Second)
	for syncer.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected the loop to survive sync errors, got %d calls", syncer.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
