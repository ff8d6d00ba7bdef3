// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

// Package engine implements bidirectional synchronization between the local
// object store and the remote record store: the history processor turns
// durable local change history into push batches, the pull pipeline walks
// remote record graphs into the local store, and the cache manager moves
// large binary payloads through resumable long-lived transfers.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudmirror/cloudmirror/internal/config"
	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/internal/remote"
	"github.com/cloudmirror/cloudmirror/internal/schema"
	"github.com/cloudmirror/cloudmirror/internal/store"
	"github.com/cloudmirror/cloudmirror/models"
)

// Module identifies the engine component an error originated from.
type Module string

const (
	ModuleHistory Module = "history"
	ModulePush    Module = "push"
	ModulePull    Module = "pull"
	ModuleCache   Module = "cache"
)

// Sink receives non-fatal engine errors and warnings. The engine keeps
// running after reporting; callers decide whether to surface or log them.
// A nil sink is replaced with a logging sink.
type Sink func(module Module, err error)

// Context names for commits originating inside the engine. The history
// processor skips these so engine-applied writes never echo back as pushes.
const (
	pullContextName    = "cloudmirror.pull"
	serviceContextName = "cloudmirror.service"
)

// isServiceContext reports whether a history transaction was produced by
// the engine itself rather than by application code.
func isServiceContext(name string) bool {
	return name == pullContextName || name == serviceContextName
}

// Engine owns the synchronization components and their wiring to the local
// store's observer bus.
type Engine struct {
	store  *store.Store
	remote remote.RecordStore
	meta   schema.Metadata
	logger *logger.Logger
	sink   Sink

	pauser  *Pauser
	conv    *Converter
	push    *PushPipeline
	pull    *PullPipeline
	history *HistoryProcessor
	cache   *CacheManager

	zone   string
	cancel context.CancelFunc
}

// Options tunes engine construction beyond the required collaborators.
type Options struct {
	Remote config.Remote

	// AssetsDir is the local directory for cached binary payloads.
	AssetsDir string

	// SaveDebounce is how long the history processor waits after a local
	// commit before processing, so bursts coalesce into one push.
	SaveDebounce time.Duration

	// DeletesFirst submits deletes before saves within a batch, so that a
	// delete-then-reinsert of the same record name lands in order. Saves
	// first is for backends that reject saves referencing records deleted
	// in the same request.
	DeletesFirst bool

	// Sink receives non-fatal errors. Optional.
	Sink Sink
}

// New assembles an engine over the given store, remote client and schema.
// Call Start to subscribe to local commits and begin processing.
func New(st *store.Store, rs remote.RecordStore, meta schema.Metadata, log *logger.Logger, opts Options) *Engine {
	if opts.SaveDebounce <= 0 {
		opts.SaveDebounce = 2 * time.Second
	}
	sink := opts.Sink
	if sink == nil {
		sink = func(module Module, err error) {
			log.Warn().Str("module", string(module)).Err(err).Msg("engine error")
		}
	}

	e := &Engine{
		store:  st,
		remote: rs,
		meta:   meta,
		logger: log,
		sink:   sink,
		zone:   opts.Remote.ZoneName,
		pauser: NewPauser(),
	}

	e.conv = NewConverter(st, meta, opts.Remote.ZoneName)
	e.push = NewPushPipeline(st, rs, e.conv, meta, e.pauser, sink, log, PushOptions{
		BatchLimit:   opts.Remote.BatchLimit,
		DeletesFirst: opts.DeletesFirst,
		Zone:         opts.Remote.ZoneName,
	})
	e.pull = NewPullPipeline(st, rs, e.conv, meta, e.pauser, sink, log, opts.Remote.BatchLimit)
	e.cache = NewCacheManager(st, rs, e.conv, meta, e.pauser, sink, log, opts.AssetsDir)
	e.history = NewHistoryProcessor(st, e.push, rs.CancelTransfer, e.cache.enqueue, e.pauser, meta, opts.Remote.ZoneName, sink, log, opts.SaveDebounce)

	return e
}

// Start prepares remote zones, subscribes the engine to local commits,
// resumes interrupted transfers and drains any pending local history.
// The engine runs until Stop or until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if err := e.ensureZones(runCtx); err != nil {
		cancel()
		return fmt.Errorf("prepare zones: %w", err)
	}

	e.store.Subscribe(e.history)
	e.store.Subscribe(e.cache)

	e.cache.Start(runCtx)
	if err := e.cache.RestartOperations(runCtx); err != nil {
		e.sink(ModuleCache, fmt.Errorf("restart transfers: %w", err))
	}

	e.history.Start(runCtx)
	e.history.Trigger()
	return nil
}

// Stop detaches the engine from the store and stops background work.
// In-flight transfers keep their persisted operation IDs and resume on the
// next Start.
func (e *Engine) Stop() {
	e.store.Unsubscribe(e.history)
	e.store.Unsubscribe(e.cache)
	e.history.Stop()
	e.cache.Stop()
	if e.cancel != nil {
		e.cancel()
	}
}

// SetOnline toggles push processing. While offline, local commits keep
// accumulating history; switching back online drains the backlog.
func (e *Engine) SetOnline(online bool) {
	e.history.SetOnline(online)
}

// Sync pushes pending local history and is the entry point for the
// periodic background worker.
func (e *Engine) Sync(ctx context.Context) error {
	return e.history.Process(ctx)
}

// HandleNotification ingests a change notification from the record store:
// the referenced records and everything reachable from them are pulled
// into the local store.
func (e *Engine) HandleNotification(ctx context.Context, ids []models.RecordID) error {
	return e.pull.PullRecords(ctx, ids)
}

// PushAllLocalData reuploads every local object, used for first-launch
// seeding and after zone loss.
func (e *Engine) PushAllLocalData(ctx context.Context) error {
	return e.push.PushAllLocalData(ctx)
}

// ensureZones creates the configured zone and its change subscription in
// every scope the schema uses. Both calls are idempotent on the server.
func (e *Engine) ensureZones(ctx context.Context) error {
	scopes := make(map[models.Scope]bool)
	for _, ent := range e.meta.Entities() {
		for _, s := range ent.EffectiveScopes() {
			scopes[s] = true
		}
	}
	for scope := range scopes {
		if err := e.remote.CreateZone(ctx, scope, e.zone); err != nil {
			return fmt.Errorf("create zone %s/%s: %w", scope, e.zone, err)
		}
		if err := e.remote.CreateSubscription(ctx, scope, e.zone); err != nil {
			return fmt.Errorf("subscribe zone %s/%s: %w", scope, e.zone, err)
		}
	}
	return nil
}
