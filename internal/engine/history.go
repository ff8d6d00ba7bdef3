// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/internal/schema"
	"github.com/cloudmirror/cloudmirror/internal/store"
	"github.com/cloudmirror/cloudmirror/models"
)

// HistoryProcessor drives the local-to-remote half of synchronization. It
// observes store commits: before a commit it assigns remote identity to new
// objects, and after a commit it schedules processing on a debounce timer
// so bursts of saves coalesce into one push run.
//
// Processing reads durable change history from the sync cursor forward and
// pushes one history transaction at a time. The cursor only advances after
// a transaction's push succeeds, so a crash or failure mid-run redelivers
// from the last settled point.
type HistoryProcessor struct {
	store          *store.Store
	push           *PushPipeline
	cancelTransfer func(operationID string)
	enqueueUpload  func(localID int64)
	pauser         *Pauser
	meta           schema.Metadata
	zone           string
	sink           Sink
	logger         *logger.Logger
	debounce       time.Duration

	mu            sync.Mutex
	online        bool
	isProcessing  bool
	processAgain  bool
	debounceTimer *time.Timer
	retryTimer    *time.Timer
	runCtx        context.Context
}

func NewHistoryProcessor(st *store.Store, push *PushPipeline, cancelTransfer func(string), enqueueUpload func(int64), pauser *Pauser, meta schema.Metadata, zone string, sink Sink, log *logger.Logger, debounce time.Duration) *HistoryProcessor {
	return &HistoryProcessor{
		store:          st,
		push:           push,
		cancelTransfer: cancelTransfer,
		enqueueUpload:  enqueueUpload,
		pauser:         pauser,
		meta:           meta,
		zone:           zone,
		sink:           sink,
		logger:         log,
		debounce:       debounce,
		online:         true,
	}
}

// Start binds the processor to its run context. Timer-fired processing
// uses this context rather than the context of the commit that armed the
// timer.
func (p *HistoryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runCtx = ctx
}

// Stop disarms pending timers. History keeps accumulating; the next Start
// plus Trigger picks up where the cursor left off.
func (p *HistoryProcessor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.debounceTimer != nil {
		p.debounceTimer.Stop()
		p.debounceTimer = nil
	}
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
	p.runCtx = nil
}

// SetOnline toggles processing. Going online drains whatever accumulated
// while offline.
func (p *HistoryProcessor) SetOnline(online bool) {
	p.mu.Lock()
	was := p.online
	p.online = online
	p.mu.Unlock()

	if online && !was {
		p.Trigger()
	}
}

// Trigger requests an asynchronous processing run immediately, skipping
// the debounce.
func (p *HistoryProcessor) Trigger() {
	p.mu.Lock()
	ctx := p.runCtx
	p.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	go p.processAsync(ctx)
}

// WillSave assigns remote identity to objects about to be inserted: a
// record name, the configured zone, and the entity's default scope. Doing
// this before commit means the identity is part of the same durable
// transaction as the object itself.
func (p *HistoryProcessor) WillSave(c *store.Context) {
	for _, obj := range c.PendingInserts() {
		ent, ok := p.meta.Entity(obj.Entity)
		if !ok {
			continue
		}
		if obj.RecordName == "" {
			obj.RecordName = newRecordName()
		}
		if obj.ZoneName == "" {
			obj.ZoneName = p.zone
		}
		if obj.Scope == "" {
			obj.Scope = ent.EffectiveScopes()[0]
		}
		if ent.Cacheable && obj.Cache == nil {
			obj.Cache = &models.CacheInfo{State: models.CacheStateLocal}
		}
	}
}

// DidSave schedules a processing run for application commits. Engine
// contexts are ignored here; their history transactions are skipped during
// processing but still advance the cursor.
func (p *HistoryProcessor) DidSave(_ *store.Context, txn models.Transaction) {
	if isServiceContext(txn.ContextName) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runCtx == nil {
		return
	}
	ctx := p.runCtx
	if p.debounceTimer == nil {
		p.debounceTimer = time.AfterFunc(p.debounce, func() { p.processAsync(ctx) })
	} else {
		p.debounceTimer.Reset(p.debounce)
	}
}

func (p *HistoryProcessor) processAsync(ctx context.Context) {
	if err := p.Process(ctx); err != nil && !errors.Is(err, ErrPaused) && !errors.Is(err, context.Canceled) {
		p.sink(ModuleHistory, err)
	}
}

// Process drains pending history. Concurrent calls coalesce: a call that
// finds a run in progress flags it to go around again and returns, so
// changes committed during a run are never missed and at most one run is
// active at a time.
func (p *HistoryProcessor) Process(ctx context.Context) error {
	p.mu.Lock()
	if !p.online {
		p.mu.Unlock()
		return nil
	}
	if p.isProcessing {
		p.processAgain = true
		p.mu.Unlock()
		return nil
	}
	p.isProcessing = true
	p.mu.Unlock()

	err := p.drain(ctx)

	p.mu.Lock()
	p.isProcessing = false
	again := p.processAgain
	p.processAgain = false
	p.mu.Unlock()

	if errors.Is(err, ErrPaused) {
		p.scheduleRetry()
		return err
	}
	if again && err == nil {
		return p.Process(ctx)
	}
	return err
}

func (p *HistoryProcessor) drain(ctx context.Context) error {
	cursor, err := p.store.GetValue(ctx, store.CursorKey)
	if err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("read sync cursor: %w", err)
	}

	txns, err := p.store.HistorySince(ctx, cursor)
	if errors.Is(err, store.ErrCursorExpired) {
		return p.resyncFromScratch(ctx)
	}
	if err != nil {
		return fmt.Errorf("read change history: %w", err)
	}

	for _, txn := range txns {
		if !isServiceContext(txn.ContextName) {
			intents, buildErr := p.intentsOf(ctx, txn)
			if buildErr != nil {
				return buildErr
			}
			if pushErr := p.push.PushIntents(ctx, intents); pushErr != nil {
				return pushErr
			}
			if promoteErr := p.promoteUploads(ctx, intents); promoteErr != nil {
				return promoteErr
			}
		}
		if err = p.advance(ctx, txn.Token); err != nil {
			return err
		}
	}
	return nil
}

// promoteUploads queues asset uploads for freshly pushed inserts: a
// cacheable object whose record just reached the server and that holds a
// local payload moves from local to upload.
func (p *HistoryProcessor) promoteUploads(ctx context.Context, intents []models.ChangeIntent) error {
	for _, in := range intents {
		if in.Kind != models.ChangeInsert || in.Object == nil || in.Object.Cache == nil {
			continue
		}
		if in.Object.Cache.State != models.CacheStateLocal || in.Object.Cache.AssetPath == "" {
			continue
		}
		in.Object.Cache.State = models.CacheStateUpload
		sc := p.store.NewContext(serviceContextName)
		sc.Update(in.Object)
		if err := sc.Save(ctx); err != nil {
			return fmt.Errorf("promote object %d for upload: %w", in.Object.LocalID, err)
		}
		if p.enqueueUpload != nil {
			p.enqueueUpload(in.Object.LocalID)
		}
	}
	return nil
}

// resyncFromScratch recovers from an expired cursor: the full local
// dataset is reuploaded, then the cursor jumps over whatever history
// remains since the reupload already covers it.
func (p *HistoryProcessor) resyncFromScratch(ctx context.Context) error {
	p.logger.Warn().Msg("sync cursor expired, reuploading local dataset")

	if err := p.store.SetValue(ctx, store.CursorKey, ""); err != nil {
		return fmt.Errorf("reset sync cursor: %w", err)
	}
	if err := p.push.PushAllLocalData(ctx); err != nil {
		return err
	}

	txns, err := p.store.HistorySince(ctx, "")
	if err != nil {
		return fmt.Errorf("read change history: %w", err)
	}
	for _, txn := range txns {
		if err = p.advance(ctx, txn.Token); err != nil {
			return err
		}
	}
	return nil
}

// advance settles one transaction: persist the cursor past it, then prune
// the delivered history.
func (p *HistoryProcessor) advance(ctx context.Context, token string) error {
	if err := p.store.SetValue(ctx, store.CursorKey, token); err != nil {
		return fmt.Errorf("advance sync cursor: %w", err)
	}
	if err := p.store.DeleteHistory(ctx, token); err != nil {
		return fmt.Errorf("prune change history: %w", err)
	}
	return nil
}

// intentsOf snapshots one history transaction into push intents. Changes
// to the same object coalesce into one intent carrying the union of
// changed fields. Objects deleted by a later transaction are skipped; the
// delete's own transaction carries the tombstone.
func (p *HistoryProcessor) intentsOf(ctx context.Context, txn models.Transaction) ([]models.ChangeIntent, error) {
	var (
		intents []models.ChangeIntent
		byObj   = make(map[int64]int)
	)

	for _, ch := range txn.Changes {
		switch ch.Kind {
		case models.ChangeDelete:
			if ch.Tombstone == nil {
				continue
			}
			if ch.Tombstone.OperationID != "" {
				p.cancelTransfer(ch.Tombstone.OperationID)
			}
			ts := *ch.Tombstone
			intents = append(intents, models.ChangeIntent{Kind: models.ChangeDelete, Tombstone: &ts})

		case models.ChangeInsert, models.ChangeUpdate:
			if idx, ok := byObj[ch.ObjectID]; ok {
				intents[idx].ChangedFields = unionFields(intents[idx].ChangedFields, ch.ChangedFields)
				continue
			}

			obj, err := p.store.Object(ctx, ch.ObjectID)
			if err != nil {
				if store.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("load changed object %d: %w", ch.ObjectID, err)
			}

			intents = append(intents, models.ChangeIntent{
				Kind:          ch.Kind,
				Object:        obj,
				ChangedFields: ch.ChangedFields,
			})
			byObj[ch.ObjectID] = len(intents) - 1
		}
	}
	return intents, nil
}

// scheduleRetry arms a one-shot retry for when the rate-limit pause ends.
func (p *HistoryProcessor) scheduleRetry() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runCtx == nil {
		return
	}
	ctx := p.runCtx

	delay := p.pauser.Remaining() + 100*time.Millisecond
	if p.retryTimer == nil {
		p.retryTimer = time.AfterFunc(delay, func() { p.processAsync(ctx) })
	} else {
		p.retryTimer.Reset(delay)
	}
}

func unionFields(a, b []string) []string {
	have := make(map[string]bool, len(a))
	out := a
	for _, f := range a {
		have[f] = true
	}
	for _, f := range b {
		if !have[f] {
			out = append(out, f)
			have[f] = true
		}
	}
	return out
}

// newRecordName returns a time-ordered unique record name, falling back to
// a random one if the clock-based generator fails.
func newRecordName() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
