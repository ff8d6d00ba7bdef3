// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/internal/remote"
	"github.com/cloudmirror/cloudmirror/internal/schema"
	"github.com/cloudmirror/cloudmirror/internal/store"
	"github.com/cloudmirror/cloudmirror/models"
)

// PushOptions tunes push batching.
type PushOptions struct {
	// BatchLimit caps how many saves plus deletes one submission carries.
	BatchLimit int

	// DeletesFirst places deletes before saves inside a submission so a
	// delete-then-reinsert of the same record name lands in order.
	DeletesFirst bool

	Zone string
}

// PushPipeline ships local change intents to the record store and settles
// the per-record outcomes: success updates cached system metadata,
// conflicts are merged and resubmitted, rate limiting pauses the engine,
// and zone loss triggers recovery with a full reupload.
type PushPipeline struct {
	store  *store.Store
	remote remote.RecordStore
	conv   *Converter
	meta   schema.Metadata
	pauser *Pauser
	sink   Sink
	logger *logger.Logger
	opts   PushOptions

	// conflictRetries bounds merge-resubmit rounds per record.
	conflictRetries int
}

func NewPushPipeline(st *store.Store, rs remote.RecordStore, conv *Converter, meta schema.Metadata, pauser *Pauser, sink Sink, log *logger.Logger, opts PushOptions) *PushPipeline {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 400
	}
	return &PushPipeline{
		store:           st,
		remote:          rs,
		conv:            conv,
		meta:            meta,
		pauser:          pauser,
		sink:            sink,
		logger:          log,
		opts:            opts,
		conflictRetries: 3,
	}
}

// pendingSave pairs the wire payload of one save with the object it came
// from, so a success outcome can settle back onto the object.
type pendingSave struct {
	record *models.Record
	obj    *models.Object
	fields []string
}

// PushIntents submits one ordered set of change intents. On success the
// whole set is settled and the caller may advance its cursor; any error
// means the caller must keep its cursor and redeliver.
func (pp *PushPipeline) PushIntents(ctx context.Context, intents []models.ChangeIntent) error {
	return pp.pushIntents(ctx, intents, true)
}

func (pp *PushPipeline) pushIntents(ctx context.Context, intents []models.ChangeIntent, allowRecovery bool) error {
	if len(intents) == 0 {
		return nil
	}
	if pp.pauser.Active() {
		return ErrPaused
	}

	saves := make(map[models.Scope][]pendingSave)
	deletes := make(map[models.Scope][]models.RecordID)

	for _, intent := range intents {
		switch intent.Kind {
		case models.ChangeDelete:
			if intent.Tombstone == nil || intent.Tombstone.ID.IsZero() {
				continue
			}
			id := intent.Tombstone.ID
			deletes[id.Scope] = append(deletes[id.Scope], id)

		case models.ChangeInsert, models.ChangeUpdate:
			if intent.Object == nil {
				continue
			}
			rec, err := pp.conv.ToRecord(ctx, intent.Object)
			if err != nil {
				return fmt.Errorf("convert %s: %w", intent.Object.RecordName, err)
			}
			fields := intent.ChangedFields
			if intent.Kind == models.ChangeUpdate && len(fields) > 0 {
				rec = rec.CloneForSave(fields)
			}
			scope := intent.Object.Scope
			saves[scope] = append(saves[scope], pendingSave{record: rec, obj: intent.Object, fields: fields})
		}
	}

	for _, scope := range scopesOf(saves, deletes) {
		if err := pp.pushScope(ctx, scope, saves[scope], deletes[scope], allowRecovery); err != nil {
			return err
		}
	}
	return nil
}

func scopesOf(saves map[models.Scope][]pendingSave, deletes map[models.Scope][]models.RecordID) []models.Scope {
	var out []models.Scope
	for _, scope := range []models.Scope{models.ScopePrivate, models.ScopePublic} {
		if len(saves[scope]) > 0 || len(deletes[scope]) > 0 {
			out = append(out, scope)
		}
	}
	return out
}

// pushScope chunks one scope's work to the batch limit and submits each
// chunk. Delete ordering applies within every chunk.
func (pp *PushPipeline) pushScope(ctx context.Context, scope models.Scope, saves []pendingSave, deletes []models.RecordID, allowRecovery bool) error {
	for len(saves) > 0 || len(deletes) > 0 {
		var (
			batchSaves   []pendingSave
			batchDeletes []models.RecordID
			room         = pp.opts.BatchLimit
		)

		if pp.opts.DeletesFirst {
			take := min(room, len(deletes))
			batchDeletes, deletes = deletes[:take], deletes[take:]
			room -= take
			take = min(room, len(saves))
			batchSaves, saves = saves[:take], saves[take:]
		} else {
			take := min(room, len(saves))
			batchSaves, saves = saves[:take], saves[take:]
			room -= take
			take = min(room, len(deletes))
			batchDeletes, deletes = deletes[:take], deletes[take:]
		}

		if err := pp.submitBatch(ctx, scope, batchSaves, batchDeletes, allowRecovery); err != nil {
			return err
		}
	}
	return nil
}

func (pp *PushPipeline) submitBatch(ctx context.Context, scope models.Scope, saves []pendingSave, deletes []models.RecordID, allowRecovery bool) error {
	req := models.SubmitRequest{
		Scope:   scope,
		Saves:   make([]*models.Record, 0, len(saves)),
		Deletes: deletes,
	}
	byName := make(map[string]pendingSave, len(saves))
	for _, s := range saves {
		req.Saves = append(req.Saves, s.record)
		byName[s.record.ID.Name] = s
	}

	outcomes, err := pp.remote.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("submit batch: %w", err)
	}

	settled := pp.store.NewContext(serviceContextName)
	for _, outcome := range outcomes {
		if err = pp.settleOutcome(ctx, settled, scope, outcome, byName, allowRecovery); err != nil {
			return err
		}
	}
	if err = settled.Save(ctx); err != nil {
		return fmt.Errorf("settle batch: %w", err)
	}
	return nil
}

// settleOutcome handles one per-record outcome of a submission.
func (pp *PushPipeline) settleOutcome(ctx context.Context, settled *store.Context, scope models.Scope, outcome models.RecordOutcome, byName map[string]pendingSave, allowRecovery bool) error {
	pending, isSave := byName[outcome.ID.Name]

	switch {
	case outcome.Err == nil:
		if isSave && outcome.Record != nil {
			pp.settleSave(settled, pending, outcome.Record)
		}
		return nil

	case errors.Is(outcome.Err, remote.ErrCancelled):
		// The record went away between staging and submission. Nothing to
		// settle.
		return nil

	case errors.Is(outcome.Err, remote.ErrRecordNotFound) && !isSave:
		// Deleting a record the server never had is as deleted as it gets.
		return nil

	default:
		var (
			rateErr     *remote.RateLimitError
			conflictErr *remote.ConflictError
			zoneErr     *remote.ZoneLossError
		)
		switch {
		case errors.As(outcome.Err, &rateErr):
			pp.pauser.PauseFor(rateErr.RetryAfter)
			pp.logger.Warn().Dur("retry_after", rateErr.RetryAfter).Msg("record store rate limited, pausing submissions")
			return ErrPaused

		case errors.As(outcome.Err, &conflictErr) && isSave:
			return pp.resolveConflict(ctx, settled, pending, conflictErr.Server)

		case errors.As(outcome.Err, &zoneErr):
			if !allowRecovery {
				return fmt.Errorf("zone lost during recovery reupload: %w", outcome.Err)
			}
			return pp.recoverZone(ctx, scope, zoneErr.EncryptedDataReset)

		default:
			return fmt.Errorf("push %s: %w", outcome.ID.Name, outcome.Err)
		}
	}
}

// settleSave stores the server's post-save system metadata on the object
// and retires the pushed fields from its pending set.
func (pp *PushPipeline) settleSave(settled *store.Context, pending pendingSave, serverRecord *models.Record) {
	meta := serverRecord.Meta
	pending.obj.Meta = &meta

	if len(pending.fields) == 0 {
		pending.obj.ChangedFields = nil
	} else {
		pushed := make(map[string]bool, len(pending.fields))
		for _, f := range pending.fields {
			pushed[f] = true
		}
		var remaining []string
		for _, f := range pending.obj.ChangedFields {
			if !pushed[f] {
				remaining = append(remaining, f)
			}
		}
		pending.obj.ChangedFields = remaining
	}

	settled.Update(pending.obj)
}

// resolveConflict merges the conflicting save over the server's current
// record and resubmits it alone, fetching a fresh server copy between
// attempts. Pushed local fields win over server values; the server's
// system metadata is adopted so the resubmission passes its version check.
func (pp *PushPipeline) resolveConflict(ctx context.Context, settled *store.Context, pending pendingSave, server *models.Record) error {
	id := pending.record.ID

	for attempt := 0; attempt < pp.conflictRetries; attempt++ {
		if server == nil {
			fetched, err := pp.fetchOne(ctx, id)
			if err != nil {
				return fmt.Errorf("refetch conflicting record %s: %w", id.Name, err)
			}
			server = fetched
		}

		merged := mergeRecords(server, pending.record)
		outcomes, err := pp.remote.Submit(ctx, models.SubmitRequest{
			Scope: id.Scope,
			Saves: []*models.Record{merged},
		})
		if err != nil {
			return fmt.Errorf("resubmit %s: %w", id.Name, err)
		}
		if len(outcomes) != 1 {
			return fmt.Errorf("resubmit %s: expected one outcome, got %d", id.Name, len(outcomes))
		}

		outcome := outcomes[0]
		if outcome.Err == nil {
			if outcome.Record != nil {
				pp.settleSave(settled, pending, outcome.Record)
			}
			return nil
		}

		var conflictErr *remote.ConflictError
		if !errors.As(outcome.Err, &conflictErr) {
			return fmt.Errorf("resubmit %s: %w", id.Name, outcome.Err)
		}

		// Lost another race. Back off briefly and go again with the newer
		// server copy.
		server = conflictErr.Server
		wait := backoff.NewExponentialBackOff()
		wait.InitialInterval = 100 * time.Millisecond
		select {
		case <-time.After(wait.NextBackOff()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("push %s: conflict persisted after %d merge attempts", id.Name, pp.conflictRetries)
}

func (pp *PushPipeline) fetchOne(ctx context.Context, id models.RecordID) (*models.Record, error) {
	outcomes, err := pp.remote.Fetch(ctx, models.FetchRequest{Scope: id.Scope, IDs: []models.RecordID{id}})
	if err != nil {
		return nil, err
	}
	if len(outcomes) != 1 {
		return nil, fmt.Errorf("expected one outcome, got %d", len(outcomes))
	}
	if outcomes[0].Err != nil {
		return nil, outcomes[0].Err
	}
	return outcomes[0].Record, nil
}

// mergeRecords lays the local save over the server's current record. The
// server's system metadata carries so the version check passes; local
// field values and references win.
func mergeRecords(server, local *models.Record) *models.Record {
	merged := &models.Record{
		ID:         local.ID,
		Entity:     local.Entity,
		Fields:     make(map[string]any),
		References: local.References,
		Meta:       local.Meta,
	}
	if server != nil {
		merged.Meta = server.Meta
		for k, v := range server.Fields {
			merged.Fields[k] = v
		}
		if len(merged.References) == 0 {
			merged.References = server.References
		}
	}
	for k, v := range local.Fields {
		merged.Fields[k] = v
	}
	return merged
}

// recoverZone rebuilds a lost zone. When the server signals that encrypted
// user data was reset, the stale server-side zone is deleted first. The
// zone is then recreated, resubscribed, and the entire local dataset is
// reuploaded.
func (pp *PushPipeline) recoverZone(ctx context.Context, scope models.Scope, encryptedDataReset bool) error {
	pp.logger.Warn().
		Str("scope", string(scope)).
		Str("zone", pp.opts.Zone).
		Bool("encrypted_data_reset", encryptedDataReset).
		Msg("remote zone lost, rebuilding")

	if encryptedDataReset {
		if err := pp.remote.DeleteZone(ctx, scope, pp.opts.Zone); err != nil && !errors.Is(err, remote.ErrZoneNotFound) {
			return fmt.Errorf("delete reset zone: %w", err)
		}
	}
	if err := pp.remote.CreateZone(ctx, scope, pp.opts.Zone); err != nil {
		return fmt.Errorf("recreate zone: %w", err)
	}
	if err := pp.remote.CreateSubscription(ctx, scope, pp.opts.Zone); err != nil {
		return fmt.Errorf("resubscribe zone: %w", err)
	}
	if err := pp.pushAll(ctx, false); err != nil {
		return fmt.Errorf("reupload after zone recovery: %w", err)
	}
	return nil
}

// PushAllLocalData reuploads every local object as a full save. Used on
// first launch and after zone recovery.
func (pp *PushPipeline) PushAllLocalData(ctx context.Context) error {
	return pp.pushAll(ctx, true)
}

func (pp *PushPipeline) pushAll(ctx context.Context, allowRecovery bool) error {
	objects, err := pp.store.AllObjects(ctx)
	if err != nil {
		return fmt.Errorf("load local objects: %w", err)
	}

	intents := make([]models.ChangeIntent, 0, len(objects))
	for _, obj := range objects {
		// Full saves: drop stale version checks so the reupload cannot
		// conflict against a zone that no longer has the records.
		obj.Meta = nil
		intents = append(intents, models.ChangeIntent{Kind: models.ChangeInsert, Object: obj})
	}
	return pp.pushIntents(ctx, intents, allowRecovery)
}
