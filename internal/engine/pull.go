// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/internal/remote"
	"github.com/cloudmirror/cloudmirror/internal/schema"
	"github.com/cloudmirror/cloudmirror/internal/store"
	"github.com/cloudmirror/cloudmirror/models"
)

// PullPipeline walks record graphs out of the remote store and applies
// them to local objects under the pull context, which the history
// processor skips so pulled changes never echo back as pushes.
type PullPipeline struct {
	store      *store.Store
	remote     remote.RecordStore
	conv       *Converter
	meta       schema.Metadata
	pauser     *Pauser
	sink       Sink
	logger     *logger.Logger
	batchLimit int
}

func NewPullPipeline(st *store.Store, rs remote.RecordStore, conv *Converter, meta schema.Metadata, pauser *Pauser, sink Sink, log *logger.Logger, batchLimit int) *PullPipeline {
	if batchLimit <= 0 {
		batchLimit = 400
	}
	return &PullPipeline{
		store:      st,
		remote:     rs,
		conv:       conv,
		meta:       meta,
		pauser:     pauser,
		sink:       sink,
		logger:     log,
		batchLimit: batchLimit,
	}
}

// PullRecords fetches the given records and everything reachable from them
// through declared relationships, breadth first, and commits the result
// locally. Identifiers the server reports as missing delete the matching
// local objects. Unresolvable references after the full traversal are
// reported through the sink and the commit proceeds without them.
func (p *PullPipeline) PullRecords(ctx context.Context, ids []models.RecordID) error {
	if len(ids) == 0 {
		return nil
	}
	if p.pauser.Active() {
		return ErrPaused
	}

	sess := NewPullSession()
	sc := p.store.NewContext(pullContextName)

	frontier := make([]models.RecordID, 0, len(ids))
	for _, id := range ids {
		if sess.MarkSeen(id) {
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		next, err := p.fetchWave(ctx, sess, sc, frontier)
		if err != nil {
			return err
		}
		frontier = next
	}

	if err := sc.Save(ctx); err != nil {
		return fmt.Errorf("commit pulled records: %w", err)
	}

	if err := p.resolveReferences(ctx, sess, sc); err != nil {
		return err
	}
	if err := sc.Save(ctx); err != nil {
		return fmt.Errorf("commit resolved references: %w", err)
	}
	return nil
}

// fetchWave fetches one traversal wave and returns the next frontier: the
// reference targets of the fetched records that have not been visited yet.
func (p *PullPipeline) fetchWave(ctx context.Context, sess *PullSession, sc *store.Context, frontier []models.RecordID) ([]models.RecordID, error) {
	var next []models.RecordID

	byScope := make(map[models.Scope][]models.RecordID)
	for _, id := range frontier {
		byScope[id.Scope] = append(byScope[id.Scope], id)
	}

	for scope, scopeIDs := range byScope {
		for start := 0; start < len(scopeIDs); start += p.batchLimit {
			end := min(start+p.batchLimit, len(scopeIDs))

			outcomes, err := p.remote.Fetch(ctx, models.FetchRequest{
				Scope: scope,
				IDs:   scopeIDs[start:end],
			})
			if err != nil {
				return nil, fmt.Errorf("fetch records: %w", err)
			}

			for _, outcome := range outcomes {
				targets, applyErr := p.applyOutcome(ctx, sess, sc, outcome)
				if applyErr != nil {
					p.sink(ModulePull, applyErr)
					continue
				}
				for _, target := range targets {
					if sess.MarkSeen(target) {
						next = append(next, target)
					}
				}
			}
		}
	}
	return next, nil
}

// applyOutcome applies one fetch outcome and returns the record's reference
// targets for frontier expansion.
func (p *PullPipeline) applyOutcome(ctx context.Context, sess *PullSession, sc *store.Context, outcome models.RecordOutcome) ([]models.RecordID, error) {
	if outcome.Err != nil {
		if errors.Is(outcome.Err, remote.ErrRecordNotFound) {
			return nil, p.applyRemoteDelete(ctx, sc, outcome.ID)
		}
		return nil, fmt.Errorf("fetch %s: %w", outcome.ID.Name, outcome.Err)
	}
	if outcome.Record == nil {
		return nil, fmt.Errorf("fetch %s: outcome carries no record", outcome.ID.Name)
	}

	if _, err := p.conv.ApplyRecord(ctx, sess, sc, outcome.Record); err != nil {
		return nil, err
	}

	var targets []models.RecordID
	for _, refs := range outcome.Record.References {
		targets = append(targets, refs...)
	}
	return targets, nil
}

// applyRemoteDelete removes the local object matching a record the server
// no longer has. Nothing to do when no local object matches.
func (p *PullPipeline) applyRemoteDelete(ctx context.Context, sc *store.Context, id models.RecordID) error {
	obj, err := p.store.ObjectByRecordName(ctx, id.Name)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("match deleted record %s: %w", id.Name, err)
	}
	sc.Delete(obj)
	return nil
}

// resolveReferences maps the session's wire references to local IDs and
// stages relation updates. Runs after the first commit so created objects
// have local IDs. Targets that exist neither in the session nor in the
// store are dropped with a sink warning.
func (p *PullPipeline) resolveReferences(ctx context.Context, sess *PullSession, sc *store.Context) error {
	touched := make(map[int64]*models.Object)

	for _, ref := range sess.PendingReferences() {
		resolved := make([]int64, 0, len(ref.targets))
		for _, target := range ref.targets {
			localID, err := p.resolveTarget(ctx, sess, target)
			if err != nil {
				if errors.Is(err, ErrUnresolvedReference) {
					p.sink(ModulePull, fmt.Errorf("%s.%s -> %s: %w", ref.source.Entity, ref.relName, target.Name, err))
					continue
				}
				return err
			}
			resolved = append(resolved, localID)
		}

		if ref.source.Relations == nil {
			ref.source.Relations = make(map[string][]int64)
		}
		if len(resolved) > 0 {
			ref.source.Relations[ref.relName] = resolved
		} else {
			delete(ref.source.Relations, ref.relName)
		}
		touched[ref.source.LocalID] = ref.source
	}

	for _, obj := range touched {
		sc.Update(obj)
	}
	return nil
}

func (p *PullPipeline) resolveTarget(ctx context.Context, sess *PullSession, target models.RecordID) (int64, error) {
	if obj := sess.Lookup(target.Name); obj != nil {
		return obj.LocalID, nil
	}
	obj, err := p.store.ObjectByRecordName(ctx, target.Name)
	if err != nil {
		if store.IsNotFound(err) {
			return 0, ErrUnresolvedReference
		}
		return 0, fmt.Errorf("resolve reference %s: %w", target.Name, err)
	}
	return obj.LocalID, nil
}
