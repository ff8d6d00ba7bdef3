// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/internal/mock"
	"github.com/cloudmirror/cloudmirror/internal/store"
	"github.com/cloudmirror/cloudmirror/models"
)

type historyFixture struct {
	hp        *HistoryProcessor
	rs        *mock.MockRecordStore
	st        *store.Store
	cancelled []string
	promoted  []int64
}

func newTestHistory(t *testing.T, ctrl *gomock.Controller) *historyFixture {
	t.Helper()
	st := newTestStore(t)
	rs := mock.NewMockRecordStore(ctrl)
	rec := &sinkRecorder{}
	meta := testMetadata()
	conv := NewConverter(st, meta, testZone)
	pauser := NewPauser()
	pp := NewPushPipeline(st, rs, conv, meta, pauser, rec.sink, logger.Nop(), PushOptions{Zone: testZone})

	f := &historyFixture{rs: rs, st: st}
	f.hp = NewHistoryProcessor(st, pp, func(opID string) { f.cancelled = append(f.cancelled, opID) },
		func(localID int64) { f.promoted = append(f.promoted, localID) },
		pauser, meta, testZone, rec.sink, logger.Nop(), 10*time.Millisecond)
	return f
}

// cursor reads the persisted sync cursor, "" when none was written yet.
func (f *historyFixture) cursor(t *testing.T) string {
	t.Helper()
	v, err := f.st.GetValue(context.Background(), store.CursorKey)
	if errors.Is(err, store.ErrValueNotFound) {
		return ""
	}
	require.NoError(t, err)
	return v
}

// expectOKSubmit answers any submission with per-record success outcomes.
// ctx may be a concrete context or a gomock matcher.
func (f *historyFixture) expectOKSubmit(ctx any) *gomock.Call {
	return f.rs.EXPECT().
		Submit(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
			outcomes := make([]models.RecordOutcome, 0, len(req.Saves)+len(req.Deletes))
			for _, id := range req.Deletes {
				outcomes = append(outcomes, models.RecordOutcome{ID: id})
			}
			for _, rec := range req.Saves {
				outcomes = append(outcomes, okOutcome(serverCopy(rec.ID, 1, rec.Fields)))
			}
			return outcomes, nil
		})
}

func TestHistoryProcessor_WillSaveAssignsIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	f.st.Subscribe(f.hp)
	defer f.st.Unsubscribe(f.hp)

	note := &models.Object{Entity: "note", Fields: map[string]any{"title": "new"}}
	att := &models.Object{Entity: "attachment", Fields: map[string]any{"filename": "a.bin"}}

	sc := f.st.NewContext("app.save")
	sc.Insert(note)
	sc.Insert(att)
	require.NoError(t, sc.Save(context.Background()))

	assert.NotEmpty(t, note.RecordName)
	assert.Equal(t, testZone, note.ZoneName)
	assert.Equal(t, models.ScopePrivate, note.Scope)
	assert.Nil(t, note.Cache)

	require.NotNil(t, att.Cache)
	assert.Equal(t, models.CacheStateLocal, att.Cache.State)
	assert.NotEqual(t, note.RecordName, att.RecordName)
}

func TestHistoryProcessor_ProcessAdvancesCursorAfterPush(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	ctx := context.Background()

	insertTestObject(t, f.st, testNote("n1", "pending"))
	f.expectOKSubmit(ctx)

	require.NoError(t, f.hp.Process(ctx))
	assert.Equal(t, "1", f.cursor(t))

	// Settling the push produced one engine-internal transaction; the next
	// run advances past it without touching the wire.
	require.NoError(t, f.hp.Process(ctx))
	assert.Equal(t, "2", f.cursor(t))
}

func TestHistoryProcessor_PromotesPushedInsertsForUpload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	ctx := context.Background()

	att := insertTestObject(t, f.st, &models.Object{
		Entity:     "attachment",
		RecordName: "a1",
		ZoneName:   testZone,
		Scope:      models.ScopePrivate,
		Fields:     map[string]any{"filename": "a1.bin"},
		Cache:      &models.CacheInfo{State: models.CacheStateLocal, AssetPath: "/tmp/a1.bin"},
	})
	// A payload-less insert stays in local.
	bare := insertTestObject(t, f.st, &models.Object{
		Entity:     "attachment",
		RecordName: "a2",
		ZoneName:   testZone,
		Scope:      models.ScopePrivate,
		Fields:     map[string]any{"filename": "a2.bin"},
		Cache:      &models.CacheInfo{State: models.CacheStateLocal},
	})

	f.expectOKSubmit(ctx).Times(2)
	require.NoError(t, f.hp.Process(ctx))

	assert.Equal(t, []int64{att.LocalID}, f.promoted)

	stored, err := f.st.Object(ctx, att.LocalID)
	require.NoError(t, err)
	assert.Equal(t, models.CacheStateUpload, stored.Cache.State)

	untouched, err := f.st.Object(ctx, bare.LocalID)
	require.NoError(t, err)
	assert.Equal(t, models.CacheStateLocal, untouched.Cache.State)
}

func TestHistoryProcessor_KeepsCursorOnPushFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	ctx := context.Background()

	insertTestObject(t, f.st, testNote("n1", "pending"))

	f.rs.EXPECT().Submit(ctx, gomock.Any()).Return(nil, errors.New("wire down"))
	require.Error(t, f.hp.Process(ctx))
	assert.Equal(t, "", f.cursor(t), "cursor must not advance past an undelivered transaction")

	// The same transaction is redelivered on the next run.
	f.expectOKSubmit(ctx)
	require.NoError(t, f.hp.Process(ctx))
	assert.Equal(t, "1", f.cursor(t))
}

func TestHistoryProcessor_ServiceCommitsAdvanceWithoutPush(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	ctx := context.Background()

	sc := f.st.NewContext(serviceContextName)
	sc.Insert(testNote("n1", "engine write"))
	require.NoError(t, sc.Save(ctx))

	// No Submit expectation: pushing here would fail the test.
	require.NoError(t, f.hp.Process(ctx))
	assert.Equal(t, "1", f.cursor(t))
}

func TestHistoryProcessor_ExpiredCursorTriggersFullReupload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	ctx := context.Background()

	for _, name := range []string{"n1", "n2", "n3"} {
		insertTestObject(t, f.st, testNote(name, name))
	}

	// Prune below the persisted cursor so the next read lands under the
	// retained floor.
	require.NoError(t, f.st.DeleteHistory(ctx, "2"))
	require.NoError(t, f.st.SetValue(ctx, store.CursorKey, "1"))

	var reuploaded int
	f.rs.EXPECT().
		Submit(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
			reuploaded = len(req.Saves)
			outcomes := make([]models.RecordOutcome, 0, len(req.Saves))
			for _, rec := range req.Saves {
				outcomes = append(outcomes, okOutcome(serverCopy(rec.ID, 1, rec.Fields)))
			}
			return outcomes, nil
		})

	require.NoError(t, f.hp.Process(ctx))

	assert.Equal(t, 3, reuploaded, "the full local dataset goes up exactly once")

	// Remaining history is already covered by the reupload; the cursor
	// jumps past it.
	txns, err := f.st.HistorySince(ctx, f.cursor(t))
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestHistoryProcessor_ConcurrentProcessCoalesces(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	ctx := context.Background()

	insertTestObject(t, f.st, testNote("n1", "pending"))

	f.rs.EXPECT().
		Submit(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
			// A run is in flight; this call must flag a re-run and return
			// immediately instead of draining concurrently.
			require.NoError(t, f.hp.Process(ctx))
			return []models.RecordOutcome{okOutcome(serverCopy(req.Saves[0].ID, 1, req.Saves[0].Fields))}, nil
		})

	require.NoError(t, f.hp.Process(ctx))

	// The flagged re-run drained the settle transaction too.
	assert.Equal(t, "2", f.cursor(t))
}

func TestHistoryProcessor_SameObjectChangesCoalesceWithinTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	ctx := context.Background()

	obj := testNote("n1", "v1")
	sc := f.st.NewContext("app.save")
	sc.Insert(obj)
	sc.Update(obj, "title")
	require.NoError(t, sc.Save(ctx))

	var saves int
	f.rs.EXPECT().
		Submit(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
			saves = len(req.Saves)
			return []models.RecordOutcome{okOutcome(serverCopy(req.Saves[0].ID, 1, req.Saves[0].Fields))}, nil
		})

	require.NoError(t, f.hp.Process(ctx))
	assert.Equal(t, 1, saves, "insert and update of one object collapse into one save")
}

func TestHistoryProcessor_DeleteCancelsInFlightTransfer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	ctx := context.Background()

	att := insertTestObject(t, f.st, &models.Object{
		Entity:     "attachment",
		RecordName: "a1",
		ZoneName:   testZone,
		Scope:      models.ScopePrivate,
		Fields:     map[string]any{"filename": "big.bin"},
		Cache:      &models.CacheInfo{State: models.CacheStateUploading, OperationID: "op-9"},
	})
	f.expectOKSubmit(ctx)
	require.NoError(t, f.hp.Process(ctx))

	sc := f.st.NewContext("app.save")
	sc.Delete(att)
	require.NoError(t, sc.Save(ctx))

	var deletes []models.RecordID
	f.rs.EXPECT().
		Submit(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
			deletes = req.Deletes
			return []models.RecordOutcome{{ID: req.Deletes[0]}}, nil
		})

	require.NoError(t, f.hp.Process(ctx))
	assert.Equal(t, []string{"op-9"}, f.cancelled)
	assert.Equal(t, []models.RecordID{testRecordID("a1")}, deletes)
}

func TestHistoryProcessor_OfflineQueuesWork(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	ctx := context.Background()

	insertTestObject(t, f.st, testNote("n1", "queued"))

	f.hp.SetOnline(false)
	require.NoError(t, f.hp.Process(ctx))
	assert.Equal(t, "", f.cursor(t))

	f.expectOKSubmit(gomock.Any())
	f.hp.SetOnline(true)

	require.Eventually(t, func() bool { return f.cursor(t) == "1" },
		2*time.Second, 10*time.Millisecond, "going online drains the backlog")
}

func TestHistoryProcessor_DebouncedCommitProcessing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newTestHistory(t, ctrl)
	ctx := context.Background()

	f.hp.Start(ctx)
	defer f.hp.Stop()
	f.st.Subscribe(f.hp)
	defer f.st.Unsubscribe(f.hp)

	f.expectOKSubmit(gomock.Any())

	sc := f.st.NewContext("app.save")
	sc.Insert(&models.Object{Entity: "note", Fields: map[string]any{"title": "typed"}})
	require.NoError(t, sc.Save(ctx))

	require.Eventually(t, func() bool { return f.cursor(t) != "" },
		2*time.Second, 10*time.Millisecond, "the debounce timer fires a processing run")
}
