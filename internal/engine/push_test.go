// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/internal/mock"
	"github.com/cloudmirror/cloudmirror/internal/remote"
	"github.com/cloudmirror/cloudmirror/internal/store"
	"github.com/cloudmirror/cloudmirror/models"
)

func newTestPush(t *testing.T, ctrl *gomock.Controller, opts PushOptions) (*PushPipeline, *mock.MockRecordStore, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	rs := mock.NewMockRecordStore(ctrl)
	meta := testMetadata()
	conv := NewConverter(st, meta, testZone)
	if opts.Zone == "" {
		opts.Zone = testZone
	}
	pp := NewPushPipeline(st, rs, conv, meta, NewPauser(), (&sinkRecorder{}).sink, logger.Nop(), opts)
	return pp, rs, st
}

func okOutcome(rec *models.Record) models.RecordOutcome {
	return models.RecordOutcome{ID: rec.ID, Record: rec}
}

func serverCopy(id models.RecordID, version int64, fields map[string]any) *models.Record {
	return &models.Record{
		ID:     id,
		Entity: "note",
		Fields: fields,
		Meta:   models.SystemMetadata{Version: version, ModifiedAt: time.Now().UTC()},
	}
}

func TestPushPipeline_PartialSaveSettlesMetadata(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pp, rs, st := newTestPush(t, ctrl, PushOptions{})
	ctx := context.Background()

	obj := testNote("n1", "draft")
	obj.Fields["body"] = "unchanged text"
	obj.ChangedFields = []string{"title"}
	insertTestObject(t, st, obj)

	var submitted models.SubmitRequest
	rs.EXPECT().
		Submit(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
			submitted = req
			return []models.RecordOutcome{okOutcome(serverCopy(req.Saves[0].ID, 7, req.Saves[0].Fields))}, nil
		})

	intents := []models.ChangeIntent{{
		Kind:          models.ChangeUpdate,
		Object:        obj,
		ChangedFields: []string{"title"},
	}}
	require.NoError(t, pp.PushIntents(ctx, intents))

	// Only the changed field travels.
	require.Len(t, submitted.Saves, 1)
	assert.Contains(t, submitted.Saves[0].Fields, "title")
	assert.NotContains(t, submitted.Saves[0].Fields, "body")

	// The server's metadata lands on the object and the pushed field is
	// retired from the pending set.
	stored, err := st.Object(ctx, obj.LocalID)
	require.NoError(t, err)
	require.NotNil(t, stored.Meta)
	assert.Equal(t, int64(7), stored.Meta.Version)
	assert.Empty(t, stored.ChangedFields)
}

func TestPushPipeline_RateLimitPausesSubmissions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pp, rs, st := newTestPush(t, ctrl, PushOptions{})
	ctx := context.Background()

	obj := insertTestObject(t, st, testNote("n1", "throttled"))
	intents := []models.ChangeIntent{{Kind: models.ChangeInsert, Object: obj}}

	rs.EXPECT().
		Submit(ctx, gomock.Any()).
		Return([]models.RecordOutcome{{
			ID:  testRecordID("n1"),
			Err: &remote.RateLimitError{RetryAfter: time.Minute},
		}}, nil)

	err := pp.PushIntents(ctx, intents)
	assert.ErrorIs(t, err, ErrPaused)
	assert.True(t, pp.pauser.Active())

	// While the pause is in effect nothing reaches the wire; gomock fails
	// the test on an unexpected second Submit.
	err = pp.PushIntents(ctx, intents)
	assert.ErrorIs(t, err, ErrPaused)
}

func TestPushPipeline_ConflictMergedAndResubmitted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pp, rs, st := newTestPush(t, ctrl, PushOptions{})
	ctx := context.Background()

	var objs []*models.Object
	for _, name := range []string{"n1", "n2", "n3"} {
		objs = append(objs, insertTestObject(t, st, testNote(name, "local "+name)))
	}
	intents := make([]models.ChangeIntent, 0, len(objs))
	for _, obj := range objs {
		intents = append(intents, models.ChangeIntent{Kind: models.ChangeInsert, Object: obj})
	}

	server2 := serverCopy(testRecordID("n2"), 4, map[string]any{
		"title": "server n2",
		"body":  "server body",
	})

	var resubmitted *models.Record
	first := rs.EXPECT().
		Submit(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
			require.Len(t, req.Saves, 3)
			return []models.RecordOutcome{
				okOutcome(serverCopy(req.Saves[0].ID, 1, req.Saves[0].Fields)),
				{ID: req.Saves[1].ID, Err: &remote.ConflictError{Server: server2}},
				okOutcome(serverCopy(req.Saves[2].ID, 1, req.Saves[2].Fields)),
			}, nil
		})
	rs.EXPECT().
		Submit(ctx, gomock.Any()).
		After(first).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
			require.Len(t, req.Saves, 1)
			resubmitted = req.Saves[0]
			return []models.RecordOutcome{okOutcome(serverCopy(req.Saves[0].ID, 5, req.Saves[0].Fields))}, nil
		})

	require.NoError(t, pp.PushIntents(ctx, intents))

	// The resubmission carries the server's metadata, local values for
	// contested fields and server values for the rest.
	require.NotNil(t, resubmitted)
	assert.Equal(t, int64(4), resubmitted.Meta.Version)
	assert.Equal(t, "local n2", resubmitted.Fields["title"])
	assert.Equal(t, "server body", resubmitted.Fields["body"])

	stored, err := st.Object(ctx, objs[1].LocalID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.Meta.Version)
}

func TestPushPipeline_ZoneLossTriggersRecovery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pp, rs, st := newTestPush(t, ctrl, PushOptions{})
	ctx := context.Background()

	obj := insertTestObject(t, st, testNote("n1", "survivor"))
	intents := []models.ChangeIntent{{Kind: models.ChangeInsert, Object: obj}}

	// Recovery for a reset account runs delete, create, subscribe, reupload,
	// strictly in that order.
	gomock.InOrder(
		rs.EXPECT().
			Submit(ctx, gomock.Any()).
			Return([]models.RecordOutcome{{
				ID:  testRecordID("n1"),
				Err: &remote.ZoneLossError{EncryptedDataReset: true},
			}}, nil),
		rs.EXPECT().DeleteZone(ctx, models.ScopePrivate, testZone).Return(nil),
		rs.EXPECT().CreateZone(ctx, models.ScopePrivate, testZone).Return(nil),
		rs.EXPECT().CreateSubscription(ctx, models.ScopePrivate, testZone).Return(nil),
		rs.EXPECT().
			Submit(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
				require.Len(t, req.Saves, 1)
				assert.Equal(t, int64(0), req.Saves[0].Meta.Version, "reupload must not carry stale version checks")
				return []models.RecordOutcome{okOutcome(serverCopy(req.Saves[0].ID, 1, req.Saves[0].Fields))}, nil
			}),
	)

	require.NoError(t, pp.PushIntents(ctx, intents))
}

func TestPushPipeline_BatchLimitWithDeletesFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pp, rs, st := newTestPush(t, ctrl, PushOptions{BatchLimit: 1, DeletesFirst: true})
	ctx := context.Background()

	obj := insertTestObject(t, st, testNote("n1", "kept"))
	deleted := testRecordID("gone")

	intents := []models.ChangeIntent{
		{Kind: models.ChangeInsert, Object: obj},
		{Kind: models.ChangeDelete, Tombstone: &models.Tombstone{ID: deleted}},
	}

	var requests []models.SubmitRequest
	rs.EXPECT().
		Submit(ctx, gomock.Any()).
		Times(2).
		DoAndReturn(func(_ context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error) {
			requests = append(requests, req)
			outcomes := make([]models.RecordOutcome, 0, len(req.Saves)+len(req.Deletes))
			for _, id := range req.Deletes {
				outcomes = append(outcomes, models.RecordOutcome{ID: id})
			}
			for _, rec := range req.Saves {
				outcomes = append(outcomes, okOutcome(serverCopy(rec.ID, 1, rec.Fields)))
			}
			return outcomes, nil
		})

	require.NoError(t, pp.PushIntents(ctx, intents))

	require.Len(t, requests, 2)
	assert.Equal(t, []models.RecordID{deleted}, requests[0].Deletes)
	assert.Empty(t, requests[0].Saves)
	assert.Empty(t, requests[1].Deletes)
	require.Len(t, requests[1].Saves, 1)
	assert.Equal(t, "n1", requests[1].Saves[0].ID.Name)
}

func TestPushPipeline_DeleteOfUnknownRecordIsSettled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pp, rs, _ := newTestPush(t, ctrl, PushOptions{})
	ctx := context.Background()

	id := testRecordID("never-uploaded")
	rs.EXPECT().
		Submit(ctx, gomock.Any()).
		Return([]models.RecordOutcome{{ID: id, Err: remote.ErrRecordNotFound}}, nil)

	intents := []models.ChangeIntent{{Kind: models.ChangeDelete, Tombstone: &models.Tombstone{ID: id}}}
	require.NoError(t, pp.PushIntents(ctx, intents))
}

func TestPushPipeline_EmptyIntents(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pp, _, _ := newTestPush(t, ctrl, PushOptions{})
	require.NoError(t, pp.PushIntents(context.Background(), nil))
}

func TestMergeRecords(t *testing.T) {
	id := testRecordID("n1")
	local := &models.Record{
		ID:     id,
		Entity: "note",
		Fields: map[string]any{"title": "local"},
		Meta:   models.SystemMetadata{Version: 1},
	}
	server := &models.Record{
		ID:     id,
		Entity: "note",
		Fields: map[string]any{"title": "server", "body": "server body"},
		References: map[string][]models.RecordID{
			"attachments": {testRecordID("a1")},
		},
		Meta: models.SystemMetadata{Version: 9},
	}

	merged := mergeRecords(server, local)
	assert.Equal(t, int64(9), merged.Meta.Version)
	assert.Equal(t, "local", merged.Fields["title"])
	assert.Equal(t, "server body", merged.Fields["body"])
	assert.Equal(t, server.References, merged.References)

	// Without a server copy the local save passes through unchanged.
	alone := mergeRecords(nil, local)
	assert.Equal(t, int64(1), alone.Meta.Version)
	assert.Equal(t, "local", alone.Fields["title"])
}
