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

func newTestPull(t *testing.T, ctrl *gomock.Controller) (*PullPipeline, *mock.MockRecordStore, *store.Store, *sinkRecorder) {
	t.Helper()
	st := newTestStore(t)
	rs := mock.NewMockRecordStore(ctrl)
	rec := &sinkRecorder{}
	meta := testMetadata()
	conv := NewConverter(st, meta, testZone)
	pull := NewPullPipeline(st, rs, conv, meta, NewPauser(), rec.sink, logger.Nop(), 400)
	return pull, rs, st, rec
}

func TestPullPipeline_PullRecords_CyclicGraphTerminates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pull, rs, st, rec := newTestPull(t, ctrl)
	ctx := context.Background()

	noteID := testRecordID("n1")
	attID := testRecordID("a1")

	noteRec := &models.Record{
		ID:         noteID,
		Entity:     "note",
		Fields:     map[string]any{"title": "trip"},
		References: map[string][]models.RecordID{"attachments": {attID}},
		Meta:       models.SystemMetadata{Version: 1},
	}
	attRec := &models.Record{
		ID:         attID,
		Entity:     "attachment",
		Fields:     map[string]any{"filename": "photo.jpg"},
		References: map[string][]models.RecordID{"note": {noteID}},
		Meta:       models.SystemMetadata{Version: 1},
	}

	// Wave one fetches the seed, wave two its reference. The back reference
	// to the seed is already visited, so no third wave happens.
	rs.EXPECT().
		Fetch(ctx, models.FetchRequest{Scope: models.ScopePrivate, IDs: []models.RecordID{noteID}}).
		Return([]models.RecordOutcome{{ID: noteID, Record: noteRec}}, nil)
	rs.EXPECT().
		Fetch(ctx, models.FetchRequest{Scope: models.ScopePrivate, IDs: []models.RecordID{attID}}).
		Return([]models.RecordOutcome{{ID: attID, Record: attRec}}, nil)

	require.NoError(t, pull.PullRecords(ctx, []models.RecordID{noteID}))
	assert.Empty(t, rec.errors())

	note, err := st.ObjectByRecordName(ctx, "n1")
	require.NoError(t, err)
	att, err := st.ObjectByRecordName(ctx, "a1")
	require.NoError(t, err)

	assert.Equal(t, []int64{att.LocalID}, note.Relations["attachments"])
	assert.Equal(t, []int64{note.LocalID}, att.Relations["note"])
}

func TestPullPipeline_PullRecords_RemoteDeleteRemovesLocal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pull, rs, st, rec := newTestPull(t, ctrl)
	ctx := context.Background()

	insertTestObject(t, st, testNote("n1", "doomed"))

	id := testRecordID("n1")
	rs.EXPECT().
		Fetch(ctx, gomock.Any()).
		Return([]models.RecordOutcome{{ID: id, Err: remote.ErrRecordNotFound}}, nil)

	require.NoError(t, pull.PullRecords(ctx, []models.RecordID{id}))
	assert.Empty(t, rec.errors())

	_, err := st.ObjectByRecordName(ctx, "n1")
	assert.True(t, store.IsNotFound(err))
}

func TestPullPipeline_PullRecords_UnresolvedReferenceWarns(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pull, rs, st, rec := newTestPull(t, ctrl)
	ctx := context.Background()

	noteID := testRecordID("n1")
	ghostID := testRecordID("ghost")

	noteRec := &models.Record{
		ID:         noteID,
		Entity:     "note",
		Fields:     map[string]any{"title": "dangling"},
		References: map[string][]models.RecordID{"attachments": {ghostID}},
		Meta:       models.SystemMetadata{Version: 1},
	}

	rs.EXPECT().
		Fetch(ctx, models.FetchRequest{Scope: models.ScopePrivate, IDs: []models.RecordID{noteID}}).
		Return([]models.RecordOutcome{{ID: noteID, Record: noteRec}}, nil)
	rs.EXPECT().
		Fetch(ctx, models.FetchRequest{Scope: models.ScopePrivate, IDs: []models.RecordID{ghostID}}).
		Return([]models.RecordOutcome{{ID: ghostID, Err: remote.ErrRecordNotFound}}, nil)

	require.NoError(t, pull.PullRecords(ctx, []models.RecordID{noteID}))

	errs := rec.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnresolvedReference)

	// The note still lands, just without the broken edge.
	note, err := st.ObjectByRecordName(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, note.Relations["attachments"])
}

func TestPullPipeline_PullRecords_EmptyInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pull, _, _, _ := newTestPull(t, ctrl)
	require.NoError(t, pull.PullRecords(context.Background(), nil))
}

func TestPullPipeline_PullRecords_PausedReturnsWithoutFetching(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pull, _, _, _ := newTestPull(t, ctrl)
	pull.pauser.PauseFor(time.Hour)

	// No Fetch expectation: nothing may reach the wire while paused.
	err := pull.PullRecords(context.Background(), []models.RecordID{testRecordID("n1")})
	assert.ErrorIs(t, err, ErrPaused)
}
