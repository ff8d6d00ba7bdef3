// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmirror/cloudmirror/internal/schema"
	"github.com/cloudmirror/cloudmirror/models"
)

func TestConverter_ToRecord_DeclaredFieldsOnly(t *testing.T) {
	st := newTestStore(t)
	conv := NewConverter(st, testMetadata(), testZone)
	ctx := context.Background()

	obj := testNote("n1", "groceries")
	obj.Fields["body"] = "milk, eggs"
	obj.Fields["color"] = "red" // not declared in the schema
	insertTestObject(t, st, obj)

	rec, err := conv.ToRecord(ctx, obj)
	require.NoError(t, err)

	assert.Equal(t, "note", rec.Entity)
	assert.Equal(t, testRecordID("n1"), rec.ID)
	assert.Equal(t, "groceries", rec.Fields["title"])
	assert.Equal(t, "milk, eggs", rec.Fields["body"])
	assert.NotContains(t, rec.Fields, "color")
}

func TestConverter_ToRecord_ResolvesRelations(t *testing.T) {
	st := newTestStore(t)
	conv := NewConverter(st, testMetadata(), testZone)
	ctx := context.Background()

	att := insertTestObject(t, st, &models.Object{
		Entity:     "attachment",
		RecordName: "a1",
		ZoneName:   testZone,
		Scope:      models.ScopePrivate,
		Fields:     map[string]any{"filename": "photo.jpg"},
	})

	note := testNote("n1", "trip")
	note.Relations = map[string][]int64{"attachments": {att.LocalID}}
	insertTestObject(t, st, note)

	rec, err := conv.ToRecord(ctx, note)
	require.NoError(t, err)
	require.Contains(t, rec.References, "attachments")
	assert.Equal(t, []models.RecordID{testRecordID("a1")}, rec.References["attachments"])
}

func TestConverter_ToRecord_SkipsMissingRelationTargets(t *testing.T) {
	st := newTestStore(t)
	conv := NewConverter(st, testMetadata(), testZone)

	note := testNote("n1", "trip")
	note.Relations = map[string][]int64{"attachments": {99999}}
	insertTestObject(t, st, note)

	rec, err := conv.ToRecord(context.Background(), note)
	require.NoError(t, err)
	assert.NotContains(t, rec.References, "attachments")
}

func TestConverter_ToRecord_UnknownEntity(t *testing.T) {
	st := newTestStore(t)
	conv := NewConverter(st, testMetadata(), testZone)

	_, err := conv.ToRecord(context.Background(), &models.Object{Entity: "ghost"})
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestConverter_ApplyRecord_CreatesAndUpdates(t *testing.T) {
	st := newTestStore(t)
	conv := NewConverter(st, testMetadata(), testZone)
	ctx := context.Background()

	rec := &models.Record{
		ID:     testRecordID("n1"),
		Entity: "note",
		Fields: map[string]any{"title": "first", "pinned": true},
		Meta:   models.SystemMetadata{Version: 1},
	}

	sess := NewPullSession()
	sc := st.NewContext(pullContextName)
	_, err := conv.ApplyRecord(ctx, sess, sc, rec)
	require.NoError(t, err)
	require.NoError(t, sc.Save(ctx))

	obj, err := st.ObjectByRecordName(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "first", obj.Fields["title"])
	assert.Equal(t, true, obj.Fields["pinned"])
	require.NotNil(t, obj.Meta)
	assert.Equal(t, int64(1), obj.Meta.Version)

	// Applying a newer copy of the same record updates the same object.
	rec2 := &models.Record{
		ID:     testRecordID("n1"),
		Entity: "note",
		Fields: map[string]any{"title": "second"},
		Meta:   models.SystemMetadata{Version: 2},
	}
	sess2 := NewPullSession()
	sc2 := st.NewContext(pullContextName)
	_, err = conv.ApplyRecord(ctx, sess2, sc2, rec2)
	require.NoError(t, err)
	require.NoError(t, sc2.Save(ctx))

	all, err := st.ObjectsByEntity(ctx, "note")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "second", all[0].Fields["title"])
	assert.Equal(t, true, all[0].Fields["pinned"], "fields absent from the record stay untouched")
	assert.Equal(t, int64(2), all[0].Meta.Version)
}

func TestConverter_ApplyRecord_Idempotent(t *testing.T) {
	st := newTestStore(t)
	conv := NewConverter(st, testMetadata(), testZone)
	ctx := context.Background()

	rec := &models.Record{
		ID:     testRecordID("n1"),
		Entity: "note",
		Fields: map[string]any{"title": "same"},
		Meta:   models.SystemMetadata{Version: 3},
	}

	for i := 0; i < 2; i++ {
		sess := NewPullSession()
		sc := st.NewContext(pullContextName)
		_, err := conv.ApplyRecord(ctx, sess, sc, rec)
		require.NoError(t, err)
		require.NoError(t, sc.Save(ctx))
	}

	all, err := st.ObjectsByEntity(ctx, "note")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "same", all[0].Fields["title"])
	assert.Equal(t, int64(3), all[0].Meta.Version)
}

func TestConverter_ApplyRecord_ClearsPendingPush(t *testing.T) {
	st := newTestStore(t)
	conv := NewConverter(st, testMetadata(), testZone)
	ctx := context.Background()

	obj := testNote("n1", "local edit")
	obj.ChangedFields = []string{"title"}
	insertTestObject(t, st, obj)

	rec := &models.Record{
		ID:     testRecordID("n1"),
		Entity: "note",
		Fields: map[string]any{"title": "server wins"},
		Meta:   models.SystemMetadata{Version: 5},
	}
	sess := NewPullSession()
	sc := st.NewContext(pullContextName)
	applied, err := conv.ApplyRecord(ctx, sess, sc, rec)
	require.NoError(t, err)
	require.NoError(t, sc.Save(ctx))

	assert.Empty(t, applied.ChangedFields)
}

func TestConverter_ApplyRecord_CacheableGetsRemoteState(t *testing.T) {
	st := newTestStore(t)
	conv := NewConverter(st, testMetadata(), testZone)
	ctx := context.Background()

	rec := &models.Record{
		ID:     testRecordID("a1"),
		Entity: "attachment",
		Fields: map[string]any{"filename": "scan.pdf"},
		Meta:   models.SystemMetadata{Version: 1},
	}
	sess := NewPullSession()
	sc := st.NewContext(pullContextName)
	applied, err := conv.ApplyRecord(ctx, sess, sc, rec)
	require.NoError(t, err)
	require.NoError(t, sc.Save(ctx))

	require.NotNil(t, applied.Cache)
	assert.Equal(t, models.CacheStateRemote, applied.Cache.State)
}

func TestNormalizeValue(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ft      schema.FieldType
		raw     any
		want    any
		wantErr bool
	}{
		{name: "string", ft: schema.FieldString, raw: "hi", want: "hi"},
		{name: "int from json number", ft: schema.FieldInt, raw: float64(42), want: int64(42)},
		{name: "float", ft: schema.FieldFloat, raw: 1.5, want: 1.5},
		{name: "bool", ft: schema.FieldBool, raw: true, want: true},
		{name: "time from wire", ft: schema.FieldTime, raw: ts.Format(time.RFC3339Nano), want: ts},
		{name: "bytes from base64", ft: schema.FieldBytes, raw: "aGk=", want: []byte("hi")},
		{name: "nil passes through", ft: schema.FieldString, raw: nil, want: nil},
		{name: "type mismatch", ft: schema.FieldInt, raw: "42", wantErr: true},
		{name: "bad timestamp", ft: schema.FieldTime, raw: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeValue(tt.ft, tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
