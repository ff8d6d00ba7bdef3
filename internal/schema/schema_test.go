// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmirror/cloudmirror/models"
)

func sampleMetadata() *StaticMetadata {
	return NewMetadata(
		Entity{
			Name:   "note",
			Fields: []Field{{Name: "title", Type: FieldString}},
			Relationships: []Relationship{
				{Name: "attachments", TargetEntity: "attachment", ToMany: true},
			},
			Scopes: []models.Scope{models.ScopePrivate, models.ScopePublic},
		},
		Entity{
			Name:       "attachment",
			Fields:     []Field{{Name: "filename", Type: FieldString}},
			Cacheable:  true,
			AssetField: "payload",
		},
	)
}

func TestMetadata_EntityLookup(t *testing.T) {
	m := sampleMetadata()

	ent, ok := m.Entity("note")
	require.True(t, ok)
	assert.Equal(t, "note", ent.Name)

	_, ok = m.Entity("ghost")
	assert.False(t, ok)
}

func TestMetadata_EntitiesKeepDeclarationOrder(t *testing.T) {
	m := sampleMetadata()

	ents := m.Entities()
	require.Len(t, ents, 2)
	assert.Equal(t, "note", ents[0].Name)
	assert.Equal(t, "attachment", ents[1].Name)
}

func TestMetadata_DuplicateDeclarationReplaces(t *testing.T) {
	m := NewMetadata(
		Entity{Name: "note", Fields: []Field{{Name: "old", Type: FieldString}}},
		Entity{Name: "note", Fields: []Field{{Name: "new", Type: FieldString}}},
	)

	ents := m.Entities()
	require.Len(t, ents, 1)
	_, ok := ents[0].Field("new")
	assert.True(t, ok)
}

func TestMetadata_CacheableEntities(t *testing.T) {
	m := sampleMetadata()

	cacheable := m.CacheableEntities()
	require.Len(t, cacheable, 1)
	assert.Equal(t, "attachment", cacheable[0].Name)
	assert.Equal(t, "payload", cacheable[0].AssetField)
}

func TestEntity_FieldAndRelationshipLookup(t *testing.T) {
	m := sampleMetadata()
	note, _ := m.Entity("note")

	f, ok := note.Field("title")
	require.True(t, ok)
	assert.Equal(t, FieldString, f.Type)

	_, ok = note.Field("missing")
	assert.False(t, ok)

	rel, ok := note.Relationship("attachments")
	require.True(t, ok)
	assert.True(t, rel.ToMany)
	assert.Equal(t, "attachment", rel.TargetEntity)

	_, ok = note.Relationship("missing")
	assert.False(t, ok)
}

func TestEntity_EffectiveScopes(t *testing.T) {
	m := sampleMetadata()

	note, _ := m.Entity("note")
	assert.Equal(t, []models.Scope{models.ScopePrivate, models.ScopePublic}, note.EffectiveScopes())

	att, _ := m.Entity("attachment")
	assert.Equal(t, []models.Scope{models.ScopePrivate}, att.EffectiveScopes(), "private is the default scope")
}
