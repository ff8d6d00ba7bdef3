// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

// Package schema describes the application data model to the sync engine:
// which entities exist, their fields, their relationships, and which of
// them carry a large binary payload synchronized independently of their
// other fields. The engine consumes this metadata read-only.
package schema

import "github.com/cloudmirror/cloudmirror/models"

// FieldType enumerates the field value types the converter understands.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldTime   FieldType = "time"
	FieldBytes  FieldType = "bytes"
)

// Field declares one mapped field of an entity.
type Field struct {
	Name string
	Type FieldType
}

// Relationship declares a named link to another entity. ToMany selects
// set semantics; otherwise the relationship holds at most one target.
type Relationship struct {
	Name         string
	TargetEntity string
	ToMany       bool
}

// Entity is the per-entity mapping declaration consumed by the converter
// and the cache manager.
type Entity struct {
	Name          string
	Fields        []Field
	Relationships []Relationship

	// Scopes lists the remote scopes records of this entity may live in.
	// Empty means private only.
	Scopes []models.Scope

	// Cacheable marks entities carrying a large binary payload; AssetField
	// names the record field the payload travels in.
	Cacheable  bool
	AssetField string
}

// Relationship returns the named relationship declaration, if present.
func (e Entity) Relationship(name string) (Relationship, bool) {
	for _, r := range e.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// Field returns the named field declaration, if present.
func (e Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// EffectiveScopes returns the declared scopes, defaulting to private.
func (e Entity) EffectiveScopes() []models.Scope {
	if len(e.Scopes) == 0 {
		return []models.Scope{models.ScopePrivate}
	}
	return e.Scopes
}

//go:generate mockgen -source=schema.go -destination=../mock/schema_mock.go -package=mock

// Metadata is the read-only schema collaborator interface.
type Metadata interface {
	// Entity returns the declaration of the named entity.
	Entity(name string) (Entity, bool)

	// Entities returns all declared entities.
	Entities() []Entity

	// CacheableEntities returns the subset of entities carrying a binary
	// payload.
	CacheableEntities() []Entity
}

// StaticMetadata is a map-backed Metadata implementation assembled at
// startup from entity declarations.
type StaticMetadata struct {
	byName map[string]Entity
	order  []string
}

// NewMetadata builds a StaticMetadata from the given entity declarations.
// Later declarations with a duplicate name replace earlier ones.
func NewMetadata(entities ...Entity) *StaticMetadata {
	m := &StaticMetadata{byName: make(map[string]Entity, len(entities))}
	for _, e := range entities {
		if _, exists := m.byName[e.Name]; !exists {
			m.order = append(m.order, e.Name)
		}
		m.byName[e.Name] = e
	}
	return m
}

func (m *StaticMetadata) Entity(name string) (Entity, bool) {
	e, ok := m.byName[name]
	return e, ok
}

func (m *StaticMetadata) Entities() []Entity {
	out := make([]Entity, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.byName[name])
	}
	return out
}

func (m *StaticMetadata) CacheableEntities() []Entity {
	var out []Entity
	for _, name := range m.order {
		if e := m.byName[name]; e.Cacheable {
			out = append(out, e)
		}
	}
	return out
}
