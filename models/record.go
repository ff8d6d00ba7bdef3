// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package models

import "time"

// Scope selects the remote database a record lives in. Records owned by the
// current device account live in the private scope; shared/world-readable
// records live in the public scope.
type Scope string

const (
	ScopePrivate Scope = "private"
	ScopePublic  Scope = "public"
)

// RecordID addresses one record in the remote store: a record name unique
// within a zone, the zone name, and the zone owner.
type RecordID struct {
	Name  string `json:"name"`
	Zone  string `json:"zone"`
	Owner string `json:"owner"`
	Scope Scope  `json:"scope"`
}

// Key returns a string usable as a map key for seen-sets and routing.
func (id RecordID) Key() string {
	return string(id.Scope) + "/" + id.Owner + "/" + id.Zone + "/" + id.Name
}

func (id RecordID) IsZero() bool {
	return id.Name == ""
}

// SystemMetadata is the server-side bookkeeping the local side caches for a
// record so it can reissue a conflict-checked save: the version the server
// held when we last saw the record, and when the server last modified it.
type SystemMetadata struct {
	Version    int64     `json:"version"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Record is the wire representation of one entity instance. A Record is
// immutable once fetched; a resave produces a new value.
type Record struct {
	ID     RecordID       `json:"id"`
	Entity string         `json:"entity"`
	Fields map[string]any `json:"fields"`

	// References maps a relationship name to the identifiers of the target
	// records. To-one relationships carry exactly one element.
	References map[string][]RecordID `json:"references,omitempty"`

	Meta SystemMetadata `json:"meta"`
}

// Reference fields on a record, in deterministic map order is not required;
// callers that need ordering sort the relationship names themselves.

// CloneForSave returns a shallow copy of r restricted to the given field
// names. An empty fields list keeps everything. References are always kept:
// the backend accepts arbitrary same-batch graphs and re-sending reference
// fields is how relationship edits propagate.
func (r *Record) CloneForSave(fields []string) *Record {
	out := &Record{
		ID:         r.ID,
		Entity:     r.Entity,
		Fields:     r.Fields,
		References: r.References,
		Meta:       r.Meta,
	}
	if len(fields) == 0 {
		return out
	}

	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	filtered := make(map[string]any, len(fields))
	for name, value := range r.Fields {
		if keep[name] {
			filtered[name] = value
		}
	}
	out.Fields = filtered
	return out
}
