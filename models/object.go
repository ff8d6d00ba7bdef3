// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package models

// Object is an entity instance in the local store together with its service
// attributes: the remote identifier, cached system metadata, the set of
// fields changed since the last successful push, and (for cacheable
// entities) the binary-cache bookkeeping.
type Object struct {
	LocalID int64
	Entity  string

	RecordName string
	ZoneName   string
	OwnerName  string
	Scope      Scope

	Fields map[string]any

	// Relations maps a relationship name to local IDs of target objects.
	// To-one relationships hold at most one element.
	Relations map[string][]int64

	// Meta is nil until the record has been saved remotely at least once.
	Meta *SystemMetadata

	// ChangedFields lists field names modified since the last push.
	ChangedFields []string

	// Cache is nil for entities that are not cacheable.
	Cache *CacheInfo
}

// RecordID assembles the remote identifier of the object.
func (o *Object) RecordID() RecordID {
	return RecordID{
		Name:  o.RecordName,
		Zone:  o.ZoneName,
		Owner: o.OwnerName,
		Scope: o.Scope,
	}
}

// MarkChanged records field names as pending for the next push, without
// duplicates.
func (o *Object) MarkChanged(fields ...string) {
	have := make(map[string]bool, len(o.ChangedFields))
	for _, f := range o.ChangedFields {
		have[f] = true
	}
	for _, f := range fields {
		if !have[f] {
			o.ChangedFields = append(o.ChangedFields, f)
			have[f] = true
		}
	}
}
