// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import "github.com/cloudmirror/cloudmirror/models"

// PullSession accumulates the state of one pull: the objects touched so
// far keyed by record name, the visited set that keeps graph traversal
// from looping, and the wire references awaiting resolution to local IDs
// after the first commit.
type PullSession struct {
	byName  map[string]*models.Object
	created map[string]bool
	seen    map[string]bool
	refs    []pendingReference
}

// pendingReference is one relationship of one object as received on the
// wire. Targets resolve to local IDs only after the session's first commit
// assigns IDs to created objects.
type pendingReference struct {
	source  *models.Object
	relName string
	targets []models.RecordID
}

func NewPullSession() *PullSession {
	return &PullSession{
		byName:  make(map[string]*models.Object),
		created: make(map[string]bool),
		seen:    make(map[string]bool),
	}
}

// Lookup returns the session's object for a record name, nil if the record
// has not been applied in this session.
func (s *PullSession) Lookup(recordName string) *models.Object {
	return s.byName[recordName]
}

// Track registers an applied object so later records in the same pull
// match it instead of re-reading the store.
func (s *PullSession) Track(obj *models.Object, created bool) {
	s.byName[obj.RecordName] = obj
	if created {
		s.created[obj.RecordName] = true
	}
}

// MarkSeen records a visit attempt and reports whether the identifier was
// new. Used by the traversal frontier so cyclic graphs terminate.
func (s *PullSession) MarkSeen(id models.RecordID) bool {
	key := id.Key()
	if s.seen[key] {
		return false
	}
	s.seen[key] = true
	return true
}

// AddReference queues a relationship value for post-commit resolution.
// A nil targets slice means the server-side relationship is empty and the
// local one must be cleared.
func (s *PullSession) AddReference(source *models.Object, relName string, targets []models.RecordID) {
	s.refs = append(s.refs, pendingReference{source: source, relName: relName, targets: targets})
}

// PendingReferences returns the queued relationship values.
func (s *PullSession) PendingReferences() []pendingReference {
	return s.refs
}

// Objects returns every object applied during the session.
func (s *PullSession) Objects() []*models.Object {
	out := make([]*models.Object, 0, len(s.byName))
	for _, obj := range s.byName {
		out = append(out, obj)
	}
	return out
}
