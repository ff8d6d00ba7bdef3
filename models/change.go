// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package models

// ChangeKind classifies one durable local mutation.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Tombstone retains what a delete needs to remain actionable after the
// originating object is gone: the remote identifier to delete and any
// operation ID of an in-flight asset transfer that must be cancelled.
type Tombstone struct {
	ID          RecordID `json:"id"`
	OperationID string   `json:"operation_id,omitempty"`
}

// Change is one entry of a history transaction.
type Change struct {
	Kind          ChangeKind `json:"kind"`
	Entity        string     `json:"entity"`
	ObjectID      int64      `json:"object_id,omitempty"`
	ChangedFields []string   `json:"changed_fields,omitempty"`
	Tombstone     *Tombstone `json:"tombstone,omitempty"`
}

// Transaction is the ordered change set of a single logical local commit,
// tagged with the name of the context that produced it. Token is the cursor
// value positioned just after this transaction.
type Transaction struct {
	Token       string
	ContextName string
	Changes     []Change
}

// ChangeIntent is one unit of push work derived from a Change: either an
// object snapshot to save or a tombstone to delete. Consumed exactly once.
type ChangeIntent struct {
	Kind          ChangeKind
	Object        *Object
	ChangedFields []string
	Tombstone     *Tombstone
}
