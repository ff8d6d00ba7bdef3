// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package models

// RecordOutcome is the per-record result of a submit or fetch call.
// Err is nil on success. On success (and on conflict, where the server
// returns its newer copy) Record carries the server-side record.
type RecordOutcome struct {
	ID     RecordID
	Record *Record
	Err    error
}

// OutcomeCode is the wire form of a per-record result.
type OutcomeCode string

const (
	OutcomeOK           OutcomeCode = "ok"
	OutcomeConflict     OutcomeCode = "conflict"
	OutcomeRateLimited  OutcomeCode = "rate_limited"
	OutcomeZoneNotFound OutcomeCode = "zone_not_found"
	OutcomeNotFound     OutcomeCode = "not_found"
	OutcomeCancelled    OutcomeCode = "cancelled"
	OutcomeError        OutcomeCode = "error"
)

// WireOutcome is the JSON representation of one per-record result.
type WireOutcome struct {
	ID                RecordID    `json:"id"`
	Code              OutcomeCode `json:"code"`
	Record            *Record     `json:"record,omitempty"`
	Message           string      `json:"message,omitempty"`
	RetryAfterSeconds int         `json:"retry_after_seconds,omitempty"`

	// EncryptedDataReset marks a zone_not_found caused by the user resetting
	// their encrypted data; recovery must delete the stale zone first.
	EncryptedDataReset bool `json:"encrypted_data_reset,omitempty"`
}
