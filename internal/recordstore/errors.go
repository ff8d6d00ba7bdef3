// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import "errors"

var (
	// ErrRecordNotFound is returned when a queried record does not exist.
	ErrRecordNotFound = errors.New("record is not found")

	// ErrZoneNotFound is returned when a record operation targets a zone
	// that does not exist.
	ErrZoneNotFound = errors.New("zone is not found")

	// ErrVersionConflict is returned when a save carries a stale version:
	// another device changed the record since the submitter last saw it.
	ErrVersionConflict = errors.New("record version conflict")

	// ErrOperationNotFound is returned when a long-lived operation ID is
	// unknown to the store.
	ErrOperationNotFound = errors.New("operation is not found")

	// ErrOperationCancelled is returned when data arrives for an operation
	// that was already cancelled.
	ErrOperationCancelled = errors.New("operation is cancelled")

	// ErrDeviceNotFound is returned when token issuance is requested with
	// an unknown access key.
	ErrDeviceNotFound = errors.New("device is not registered")

	// ErrTokenIsExpired is returned when a presented session token is past
	// its expiry.
	ErrTokenIsExpired = errors.New("token is expired")

	// ErrChecksumMismatch is returned when a completed upload's payload
	// does not hash to the checksum announced at registration.
	ErrChecksumMismatch = errors.New("uploaded payload checksum mismatch")
)
