// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package remote

import (
	"errors"
	"fmt"
	"time"

	"github.com/cloudmirror/cloudmirror/models"
)

var (
	// ErrCancelled marks an operation that was intentionally cancelled.
	// Callers swallow it rather than reporting it as a failure.
	ErrCancelled = errors.New("operation cancelled")

	// ErrZoneNotFound marks the structural-loss condition: the remote zone
	// the records are parented under no longer exists. Recovery recreates
	// the zone and reuploads all local data.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrRecordNotFound marks a fetch of a record the store does not hold.
	ErrRecordNotFound = errors.New("record not found")

	// ErrUnauthorized marks a rejected or expired session token.
	ErrUnauthorized = errors.New("client unauthorized")

	// ErrOperationUnknown marks a long-lived operation ID the record store
	// has no memory of; the transfer must be reissued from scratch.
	ErrOperationUnknown = errors.New("long-lived operation unknown")
)

// RateLimitError is the transient-retryable outcome: the store asked us to
// back off. RetryAfter is how long all remote submissions must pause.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ConflictError reports a version mismatch on save. Server carries the
// newer server-side copy when the store returned one, allowing the caller
// to merge and resubmit without an extra round trip.
type ConflictError struct {
	Server *models.Record
}

func (e *ConflictError) Error() string {
	if e.Server != nil {
		return fmt.Sprintf("version conflict on %s (server version %d)", e.Server.ID.Name, e.Server.Meta.Version)
	}
	return "version conflict"
}

// ZoneLossError wraps ErrZoneNotFound with the encrypted-data-reset marker;
// recovery must delete the stale zone before recreating it when set.
type ZoneLossError struct {
	EncryptedDataReset bool
}

func (e *ZoneLossError) Error() string {
	if e.EncryptedDataReset {
		return "zone not found (encrypted data was reset)"
	}
	return "zone not found"
}

func (e *ZoneLossError) Is(target error) bool {
	return target == ErrZoneNotFound
}
