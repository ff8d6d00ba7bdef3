// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

// Package remote provides the client for the remote record store: batched
// save/delete submission with per-record outcomes, record-graph fetches,
// zone and subscription management, and resumable long-lived asset
// transfers that survive process restarts via persisted operation IDs.
//
// Error values defined in errors.go are mapped from wire outcomes and HTTP
// status codes by errors_mapper.go so that callers can use errors.Is and
// errors.As for transport-agnostic error handling.
package remote

import (
	"context"

	"github.com/cloudmirror/cloudmirror/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/remote_mock.go -package=mock

// TransferCallbacks receive asset transfer events. Progress may arrive out
// of order under retries; consumers enforce monotonicity. Done fires
// exactly once with the refreshed record on success, or with ErrCancelled
// when the transfer was cancelled intentionally.
type TransferCallbacks struct {
	Progress func(progress float64)
	Done     func(result *models.Record, err error)
}

// AssetUpload describes a resumable long-lived binary upload. OperationID
// must be assigned (and persisted by the caller) before submission so a
// restart can reattach instead of resubmitting duplicate work.
type AssetUpload struct {
	OperationID string
	Record      *models.Record
	Field       string
	Path        string
	Callbacks   TransferCallbacks
}

// AssetDownload describes a resumable long-lived binary download into
// DestPath.
type AssetDownload struct {
	OperationID string
	ID          models.RecordID
	Field       string
	DestPath    string
	Callbacks   TransferCallbacks
}

// RecordStore is the remote record-store client contract consumed by the
// push pipeline, the pull pipeline, and the cache manager.
type RecordStore interface {
	// Submit ships one batch of saves and deletes and returns per-record
	// outcomes in the server's processing order. The returned error covers
	// request-level failures only; record-level failures live in the
	// outcomes.
	Submit(ctx context.Context, req models.SubmitRequest) ([]models.RecordOutcome, error)

	// Fetch retrieves records by identifier, restricted to desired fields
	// when given. Missing records yield per-record not-found outcomes.
	Fetch(ctx context.Context, req models.FetchRequest) ([]models.RecordOutcome, error)

	// CreateZone creates the named zone. Creating an existing zone is not
	// an error.
	CreateZone(ctx context.Context, scope models.Scope, zone string) error

	// DeleteZone removes the named zone and all records in it.
	DeleteZone(ctx context.Context, scope models.Scope, zone string) error

	// CreateSubscription registers for change notifications on the zone.
	// Creating an existing subscription is not an error.
	CreateSubscription(ctx context.Context, scope models.Scope, zone string) error

	// FetchLongLivedOperation looks up a long-lived operation by ID.
	// Returns (nil, nil) when the store has no memory of the ID.
	FetchLongLivedOperation(ctx context.Context, operationID string) (*models.OperationStatus, error)

	// UploadAsset starts (or resumes, when the store already holds part of
	// the payload for the operation ID) an asynchronous binary upload.
	// Events are delivered through the callbacks.
	UploadAsset(ctx context.Context, req AssetUpload) error

	// DownloadAsset starts or resumes an asynchronous binary download.
	DownloadAsset(ctx context.Context, req AssetDownload) error

	// CancelTransfer requests cooperative cancellation of an in-flight
	// transfer by operation ID. Unknown IDs are ignored.
	CancelTransfer(operationID string)
}
