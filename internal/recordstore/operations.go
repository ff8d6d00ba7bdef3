// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cloudmirror/cloudmirror/internal/checksum"
	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/models"
)

// assetValue is the record field value an attached asset is stored under.
type assetValue struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Transfers implements the server side of resumable long-lived asset
// operations. Upload chunks accumulate in a local staging file keyed by
// operation ID; on completion the staged payload is verified and moved
// into the blob store, and the asset key is written onto the record.
type Transfers struct {
	repo       *Repository
	blobs      BlobStore
	stagingDir string
	logger     *logger.Logger
}

func NewTransfers(repo *Repository, blobs BlobStore, stagingDir string, log *logger.Logger) (*Transfers, error) {
	if err := os.MkdirAll(stagingDir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Transfers{repo: repo, blobs: blobs, stagingDir: stagingDir, logger: log}, nil
}

func (t *Transfers) stagingPath(operationID string) string {
	return filepath.Join(t.stagingDir, operationID)
}

func assetKey(recordName, field string) string {
	return "assets/" + recordName + "/" + field
}

// Register makes an operation known, idempotently: re-registering an
// existing ID returns its current status with the committed offset, which
// is what lets an interrupted client resume. Download registrations
// resolve the payload size and checksum from the target record's asset
// field.
func (t *Transfers) Register(ctx context.Context, st models.OperationStatus, device string) (models.OperationStatus, error) {
	if st.Kind == models.OperationDownload {
		asset, err := t.lookupAsset(ctx, st.RecordID, st.Field)
		if err != nil {
			return models.OperationStatus{}, err
		}
		st.Size = asset.Size
		st.Checksum = asset.Checksum
	}

	if _, err := t.repo.db.ExecContext(ctx, insertOperation,
		st.ID, st.Kind, st.RecordID.Name, st.Field, device, st.Size, st.Checksum,
	); err != nil {
		return models.OperationStatus{}, fmt.Errorf("register operation: %w", err)
	}
	return t.Get(ctx, st.ID)
}

// Get returns the current status of an operation.
func (t *Transfers) Get(ctx context.Context, operationID string) (models.OperationStatus, error) {
	var (
		st   models.OperationStatus
		kind string
	)
	err := t.repo.db.QueryRowContext(ctx, selectOperation, operationID).
		Scan(&st.ID, &kind, &st.RecordID.Name, &st.Field, &st.Offset, &st.Size, &st.State, &st.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return models.OperationStatus{}, ErrOperationNotFound
	}
	if err != nil {
		return models.OperationStatus{}, fmt.Errorf("load operation: %w", err)
	}
	st.Kind = kind
	return st, nil
}

// AppendChunk stores one upload chunk at the given offset and returns the
// new committed offset. A chunk below the committed offset was already
// received and is acknowledged without rewriting; a chunk past it means
// the client skipped data and is rejected.
func (t *Transfers) AppendChunk(ctx context.Context, operationID string, offset int64, data []byte) (int64, error) {
	st, err := t.Get(ctx, operationID)
	if err != nil {
		return 0, err
	}
	if st.State == models.OperationCancelled {
		return 0, ErrOperationCancelled
	}
	if st.Kind != models.OperationUpload || st.State != models.OperationRunning {
		return 0, fmt.Errorf("operation %s does not accept data", operationID)
	}

	if offset+int64(len(data)) <= st.Offset {
		return st.Offset, nil
	}
	if offset > st.Offset {
		return 0, fmt.Errorf("chunk offset %d is past committed offset %d", offset, st.Offset)
	}

	f, err := os.OpenFile(t.stagingPath(operationID), os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return 0, fmt.Errorf("open staging file: %w", err)
	}
	defer f.Close()

	if _, err = f.WriteAt(data, offset); err != nil {
		return 0, fmt.Errorf("write staged chunk: %w", err)
	}
	if err = f.Sync(); err != nil {
		return 0, fmt.Errorf("sync staged chunk: %w", err)
	}

	committed := offset + int64(len(data))
	if _, err = t.repo.db.ExecContext(ctx, advanceOperationOffset, operationID, committed); err != nil {
		return 0, fmt.Errorf("advance operation offset: %w", err)
	}
	return committed, nil
}

// Complete finalizes an upload: the staged payload is checksum verified,
// moved into the blob store, and attached to the record as its asset field
// value. Returns the refreshed record with its bumped version.
func (t *Transfers) Complete(ctx context.Context, operationID string) (*models.Record, error) {
	st, err := t.Get(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if st.State == models.OperationCancelled {
		return nil, ErrOperationCancelled
	}
	if st.Kind != models.OperationUpload {
		return nil, fmt.Errorf("operation %s is not an upload", operationID)
	}
	if st.Offset != st.Size {
		return nil, fmt.Errorf("upload incomplete: %d of %d bytes", st.Offset, st.Size)
	}

	staged := t.stagingPath(operationID)
	sum, err := checksum.File(staged)
	if err != nil {
		return nil, err
	}
	if st.Checksum != "" && sum != st.Checksum {
		return nil, ErrChecksumMismatch
	}

	f, err := os.Open(staged)
	if err != nil {
		return nil, fmt.Errorf("open staged payload: %w", err)
	}
	key := assetKey(st.RecordID.Name, st.Field)
	err = t.blobs.Put(ctx, key, f, st.Size)
	_ = f.Close()
	if err != nil {
		return nil, err
	}

	rec, err := t.repo.SetRecordField(ctx, st.RecordID.Name, st.Field, assetValue{
		Key:      key,
		Size:     st.Size,
		Checksum: sum,
	})
	if err != nil {
		return nil, err
	}

	if _, err = t.repo.db.ExecContext(ctx, finishOperation, operationID); err != nil {
		return nil, fmt.Errorf("finish operation: %w", err)
	}
	if err = os.Remove(staged); err != nil && !os.IsNotExist(err) {
		t.logger.Warn().Err(err).Str("operation", operationID).Msg("failed to remove staged payload")
	}
	return rec, nil
}

// ReadChunk streams payload bytes of a download operation.
func (t *Transfers) ReadChunk(ctx context.Context, operationID string, offset, limit int64) (io.ReadCloser, error) {
	st, err := t.Get(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if st.State == models.OperationCancelled {
		return nil, ErrOperationCancelled
	}
	if st.Kind != models.OperationDownload {
		return nil, fmt.Errorf("operation %s is not a download", operationID)
	}
	return t.blobs.Get(ctx, assetKey(st.RecordID.Name, st.Field), offset, limit)
}

// Cancel marks an operation cancelled and discards any staged payload.
func (t *Transfers) Cancel(ctx context.Context, operationID string) error {
	if _, err := t.repo.db.ExecContext(ctx, cancelOperation, operationID); err != nil {
		return fmt.Errorf("cancel operation: %w", err)
	}
	if err := os.Remove(t.stagingPath(operationID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged payload: %w", err)
	}
	return nil
}

// lookupAsset reads the asset descriptor off a record's asset field.
func (t *Transfers) lookupAsset(ctx context.Context, id models.RecordID, field string) (assetValue, error) {
	recs, err := t.repo.FetchRecords(ctx, []models.RecordID{id}, nil)
	if err != nil {
		return assetValue{}, err
	}
	rec, ok := recs[id.Name]
	if !ok {
		return assetValue{}, ErrRecordNotFound
	}

	raw, ok := rec.Fields[field].(map[string]any)
	if !ok {
		return assetValue{}, fmt.Errorf("record %s has no asset in field %s: %w", id.Name, field, ErrRecordNotFound)
	}
	out := assetValue{}
	if s, ok := raw["key"].(string); ok {
		out.Key = s
	}
	if n, ok := raw["size"].(float64); ok {
		out.Size = int64(n)
	}
	if s, ok := raw["checksum"].(string); ok {
		out.Checksum = s
	}
	return out, nil
}
