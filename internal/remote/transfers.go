// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/cloudmirror/cloudmirror/internal/checksum"

	"github.com/cloudmirror/cloudmirror/models"
)

const partialSuffix = ".partial"

// registerOperation announces a transfer to the server and returns its
// current status. Registering an already known operation ID is idempotent
// and returns the committed offset, which is what makes resumption work.
func (r *httpRecordStore) registerOperation(ctx context.Context, st models.OperationStatus) (*models.OperationStatus, error) {
	resp, err := r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
		return rr.SetHeader("Content-Type", "application/json").
			SetBody(st).
			Post("/api/operations")
	})
	if err != nil {
		return nil, fmt.Errorf("register operation: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var out models.OperationStatus
	if err = json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode operation status: %w", err)
	}
	return &out, nil
}

func (r *httpRecordStore) trackTransfer(operationID string, cancel context.CancelFunc) {
	r.transferMu.Lock()
	defer r.transferMu.Unlock()
	r.transfers[operationID] = cancel
}

func (r *httpRecordStore) untrackTransfer(operationID string) {
	r.transferMu.Lock()
	defer r.transferMu.Unlock()
	delete(r.transfers, operationID)
}

func (r *httpRecordStore) UploadAsset(ctx context.Context, up AssetUpload) error {
	if up.OperationID == "" {
		return errors.New("upload asset: empty operation id")
	}
	if up.Record == nil || up.Field == "" {
		return errors.New("upload asset: record and field are required")
	}

	info, err := os.Stat(up.Path)
	if err != nil {
		return fmt.Errorf("upload asset stat: %w", err)
	}
	sum, err := checksum.File(up.Path)
	if err != nil {
		return fmt.Errorf("upload asset checksum: %w", err)
	}

	status, err := r.registerOperation(ctx, models.OperationStatus{
		ID:       up.OperationID,
		Kind:     models.OperationUpload,
		RecordID: up.Record.ID,
		Field:    up.Field,
		Size:     info.Size(),
		Checksum: sum,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.trackTransfer(up.OperationID, cancel)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer r.untrackTransfer(up.OperationID)

		rec, runErr := r.runUpload(runCtx, up, status.Offset, info.Size())
		if runErr != nil && runCtx.Err() != nil {
			r.cancelServerOperation(up.OperationID)
			runErr = ErrCancelled
		}
		if up.Callbacks.Done != nil {
			up.Callbacks.Done(rec, runErr)
		}
	}()
	return nil
}

// runUpload pushes file bytes from offset to the end, then finalizes the
// operation. The completion response carries the refreshed record with the
// asset field and bumped change tag set by the server.
func (r *httpRecordStore) runUpload(ctx context.Context, up AssetUpload, offset, size int64) (*models.Record, error) {
	f, err := os.Open(up.Path)
	if err != nil {
		return nil, fmt.Errorf("upload open: %w", err)
	}
	defer func() { _ = f.Close() }()

	if offset > 0 {
		if _, err = f.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("upload seek: %w", err)
		}
	}

	buf := make([]byte, r.chunkSize)
	for offset < size {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := io.ReadFull(f, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return nil, fmt.Errorf("upload read: %w", readErr)
		}
		if n == 0 {
			break
		}

		resp, reqErr := r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
			return rr.SetHeader("Content-Type", "application/octet-stream").
				SetQueryParam("offset", strconv.FormatInt(offset, 10)).
				SetBody(buf[:n]).
				Put("/api/operations/" + up.OperationID + "/data")
		})
		if reqErr != nil {
			return nil, fmt.Errorf("upload chunk: %w", reqErr)
		}
		if err = mapHTTPError(resp); err != nil {
			return nil, err
		}

		offset += int64(n)
		if up.Callbacks.Progress != nil && size > 0 {
			up.Callbacks.Progress(float64(offset) / float64(size))
		}
	}

	resp, err := r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
		return rr.SetHeader("Content-Type", "application/json").
			SetBody(up.Record).
			Post("/api/operations/" + up.OperationID + "/complete")
	})
	if err != nil {
		return nil, fmt.Errorf("upload complete: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var outcome models.WireOutcome
	if err = json.Unmarshal(resp.Body(), &outcome); err != nil {
		return nil, fmt.Errorf("decode upload outcome: %w", err)
	}
	if err = outcomeError(outcome); err != nil {
		return nil, err
	}
	return outcome.Record, nil
}

func (r *httpRecordStore) DownloadAsset(ctx context.Context, down AssetDownload) error {
	if down.OperationID == "" {
		return errors.New("download asset: empty operation id")
	}
	if down.DestPath == "" || down.Field == "" {
		return errors.New("download asset: destination and field are required")
	}

	status, err := r.registerOperation(ctx, models.OperationStatus{
		ID:       down.OperationID,
		Kind:     models.OperationDownload,
		RecordID: down.ID,
		Field:    down.Field,
	})
	if err != nil {
		return err
	}
	if status.Size <= 0 {
		return fmt.Errorf("download asset: %w", ErrRecordNotFound)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.trackTransfer(down.OperationID, cancel)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		defer r.untrackTransfer(down.OperationID)

		runErr := r.runDownload(runCtx, down, status)
		if runErr != nil && runCtx.Err() != nil {
			r.cancelServerOperation(down.OperationID)
			runErr = ErrCancelled
		}
		if down.Callbacks.Done != nil {
			down.Callbacks.Done(nil, runErr)
		}
	}()
	return nil
}

// runDownload streams bytes into a partial file next to the destination,
// resuming from whatever is already there, then verifies the checksum and
// moves it into place.
func (r *httpRecordStore) runDownload(ctx context.Context, down AssetDownload, status *models.OperationStatus) error {
	partial := down.DestPath + partialSuffix
	if err := os.MkdirAll(filepath.Dir(partial), 0o750); err != nil {
		return fmt.Errorf("download mkdir: %w", err)
	}

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("download open: %w", err)
	}
	defer func() { _ = f.Close() }()

	offset := int64(0)
	if info, statErr := f.Stat(); statErr == nil && info.Size() <= status.Size {
		offset = info.Size()
	}
	if _, err = f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("download seek: %w", err)
	}

	for offset < status.Size {
		if err = ctx.Err(); err != nil {
			return err
		}

		resp, reqErr := r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
			return rr.SetQueryParam("offset", strconv.FormatInt(offset, 10)).
				SetQueryParam("limit", strconv.FormatInt(r.chunkSize, 10)).
				Get("/api/operations/" + down.OperationID + "/data")
		})
		if reqErr != nil {
			return fmt.Errorf("download chunk: %w", reqErr)
		}
		if err = mapHTTPError(resp); err != nil {
			return err
		}

		body := resp.Body()
		if len(body) == 0 {
			return fmt.Errorf("download chunk at %d: empty response", offset)
		}
		if _, err = f.Write(body); err != nil {
			return fmt.Errorf("download write: %w", err)
		}

		offset += int64(len(body))
		if down.Callbacks.Progress != nil {
			down.Callbacks.Progress(float64(offset) / float64(status.Size))
		}
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("download close: %w", err)
	}
	if status.Checksum != "" {
		sum, sumErr := checksum.File(partial)
		if sumErr != nil {
			return fmt.Errorf("download checksum: %w", sumErr)
		}
		if sum != status.Checksum {
			_ = os.Remove(partial)
			return fmt.Errorf("download checksum mismatch: got %s want %s", sum, status.Checksum)
		}
	}
	if err = os.Rename(partial, down.DestPath); err != nil {
		return fmt.Errorf("download finalize: %w", err)
	}
	return nil
}

func (r *httpRecordStore) CancelTransfer(operationID string) {
	r.transferMu.Lock()
	cancel, ok := r.transfers[operationID]
	r.transferMu.Unlock()
	if ok {
		cancel()
		return
	}
	// Not running locally; still tell the server so a stale long-lived
	// operation does not linger.
	r.cancelServerOperation(operationID)
}

func (r *httpRecordStore) cancelServerOperation(operationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.client.GetClient().Timeout)
	defer cancel()

	resp, err := r.do(ctx, func(rr *resty.Request) (*resty.Response, error) {
		return rr.Post("/api/operations/" + operationID + "/cancel")
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("operation", operationID).Msg("cancel operation request failed")
		return
	}
	if err = mapHTTPError(resp); err != nil && !errors.Is(err, ErrOperationUnknown) && !errors.Is(err, ErrRecordNotFound) {
		r.logger.Warn().Err(err).Str("operation", operationID).Msg("cancel operation rejected")
	}
}

// Wait blocks until all in-flight transfer goroutines have finished.
func (r *httpRecordStore) Wait() {
	r.wg.Wait()
}
