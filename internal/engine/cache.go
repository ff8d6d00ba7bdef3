// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/internal/remote"
	"github.com/cloudmirror/cloudmirror/internal/schema"
	"github.com/cloudmirror/cloudmirror/internal/store"
	"github.com/cloudmirror/cloudmirror/models"
)

// CacheManager runs the binary-cache state machine for cacheable objects.
// Application commits put an object into a trigger state (upload, download
// or unload); the manager observes the commit, performs the transfer
// through resumable long-lived operations, and lands the object in a
// terminal state. The operation ID is persisted before a transfer is
// submitted, so a restart reattaches to server-side progress instead of
// starting over.
type CacheManager struct {
	store     *store.Store
	remote    remote.RecordStore
	conv      *Converter
	meta      schema.Metadata
	pauser    *Pauser
	sink      Sink
	logger    *logger.Logger
	assetsDir string

	jobs   chan int64
	runCtx context.Context
	cancel context.CancelFunc
}

func NewCacheManager(st *store.Store, rs remote.RecordStore, conv *Converter, meta schema.Metadata, pauser *Pauser, sink Sink, log *logger.Logger, assetsDir string) *CacheManager {
	return &CacheManager{
		store:     st,
		remote:    rs,
		conv:      conv,
		meta:      meta,
		pauser:    pauser,
		sink:      sink,
		logger:    log,
		assetsDir: assetsDir,
		jobs:      make(chan int64, 1024),
	}
}

// Start launches the serial cache worker. One worker keeps the state
// machine race-free: an object cannot enter a second transfer while its
// first is being launched.
func (m *CacheManager) Start(ctx context.Context) {
	m.runCtx, m.cancel = context.WithCancel(ctx)
	go m.run(m.runCtx)
}

func (m *CacheManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *CacheManager) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case localID := <-m.jobs:
			if err := m.process(ctx, localID); err != nil {
				m.sink(ModuleCache, err)
			}
		}
	}
}

// WillSave implements store.ContextObserver. Identity assignment belongs
// to the history processor; nothing to do here.
func (m *CacheManager) WillSave(_ *store.Context) {}

// DidSave enqueues cacheable objects whose commit may have put them into a
// trigger state. Engine-internal commits are ignored: pull never writes
// trigger states and the manager's own progress writes must not feed back.
func (m *CacheManager) DidSave(_ *store.Context, txn models.Transaction) {
	if isServiceContext(txn.ContextName) {
		return
	}
	for _, ch := range txn.Changes {
		if ch.Kind == models.ChangeDelete {
			continue
		}
		ent, ok := m.meta.Entity(ch.Entity)
		if !ok || !ent.Cacheable {
			continue
		}
		m.enqueue(ch.ObjectID)
	}
}

func (m *CacheManager) enqueue(localID int64) {
	select {
	case m.jobs <- localID:
	default:
		m.sink(ModuleCache, fmt.Errorf("cache queue full, dropping job for object %d", localID))
	}
}

// process inspects one enqueued object and launches whatever its state
// requests. Non-trigger states mean the change was not cache work.
func (m *CacheManager) process(ctx context.Context, localID int64) error {
	obj, err := m.store.Object(ctx, localID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("load cache object %d: %w", localID, err)
	}
	if obj.Cache == nil || !obj.Cache.State.IsTrigger() {
		return nil
	}

	switch obj.Cache.State {
	case models.CacheStateUpload:
		return m.startUpload(ctx, obj)
	case models.CacheStateDownload:
		return m.startDownload(ctx, obj)
	case models.CacheStateUnload:
		return m.unload(ctx, obj)
	}
	return nil
}

// startUpload moves an object from upload to uploading and submits the
// transfer. The uploading state together with the operation ID commits
// before submission; if the process dies right after, restart finds the ID
// and reattaches.
func (m *CacheManager) startUpload(ctx context.Context, obj *models.Object) error {
	ent, ok := m.meta.Entity(obj.Entity)
	if !ok || ent.AssetField == "" {
		return fmt.Errorf("object %d: entity %q has no asset field", obj.LocalID, obj.Entity)
	}
	if m.pauser.Active() {
		m.requeueAfterPause(obj.LocalID)
		return nil
	}

	if obj.Cache.OperationID == "" {
		obj.Cache.OperationID = newRecordName()
	}
	obj.Cache.State = models.CacheStateUploading
	obj.Cache.LastErrorMessage = ""
	if err := m.persist(ctx, obj); err != nil {
		return err
	}

	return m.submitUpload(ctx, obj, ent)
}

// submitUpload hands the transfer to the record store. Used both for fresh
// uploads and for reattaching after a restart.
func (m *CacheManager) submitUpload(ctx context.Context, obj *models.Object, ent schema.Entity) error {
	rec, err := m.conv.ToRecord(ctx, obj)
	if err != nil {
		return m.failUpload(ctx, obj.LocalID, err)
	}

	localID, opID := obj.LocalID, obj.Cache.OperationID
	err = m.remote.UploadAsset(ctx, remote.AssetUpload{
		OperationID: opID,
		Record:      rec,
		Field:       ent.AssetField,
		Path:        obj.Cache.AssetPath,
		Callbacks: remote.TransferCallbacks{
			Progress: func(progress float64) { m.onUploadProgress(localID, opID, progress) },
			Done:     func(result *models.Record, doneErr error) { m.onUploadDone(localID, opID, result, doneErr) },
		},
	})
	if err != nil {
		return m.failUpload(ctx, localID, err)
	}
	return nil
}

// onUploadProgress persists transfer progress. Progress is monotonic per
// operation: a late or retried chunk reporting a smaller fraction never
// rolls the stored value back.
func (m *CacheManager) onUploadProgress(localID int64, opID string, progress float64) {
	ctx := m.runCtx
	obj, err := m.store.Object(ctx, localID)
	if err != nil || obj.Cache == nil {
		return
	}
	if obj.Cache.State != models.CacheStateUploading || obj.Cache.OperationID != opID {
		return
	}
	if progress <= obj.Cache.UploadProgress {
		return
	}
	obj.Cache.UploadProgress = progress
	if err = m.persist(ctx, obj); err != nil {
		m.sink(ModuleCache, err)
	}
}

func (m *CacheManager) onUploadDone(localID int64, opID string, result *models.Record, err error) {
	ctx := m.runCtx
	obj, loadErr := m.store.Object(ctx, localID)
	if loadErr != nil || obj.Cache == nil || obj.Cache.OperationID != opID {
		// The object was deleted mid-transfer or the transfer was
		// superseded. Either way the outcome is moot.
		return
	}

	switch {
	case err == nil:
		obj.Cache.State = models.CacheStateCached
		obj.Cache.UploadProgress = 1
		obj.Cache.OperationID = ""
		obj.Cache.LastErrorMessage = ""
		if result != nil {
			meta := result.Meta
			obj.Meta = &meta
		}
		if persistErr := m.persist(ctx, obj); persistErr != nil {
			m.sink(ModuleCache, persistErr)
		}

	case errors.Is(err, remote.ErrCancelled):
		// Intentional cancellation, usually because the object is being
		// deleted. Swallowed.
		m.logger.Debug().Int64("object", localID).Msg("asset upload cancelled")

	default:
		if failErr := m.failUpload(ctx, localID, err); failErr != nil {
			m.sink(ModuleCache, failErr)
		}
		m.sink(ModuleCache, fmt.Errorf("upload asset of object %d: %w", localID, err))
	}
}

// failUpload lands the object back in local with the error message, ready
// for the application to retry by setting upload again.
func (m *CacheManager) failUpload(ctx context.Context, localID int64, cause error) error {
	obj, err := m.store.Object(ctx, localID)
	if err != nil || obj.Cache == nil {
		return nil
	}
	obj.Cache.State = models.CacheStateLocal
	obj.Cache.OperationID = ""
	obj.Cache.UploadProgress = 0
	obj.Cache.LastErrorMessage = cause.Error()
	return m.persist(ctx, obj)
}

func (m *CacheManager) startDownload(ctx context.Context, obj *models.Object) error {
	ent, ok := m.meta.Entity(obj.Entity)
	if !ok || ent.AssetField == "" {
		return fmt.Errorf("object %d: entity %q has no asset field", obj.LocalID, obj.Entity)
	}
	if m.pauser.Active() {
		m.requeueAfterPause(obj.LocalID)
		return nil
	}

	if obj.Cache.OperationID == "" {
		obj.Cache.OperationID = newRecordName()
	}
	obj.Cache.State = models.CacheStateDownloading
	obj.Cache.LastErrorMessage = ""
	if err := m.persist(ctx, obj); err != nil {
		return err
	}

	return m.submitDownload(ctx, obj, ent)
}

func (m *CacheManager) submitDownload(ctx context.Context, obj *models.Object, ent schema.Entity) error {
	dest := filepath.Join(m.assetsDir, obj.RecordName, ent.AssetField)
	localID, opID := obj.LocalID, obj.Cache.OperationID

	err := m.remote.DownloadAsset(ctx, remote.AssetDownload{
		OperationID: opID,
		ID:          obj.RecordID(),
		Field:       ent.AssetField,
		DestPath:    dest,
		Callbacks: remote.TransferCallbacks{
			Progress: func(progress float64) { m.onDownloadProgress(localID, opID, progress) },
			Done:     func(_ *models.Record, doneErr error) { m.onDownloadDone(localID, opID, dest, doneErr) },
		},
	})
	if err != nil {
		return m.failDownload(ctx, localID, err)
	}
	return nil
}

func (m *CacheManager) onDownloadProgress(localID int64, opID string, progress float64) {
	ctx := m.runCtx
	obj, err := m.store.Object(ctx, localID)
	if err != nil || obj.Cache == nil {
		return
	}
	if obj.Cache.State != models.CacheStateDownloading || obj.Cache.OperationID != opID {
		return
	}
	if progress <= obj.Cache.DownloadProgress {
		return
	}
	obj.Cache.DownloadProgress = progress
	if err = m.persist(ctx, obj); err != nil {
		m.sink(ModuleCache, err)
	}
}

func (m *CacheManager) onDownloadDone(localID int64, opID, dest string, err error) {
	ctx := m.runCtx
	obj, loadErr := m.store.Object(ctx, localID)
	if loadErr != nil || obj.Cache == nil || obj.Cache.OperationID != opID {
		return
	}

	switch {
	case err == nil:
		obj.Cache.State = models.CacheStateCached
		obj.Cache.DownloadProgress = 1
		obj.Cache.OperationID = ""
		obj.Cache.LastErrorMessage = ""
		obj.Cache.AssetPath = dest
		if persistErr := m.persist(ctx, obj); persistErr != nil {
			m.sink(ModuleCache, persistErr)
		}

	case errors.Is(err, remote.ErrCancelled):
		m.logger.Debug().Int64("object", localID).Msg("asset download cancelled")

	default:
		if failErr := m.failDownload(ctx, localID, err); failErr != nil {
			m.sink(ModuleCache, failErr)
		}
		m.sink(ModuleCache, fmt.Errorf("download asset of object %d: %w", localID, err))
	}
}

// failDownload lands the object back in remote with the error message.
func (m *CacheManager) failDownload(ctx context.Context, localID int64, cause error) error {
	obj, err := m.store.Object(ctx, localID)
	if err != nil || obj.Cache == nil {
		return nil
	}
	obj.Cache.State = models.CacheStateRemote
	obj.Cache.OperationID = ""
	obj.Cache.DownloadProgress = 0
	obj.Cache.LastErrorMessage = cause.Error()
	return m.persist(ctx, obj)
}

// unload discards the local payload copy. The record keeps its remote
// asset; the object lands in remote so a later download can bring the
// payload back.
func (m *CacheManager) unload(ctx context.Context, obj *models.Object) error {
	if obj.Cache.AssetPath != "" {
		if err := os.Remove(obj.Cache.AssetPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove cached asset of object %d: %w", obj.LocalID, err)
		}
	}
	obj.Cache.State = models.CacheStateRemote
	obj.Cache.AssetPath = ""
	obj.Cache.UploadProgress = 0
	obj.Cache.DownloadProgress = 0
	obj.Cache.LastErrorMessage = ""
	return m.persist(ctx, obj)
}

// RestartOperations resumes cache work after a process restart: trigger
// states are re-enqueued, and in-flight states reattach to their
// long-lived operation when the server still knows it, or drop back to the
// trigger state when it does not.
func (m *CacheManager) RestartOperations(ctx context.Context) error {
	for _, ent := range m.meta.CacheableEntities() {
		pending, err := m.store.ObjectsInCacheStates(ctx, ent.Name,
			models.CacheStateUpload, models.CacheStateDownload, models.CacheStateUnload)
		if err != nil {
			return fmt.Errorf("scan pending cache work: %w", err)
		}
		for _, obj := range pending {
			m.enqueue(obj.LocalID)
		}

		inflight, err := m.store.ObjectsInCacheStates(ctx, ent.Name,
			models.CacheStateUploading, models.CacheStateDownloading)
		if err != nil {
			return fmt.Errorf("scan in-flight cache work: %w", err)
		}
		for _, obj := range inflight {
			if err = m.reattach(ctx, obj, ent); err != nil {
				m.sink(ModuleCache, err)
			}
		}

		// Uploads that failed in a previous run get another chance.
		failed, err := m.store.FailedUploads(ctx, ent.Name)
		if err != nil {
			return fmt.Errorf("scan failed uploads: %w", err)
		}
		for _, obj := range failed {
			obj.Cache.State = models.CacheStateUpload
			obj.Cache.LastErrorMessage = ""
			if err = m.persist(ctx, obj); err != nil {
				m.sink(ModuleCache, err)
				continue
			}
			m.enqueue(obj.LocalID)
		}
	}
	return nil
}

func (m *CacheManager) reattach(ctx context.Context, obj *models.Object, ent schema.Entity) error {
	uploading := obj.Cache.State == models.CacheStateUploading

	if obj.Cache.OperationID != "" {
		status, err := m.remote.FetchLongLivedOperation(ctx, obj.Cache.OperationID)
		if err != nil {
			return fmt.Errorf("look up operation %s: %w", obj.Cache.OperationID, err)
		}
		if status != nil && status.State == models.OperationRunning {
			if uploading {
				return m.submitUpload(ctx, obj, ent)
			}
			return m.submitDownload(ctx, obj, ent)
		}
	}

	// The server has no memory of the operation. Fall back to the trigger
	// state and let the worker start a fresh transfer.
	if uploading {
		obj.Cache.State = models.CacheStateUpload
	} else {
		obj.Cache.State = models.CacheStateDownload
	}
	obj.Cache.OperationID = ""
	if err := m.persist(ctx, obj); err != nil {
		return err
	}
	m.enqueue(obj.LocalID)
	return nil
}

func (m *CacheManager) requeueAfterPause(localID int64) {
	delay := m.pauser.Remaining()
	time.AfterFunc(delay, func() { m.enqueue(localID) })
}

// persist writes the object's cache bookkeeping through the engine's
// service context so the change never feeds back into push or cache
// processing.
func (m *CacheManager) persist(ctx context.Context, obj *models.Object) error {
	sc := m.store.NewContext(serviceContextName)
	sc.Update(obj)
	if err := sc.Save(ctx); err != nil {
		return fmt.Errorf("persist cache state of object %d: %w", obj.LocalID, err)
	}
	return nil
}
