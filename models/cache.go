// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package models

// CacheState is the per-object state of the large-binary cache machine.
//
// Transitions:
//
//	local  -> upload   -> uploading   -> cached | local (with error)
//	remote -> download -> downloading -> cached | remote (with error)
//	cached | remote -> unload -> remote
type CacheState string

const (
	CacheStateLocal       CacheState = "local"
	CacheStateUpload      CacheState = "upload"
	CacheStateUploading   CacheState = "uploading"
	CacheStateCached      CacheState = "cached"
	CacheStateDownload    CacheState = "download"
	CacheStateDownloading CacheState = "downloading"
	CacheStateRemote      CacheState = "remote"
	CacheStateUnload      CacheState = "unload"
)

// IsTrigger reports whether the state requests work from the cache manager.
func (s CacheState) IsTrigger() bool {
	return s == CacheStateUpload || s == CacheStateDownload || s == CacheStateUnload
}

// IsInFlight reports whether a transfer may already be running for the state.
func (s CacheState) IsInFlight() bool {
	return s == CacheStateUploading || s == CacheStateDownloading
}

// CacheInfo is the binary-cache capability of a cacheable Object.
// Invariant: at most one in-flight operation ID at a time.
type CacheInfo struct {
	State            CacheState
	UploadProgress   float64
	DownloadProgress float64
	LastErrorMessage string
	OperationID      string

	// AssetPath is where the binary payload lives on the local filesystem
	// while the state is local, upload, uploading or cached.
	AssetPath string
}
