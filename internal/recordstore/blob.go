// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BlobStore holds finished asset payloads. Uploads stage locally chunk by
// chunk and land here in one piece on completion; downloads stream out by
// byte range.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Get(ctx context.Context, key string, offset, limit int64) (io.ReadCloser, error)
	Size(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// fsBlobStore keeps blobs as plain files under a root directory.
type fsBlobStore struct {
	dir string
}

// NewFSBlobStore builds the filesystem blob backend rooted at dir.
func NewFSBlobStore(dir string) (BlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &fsBlobStore{dir: dir}, nil
}

func (s *fsBlobStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

func (s *fsBlobStore) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create blob subdir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create blob %s: %w", key, err)
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	return f.Close()
}

func (s *fsBlobStore) Get(_ context.Context, key string, offset, limit int64) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	if offset > 0 {
		if _, err = f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("seek blob %s: %w", key, err)
		}
	}
	if limit <= 0 {
		return f, nil
	}
	return &limitedReadCloser{Reader: io.LimitReader(f, limit), closer: f}, nil
}

func (s *fsBlobStore) Size(_ context.Context, key string) (int64, error) {
	info, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrRecordNotFound
		}
		return 0, fmt.Errorf("stat blob %s: %w", key, err)
	}
	return info.Size(), nil
}

func (s *fsBlobStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

type limitedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Close() error { return l.closer.Close() }
