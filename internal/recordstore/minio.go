// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cloudmirror/cloudmirror/internal/config"
)

// minioBlobStore keeps blobs in an S3-compatible object store.
type minioBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinioBlobStore connects to the configured MinIO endpoint and ensures
// the bucket exists.
func NewMinioBlobStore(ctx context.Context, cfg config.Assets) (BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &minioBlobStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *minioBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("put blob %s: %w", key, err)
	}
	return nil
}

func (s *minioBlobStore) Get(ctx context.Context, key string, offset, limit int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if offset > 0 || limit > 0 {
		end := int64(0)
		if limit > 0 {
			end = offset + limit - 1
		}
		if err := opts.SetRange(offset, end); err != nil {
			return nil, fmt.Errorf("range blob %s: %w", key, err)
		}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, mapMinioError(key, err)
	}
	return obj, nil
}

func (s *minioBlobStore) Size(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, mapMinioError(key, err)
	}
	return info.Size, nil
}

func (s *minioBlobStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapMinioError(key, err)
	}
	return nil
}

func mapMinioError(key string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
		return ErrRecordNotFound
	}
	return fmt.Errorf("blob %s: %w", key, err)
}

// NewBlobStore selects the configured blob backend.
func NewBlobStore(ctx context.Context, cfg config.Assets) (BlobStore, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinioBlobStore(ctx, cfg)
	default:
		return NewFSBlobStore(cfg.Dir)
	}
}
