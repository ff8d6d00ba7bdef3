// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

// Package checksum provides the payload digest shared by both ends of the
// asset transfer protocol.
package checksum

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// File computes the blake2b-256 digest of a file, hex encoded. The record
// store verifies it when a resumable upload completes, and the client
// re-verifies downloaded payloads against the server-reported value.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open payload for checksum: %w", err)
	}
	defer f.Close()

	return Stream(f)
}

// Stream computes the blake2b-256 digest of a reader, hex encoded.
func Stream(r io.Reader) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
