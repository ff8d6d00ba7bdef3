// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package engine

import "errors"

var (
	// ErrPaused is returned by submission paths while the global rate-limit
	// pause is in effect. The caller keeps its cursor and retries after the
	// pause deadline.
	ErrPaused = errors.New("submissions paused by server rate limit")

	// ErrUnknownEntity means an object or record named an entity the schema
	// does not declare.
	ErrUnknownEntity = errors.New("entity is not declared in schema metadata")

	// ErrUnresolvedReference marks a relationship target that never arrived
	// during a pull. Reported through the sink as a warning.
	ErrUnresolvedReference = errors.New("reference target record is not present locally")
)
