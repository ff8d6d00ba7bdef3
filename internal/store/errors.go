package store

import "errors"

var (
	// ErrObjectNotFound is returned when no object matches the requested
	// local ID or record name.
	ErrObjectNotFound = errors.New("object not found")

	// ErrCursorExpired is returned by HistorySince when the given cursor
	// points below the retained history floor; the caller must reset the
	// cursor and perform a full resync.
	ErrCursorExpired = errors.New("history cursor expired")

	// ErrValueNotFound is returned by GetValue for an unknown key.
	ErrValueNotFound = errors.New("value not found")
)
