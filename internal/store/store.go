// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

// Package store implements the local object store of the sync engine on
// SQLite: entity instances with their service attributes, the relationship
// table, the durable change-history log consumed by the push pipeline, and
// a small key-value table holding the sync cursor.
//
// All writes go through a [Context], a unit of work that commits its staged
// mutations and the matching history rows in one SQLite transaction.
// Components interested in commits register a [ContextObserver]; will-save
// runs before the transaction opens (and may amend staged objects),
// did-save runs after a successful commit with the recorded transaction.
package store

import (
	"context"
	"database/sql"
	"sync"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/internal/schema"
)

// DB wraps the SQLite handle so repository code can hang helpers off it.
type DB struct {
	*sql.DB
	logger *logger.Logger
}

// Store is the local object store. One Store owns one SQLite database.
type Store struct {
	db     *DB
	schema schema.Metadata
	logger *logger.Logger

	// saveMu serializes commits so history transaction IDs are assigned in
	// commit order.
	saveMu sync.Mutex

	obsMu     sync.RWMutex
	observers []ContextObserver
}

// NewStore wraps an open database handle. The schema metadata is needed to
// decide which entities carry cache bookkeeping when scanning rows.
func NewStore(db *DB, meta schema.Metadata, log *logger.Logger) *Store {
	return &Store{db: db, schema: meta, logger: log}
}

// Subscribe registers an observer for context lifecycle events.
func (s *Store) Subscribe(o ContextObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Unsubscribe removes a previously registered observer.
func (s *Store) Unsubscribe(o ContextObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for i, obs := range s.observers {
		if obs == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Store) snapshotObservers() []ContextObserver {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	out := make([]ContextObserver, len(s.observers))
	copy(out, s.observers)
	return out
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
