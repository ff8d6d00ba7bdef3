// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/models"
)

// Context is a named unit of work against the store. Mutations are staged
// in memory and committed by Save in one SQLite transaction together with
// the history rows describing them. The context name is recorded on the
// history transaction so the history processor can tell which component
// produced a commit.
type Context struct {
	store *Store
	name  string

	inserts []*models.Object
	updates []stagedUpdate
	deletes []stagedDelete
}

type stagedUpdate struct {
	obj     *models.Object
	changed []string
}

type stagedDelete struct {
	id        int64
	entity    string
	tombstone models.Tombstone
}

// NewContext creates a unit of work tagged with the given context name.
func (s *Store) NewContext(name string) *Context {
	return &Context{store: s, name: name}
}

// Name returns the context name recorded on commits of this context.
func (c *Context) Name() string { return c.name }

// Store returns the owning store, for reads within the unit of work.
func (c *Context) Store() *Store { return c.store }

// Insert stages a new object. Its LocalID is assigned during Save.
func (c *Context) Insert(obj *models.Object) {
	c.inserts = append(c.inserts, obj)
}

// Update stages an object update. The changed field names are recorded in
// history; service-attribute-only writes pass none.
func (c *Context) Update(obj *models.Object, changed ...string) {
	c.updates = append(c.updates, stagedUpdate{obj: obj, changed: changed})
}

// Delete stages an object deletion. The tombstone built from the object
// keeps the delete actionable after the row is gone: its remote identifier
// and any in-flight cache operation ID.
func (c *Context) Delete(obj *models.Object) {
	ts := models.Tombstone{ID: obj.RecordID()}
	if obj.Cache != nil {
		ts.OperationID = obj.Cache.OperationID
	}
	c.deletes = append(c.deletes, stagedDelete{id: obj.LocalID, entity: obj.Entity, tombstone: ts})
}

// PendingInserts exposes staged inserts to will-save observers, which may
// amend service attributes (e.g. assign record names) before commit.
func (c *Context) PendingInserts() []*models.Object { return c.inserts }

// HasChanges reports whether the context has staged work.
func (c *Context) HasChanges() bool {
	return len(c.inserts)+len(c.updates)+len(c.deletes) > 0
}

// Save commits all staged mutations and their history rows in one SQLite
// transaction, then notifies did-save observers with the recorded
// transaction. A context can be reused after Save; its staging area is
// cleared on success.
func (c *Context) Save(ctx context.Context) error {
	if !c.HasChanges() {
		return nil
	}

	log := logger.FromContext(ctx)

	for _, o := range c.store.snapshotObservers() {
		o.WillSave(c)
	}

	c.store.saveMu.Lock()
	txn, err := c.commit(ctx)
	c.store.saveMu.Unlock()
	if err != nil {
		log.Err(err).Str("func", "Context.Save").Str("context", c.name).Msg("failed to commit context")
		return err
	}

	c.inserts = nil
	c.updates = nil
	c.deletes = nil

	for _, o := range c.store.snapshotObservers() {
		o.DidSave(c, txn)
	}

	return nil
}

func (c *Context) commit(ctx context.Context) (models.Transaction, error) {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("begin local transaction: %w", err)
	}
	defer tx.Rollback()

	var changes []models.Change

	// Deletes run first so a record name freed by a delete can be reused by
	// an insert in the same commit.
	for _, d := range c.deletes {
		if err = deleteObjectTx(ctx, tx, d.id); err != nil {
			return models.Transaction{}, err
		}
		ts := d.tombstone
		changes = append(changes, models.Change{
			Kind:      models.ChangeDelete,
			Entity:    d.entity,
			ObjectID:  d.id,
			Tombstone: &ts,
		})
	}

	for _, obj := range c.inserts {
		if err = insertObjectTx(ctx, tx, obj); err != nil {
			return models.Transaction{}, err
		}
		changes = append(changes, models.Change{
			Kind:          models.ChangeInsert,
			Entity:        obj.Entity,
			ObjectID:      obj.LocalID,
			ChangedFields: fieldNames(obj),
		})
	}

	for _, u := range c.updates {
		if err = updateObjectTx(ctx, tx, u.obj); err != nil {
			return models.Transaction{}, err
		}
		changes = append(changes, models.Change{
			Kind:          models.ChangeUpdate,
			Entity:        u.obj.Entity,
			ObjectID:      u.obj.LocalID,
			ChangedFields: u.changed,
		})
	}

	res, err := tx.ExecContext(ctx, insertHistoryTxn, c.name)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("record history transaction: %w", err)
	}
	txnID, err := res.LastInsertId()
	if err != nil {
		return models.Transaction{}, fmt.Errorf("read history transaction id: %w", err)
	}

	for _, ch := range changes {
		var tombstoneJSON any
		if ch.Tombstone != nil {
			b, mErr := json.Marshal(ch.Tombstone)
			if mErr != nil {
				return models.Transaction{}, fmt.Errorf("encode tombstone: %w", mErr)
			}
			tombstoneJSON = string(b)
		}
		changedJSON, mErr := json.Marshal(orEmpty(ch.ChangedFields))
		if mErr != nil {
			return models.Transaction{}, fmt.Errorf("encode changed fields: %w", mErr)
		}
		if _, err = tx.ExecContext(ctx, insertHistoryRow,
			txnID, string(ch.Kind), ch.Entity, ch.ObjectID, string(changedJSON), tombstoneJSON,
		); err != nil {
			return models.Transaction{}, fmt.Errorf("record history row: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Transaction{}, fmt.Errorf("commit local transaction: %w", err)
	}

	return models.Transaction{
		Token:       strconv.FormatInt(txnID, 10),
		ContextName: c.name,
		Changes:     changes,
	}, nil
}

func fieldNames(obj *models.Object) []string {
	names := make([]string, 0, len(obj.Fields))
	for name := range obj.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func orEmpty(fields []string) []string {
	if fields == nil {
		return []string{}
	}
	return fields
}
