// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/models"
)

// Repository is the Postgres persistence layer of the record store. Saves
// are version checked: a submitter presenting a stale version gets the
// server's current record back together with ErrVersionConflict.
type Repository struct {
	db     *DB
	logger *logger.Logger
}

func NewRepository(db *DB, log *logger.Logger) *Repository {
	log.Debug().Msg("creating record repository")
	return &Repository{db: db, logger: log}
}

// SaveRecord persists one record save. Field payloads merge over the
// stored fields, so partial saves carrying only changed fields work.
// Version semantics:
//   - record absent: insert at version 1, whatever version the save carried
//   - version 0 (no server metadata): unconditional overwrite, for
//     first-time pushes and post-recovery reuploads
//   - matching version: update, version increments
//   - stale version: ErrVersionConflict with the current server record
func (r *Repository) SaveRecord(ctx context.Context, rec *models.Record) (*models.Record, error) {
	log := logger.FromContext(ctx)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err = tx.QueryRowContext(ctx, zoneExists, string(rec.ID.Scope), rec.ID.Zone).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check zone: %w", err)
	}
	if !exists {
		return nil, ErrZoneNotFound
	}

	current, err := scanRecord(tx.QueryRowContext(ctx, selectRecordForUpdate, rec.ID.Name))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		saved, insErr := r.insertRecord(ctx, tx, rec)
		if insErr != nil {
			return nil, insErr
		}
		return saved, tx.Commit()

	case err != nil:
		log.Err(err).Str("func", "Repository.SaveRecord").Msg("failed to load current record")
		return nil, fmt.Errorf("load current record: %w", err)
	}

	if rec.Meta.Version != 0 && rec.Meta.Version != current.Meta.Version {
		return current, ErrVersionConflict
	}

	merged := current.Fields
	for k, v := range rec.Fields {
		merged[k] = v
	}
	refs := current.References
	if rec.References != nil {
		refs = rec.References
	}

	fieldsJSON, refsJSON, err := encodeRecordColumns(merged, refs)
	if err != nil {
		return nil, err
	}

	out := &models.Record{ID: current.ID, Entity: current.Entity, Fields: merged, References: refs}
	if err = tx.QueryRowContext(ctx, updateRecord, rec.ID.Name, fieldsJSON, refsJSON).
		Scan(&out.Meta.Version, &out.Meta.ModifiedAt); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	return out, tx.Commit()
}

func (r *Repository) insertRecord(ctx context.Context, tx *sql.Tx, rec *models.Record) (*models.Record, error) {
	fieldsJSON, refsJSON, err := encodeRecordColumns(rec.Fields, rec.References)
	if err != nil {
		return nil, err
	}

	out := &models.Record{ID: rec.ID, Entity: rec.Entity, Fields: rec.Fields, References: rec.References}
	err = tx.QueryRowContext(ctx, insertRecord,
		rec.ID.Name, string(rec.ID.Scope), rec.ID.Zone, rec.ID.Owner, rec.Entity, fieldsJSON, refsJSON,
	).Scan(&out.Meta.Version, &out.Meta.ModifiedAt)
	if err != nil {
		if postgresError(err) == pgerrcode.UniqueViolation {
			// Lost an insert race; the caller sees it as a conflict against
			// the record that got there first.
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}
	return out, nil
}

// DeleteRecord removes a record. Deleting an absent record returns
// ErrRecordNotFound so the transport can report an idempotent outcome.
func (r *Repository) DeleteRecord(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, deleteRecord, name)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record result: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// FetchRecords loads the requested records in one query and returns them
// keyed by record name. Absent names are simply missing from the map.
func (r *Repository) FetchRecords(ctx context.Context, ids []models.RecordID, desiredFields []string) (map[string]*models.Record, error) {
	if len(ids) == 0 {
		return map[string]*models.Record{}, nil
	}

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.Name)
	}

	query, args, err := sq.Select("name", "scope", "zone", "owner", "entity", "fields", "refs", "version", "modified_at").
		From("records").
		Where(sq.Eq{"name": names}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build fetch query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*models.Record, len(ids))
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		if len(desiredFields) > 0 {
			rec = rec.CloneForSave(desiredFields)
		}
		out[rec.ID.Name] = rec
	}
	return out, rows.Err()
}

// SetRecordField writes one field of a record directly and bumps its
// version. Used when a finished upload attaches its asset key.
func (r *Repository) SetRecordField(ctx context.Context, name, field string, value any) (*models.Record, error) {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode field value: %w", err)
	}
	path := fmt.Sprintf("{%s}", field)

	rec, err := scanRecord(r.db.QueryRowContext(ctx, updateRecordField, name, path, string(valueJSON)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set record field: %w", err)
	}
	return rec, nil
}

// CreateZone registers a zone. Idempotent.
func (r *Repository) CreateZone(ctx context.Context, scope models.Scope, zone string) error {
	if _, err := r.db.ExecContext(ctx, insertZone, string(scope), zone); err != nil {
		return fmt.Errorf("create zone: %w", err)
	}
	return nil
}

// DeleteZone drops a zone together with every record in it.
func (r *Repository) DeleteZone(ctx context.Context, scope models.Scope, zone string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin zone delete: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, deleteZoneRecords, string(scope), zone); err != nil {
		return fmt.Errorf("delete zone records: %w", err)
	}
	if _, err = tx.ExecContext(ctx, deleteZone, string(scope), zone); err != nil {
		return fmt.Errorf("delete zone: %w", err)
	}
	return tx.Commit()
}

// ZoneExists reports whether the zone is registered.
func (r *Repository) ZoneExists(ctx context.Context, scope models.Scope, zone string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, zoneExists, string(scope), zone).Scan(&exists); err != nil {
		return false, fmt.Errorf("check zone: %w", err)
	}
	return exists, nil
}

// CreateSubscription registers a device for change notifications on a
// zone. Idempotent.
func (r *Repository) CreateSubscription(ctx context.Context, device string, scope models.Scope, zone string) error {
	if _, err := r.db.ExecContext(ctx, upsertSubscription, device, string(scope), zone); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// AuthenticateDevice verifies an access key, registering the device on
// first contact.
func (r *Repository) AuthenticateDevice(ctx context.Context, device, accessKey string) (owner string, err error) {
	if _, err = r.db.ExecContext(ctx, insertDevice, device, accessKey, ""); err != nil {
		return "", fmt.Errorf("register device: %w", err)
	}

	var storedKey string
	err = r.db.QueryRowContext(ctx, selectDevice, device).Scan(&device, &storedKey, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrDeviceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load device: %w", err)
	}
	if storedKey != accessKey {
		return "", ErrDeviceNotFound
	}
	return owner, nil
}

type recordScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row recordScanner) (*models.Record, error) {
	var (
		rec        models.Record
		scope      string
		fieldsJSON []byte
		refsJSON   []byte
		modifiedAt time.Time
	)
	err := row.Scan(&rec.ID.Name, &scope, &rec.ID.Zone, &rec.ID.Owner, &rec.Entity,
		&fieldsJSON, &refsJSON, &rec.Meta.Version, &modifiedAt)
	if err != nil {
		return nil, err
	}
	rec.ID.Scope = models.Scope(scope)
	rec.Meta.ModifiedAt = modifiedAt

	if err = json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode record fields: %w", err)
	}
	if len(refsJSON) > 0 {
		if err = json.Unmarshal(refsJSON, &rec.References); err != nil {
			return nil, fmt.Errorf("decode record references: %w", err)
		}
	}
	return &rec, nil
}

func encodeRecordColumns(fields map[string]any, refs map[string][]models.RecordID) (fieldsJSON, refsJSON string, err error) {
	if fields == nil {
		fields = map[string]any{}
	}
	fb, err := json.Marshal(fields)
	if err != nil {
		return "", "", fmt.Errorf("encode record fields: %w", err)
	}
	if refs == nil {
		refs = map[string][]models.RecordID{}
	}
	rb, err := json.Marshal(refs)
	if err != nil {
		return "", "", fmt.Errorf("encode record references: %w", err)
	}
	return string(fb), string(rb), nil
}
