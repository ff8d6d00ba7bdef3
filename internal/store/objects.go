package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/models"
)

// Object loads one object by local ID.
func (s *Store) Object(ctx context.Context, id int64) (*models.Object, error) {
	return s.queryOne(ctx, sq.Eq{"id": id})
}

// ObjectByRecordName loads one object by its remote identifier. Returns
// ErrObjectNotFound when no local object carries the record name.
func (s *Store) ObjectByRecordName(ctx context.Context, recordName string) (*models.Object, error) {
	return s.queryOne(ctx, sq.Eq{"record_name": recordName})
}

// ObjectsByEntity loads every object of one entity.
func (s *Store) ObjectsByEntity(ctx context.Context, entity string) ([]*models.Object, error) {
	return s.queryObjects(ctx, sq.Eq{"entity": entity})
}

// ObjectsInCacheStates loads objects of one entity whose cache state is any
// of the given states.
func (s *Store) ObjectsInCacheStates(ctx context.Context, entity string, states ...models.CacheState) ([]*models.Object, error) {
	raw := make([]string, 0, len(states))
	for _, st := range states {
		raw = append(raw, string(st))
	}
	return s.queryObjects(ctx, sq.And{sq.Eq{"entity": entity}, sq.Eq{"cache_state": raw}})
}

// FailedUploads loads cacheable objects of one entity that fell back to the
// local state with a stored error, i.e. uploads that need a restart.
func (s *Store) FailedUploads(ctx context.Context, entity string) ([]*models.Object, error) {
	return s.queryObjects(ctx, sq.And{
		sq.Eq{"entity": entity, "cache_state": string(models.CacheStateLocal)},
		sq.NotEq{"last_error": ""},
	})
}

// AllObjects loads every object in the store, in entity then ID order.
// Used by the full-reupload recovery path.
func (s *Store) AllObjects(ctx context.Context) ([]*models.Object, error) {
	return s.queryObjects(ctx, nil)
}

func (s *Store) queryOne(ctx context.Context, pred sq.Sqlizer) (*models.Object, error) {
	objs, err := s.queryObjects(ctx, pred)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, ErrObjectNotFound
	}
	return objs[0], nil
}

func (s *Store) queryObjects(ctx context.Context, pred sq.Sqlizer) ([]*models.Object, error) {
	log := logger.FromContext(ctx)

	builder := sq.Select(
		"id", "entity", "record_name", "zone_name", "owner_name", "scope",
		"fields", "system_meta", "changed_fields", "cache_state",
		"upload_progress", "download_progress", "last_error", "operation_id", "asset_path",
	).From("objects").OrderBy("entity", "id")
	if pred != nil {
		builder = builder.Where(pred)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build objects query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).Str("func", "Store.queryObjects").Msg("failed to query objects")
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer rows.Close()

	var objs []*models.Object
	for rows.Next() {
		obj, scanErr := s.scanObject(rows)
		if scanErr != nil {
			log.Err(scanErr).Str("func", "Store.queryObjects").Msg("failed to scan object row")
			return nil, fmt.Errorf("failed to scan object row: %w", scanErr)
		}
		objs = append(objs, obj)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("error iterating object rows: %w", rowsErr)
	}

	for _, obj := range objs {
		if err = s.loadRelations(ctx, obj); err != nil {
			return nil, err
		}
	}

	return objs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanObject(row rowScanner) (*models.Object, error) {
	var (
		obj           models.Object
		fieldsJSON    string
		metaJSON      sql.NullString
		changedJSON   string
		cacheState    string
		upProgress    float64
		downProgress  float64
		lastError     string
		operationID   string
		assetPath     string
	)

	err := row.Scan(
		&obj.LocalID,
		&obj.Entity,
		&obj.RecordName,
		&obj.ZoneName,
		&obj.OwnerName,
		&obj.Scope,
		&fieldsJSON,
		&metaJSON,
		&changedJSON,
		&cacheState,
		&upProgress,
		&downProgress,
		&lastError,
		&operationID,
		&assetPath,
	)
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal([]byte(fieldsJSON), &obj.Fields); err != nil {
		return nil, fmt.Errorf("decode object fields: %w", err)
	}
	if err = json.Unmarshal([]byte(changedJSON), &obj.ChangedFields); err != nil {
		return nil, fmt.Errorf("decode changed fields: %w", err)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		var meta models.SystemMetadata
		if err = json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
			return nil, fmt.Errorf("decode system metadata: %w", err)
		}
		obj.Meta = &meta
	}

	if entity, ok := s.schema.Entity(obj.Entity); ok && entity.Cacheable {
		obj.Cache = &models.CacheInfo{
			State:            models.CacheState(cacheState),
			UploadProgress:   upProgress,
			DownloadProgress: downProgress,
			LastErrorMessage: lastError,
			OperationID:      operationID,
			AssetPath:        assetPath,
		}
		if obj.Cache.State == "" {
			obj.Cache.State = models.CacheStateLocal
		}
	}

	return &obj, nil
}

func (s *Store) loadRelations(ctx context.Context, obj *models.Object) error {
	rows, err := s.db.QueryContext(ctx, selectRelations, obj.LocalID)
	if err != nil {
		return fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	obj.Relations = make(map[string][]int64)
	for rows.Next() {
		var name string
		var target int64
		if err = rows.Scan(&name, &target); err != nil {
			return fmt.Errorf("failed to scan relation row: %w", err)
		}
		obj.Relations[name] = append(obj.Relations[name], target)
	}
	return rows.Err()
}

func encodeObjectColumns(obj *models.Object) (fieldsJSON, metaJSON, changedJSON string, cache models.CacheInfo, err error) {
	fields := obj.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	fb, err := json.Marshal(fields)
	if err != nil {
		return "", "", "", cache, fmt.Errorf("encode object fields: %w", err)
	}

	changed := obj.ChangedFields
	if changed == nil {
		changed = []string{}
	}
	cb, err := json.Marshal(changed)
	if err != nil {
		return "", "", "", cache, fmt.Errorf("encode changed fields: %w", err)
	}

	if obj.Meta != nil {
		mb, mErr := json.Marshal(obj.Meta)
		if mErr != nil {
			return "", "", "", cache, fmt.Errorf("encode system metadata: %w", mErr)
		}
		metaJSON = string(mb)
	}

	if obj.Cache != nil {
		cache = *obj.Cache
	}

	return string(fb), metaJSON, string(cb), cache, nil
}

func insertObjectTx(ctx context.Context, tx *sql.Tx, obj *models.Object) error {
	fieldsJSON, metaJSON, changedJSON, cache, err := encodeObjectColumns(obj)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, insertObject,
		obj.Entity,
		obj.RecordName,
		obj.ZoneName,
		obj.OwnerName,
		string(obj.Scope),
		fieldsJSON,
		nullIfEmpty(metaJSON),
		changedJSON,
		string(cache.State),
		cache.UploadProgress,
		cache.DownloadProgress,
		cache.LastErrorMessage,
		cache.OperationID,
		cache.AssetPath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert object: %w", err)
	}

	obj.LocalID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted object id: %w", err)
	}

	return writeRelationsTx(ctx, tx, obj)
}

func updateObjectTx(ctx context.Context, tx *sql.Tx, obj *models.Object) error {
	fieldsJSON, metaJSON, changedJSON, cache, err := encodeObjectColumns(obj)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, updateObject,
		obj.RecordName,
		obj.ZoneName,
		obj.OwnerName,
		string(obj.Scope),
		fieldsJSON,
		nullIfEmpty(metaJSON),
		changedJSON,
		string(cache.State),
		cache.UploadProgress,
		cache.DownloadProgress,
		cache.LastErrorMessage,
		cache.OperationID,
		cache.AssetPath,
		obj.LocalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update object: %w", err)
	}

	return writeRelationsTx(ctx, tx, obj)
}

func deleteObjectTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, deleteObjectRelations, id, id); err != nil {
		return fmt.Errorf("failed to delete object relations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, deleteObject, id); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func writeRelationsTx(ctx context.Context, tx *sql.Tx, obj *models.Object) error {
	if _, err := tx.ExecContext(ctx, deleteRelationsFrom, obj.LocalID); err != nil {
		return fmt.Errorf("failed to clear object relations: %w", err)
	}
	for name, targets := range obj.Relations {
		for _, target := range targets {
			if _, err := tx.ExecContext(ctx, insertRelation, obj.LocalID, name, target); err != nil {
				return fmt.Errorf("failed to insert relation %s: %w", name, err)
			}
		}
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IsNotFound reports whether err represents a missing object or value.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrValueNotFound) || errors.Is(err, sql.ErrNoRows)
}
