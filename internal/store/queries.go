// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package store

const initSchema = `
	CREATE TABLE IF NOT EXISTS objects (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		entity            TEXT NOT NULL,
		record_name       TEXT NOT NULL DEFAULT '',
		zone_name         TEXT NOT NULL DEFAULT '',
		owner_name        TEXT NOT NULL DEFAULT '',
		scope             TEXT NOT NULL DEFAULT 'private',
		fields            TEXT NOT NULL DEFAULT '{}',
		system_meta       TEXT,
		changed_fields    TEXT NOT NULL DEFAULT '[]',
		cache_state       TEXT NOT NULL DEFAULT '',
		upload_progress   REAL NOT NULL DEFAULT 0,
		download_progress REAL NOT NULL DEFAULT 0,
		last_error        TEXT NOT NULL DEFAULT '',
		operation_id      TEXT NOT NULL DEFAULT '',
		asset_path        TEXT NOT NULL DEFAULT ''
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_objects_record_name
		ON objects(record_name) WHERE record_name != '';
	CREATE INDEX IF NOT EXISTS idx_objects_entity ON objects(entity);
	CREATE INDEX IF NOT EXISTS idx_objects_cache_state ON objects(entity, cache_state);

	CREATE TABLE IF NOT EXISTS relations (
		object_id INTEGER NOT NULL,
		name      TEXT NOT NULL,
		target_id INTEGER NOT NULL,
		PRIMARY KEY (object_id, name, target_id)
	);
	CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);

	CREATE TABLE IF NOT EXISTS history_txns (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		context_name TEXT NOT NULL,
		committed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS history (
		seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		txn_id         INTEGER NOT NULL,
		kind           TEXT NOT NULL,
		entity         TEXT NOT NULL,
		object_id      INTEGER NOT NULL DEFAULT 0,
		changed_fields TEXT NOT NULL DEFAULT '[]',
		tombstone      TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_history_txn ON history(txn_id);

	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	PRAGMA journal_mode=WAL;
	PRAGMA synchronous=NORMAL;
	PRAGMA foreign_keys=ON;`

const (
	objectColumns = `
		id,
		entity,
		record_name,
		zone_name,
		owner_name,
		scope,
		fields,
		system_meta,
		changed_fields,
		cache_state,
		upload_progress,
		download_progress,
		last_error,
		operation_id,
		asset_path`

	insertObject = `
		INSERT INTO objects (
			entity,
			record_name,
			zone_name,
			owner_name,
			scope,
			fields,
			system_meta,
			changed_fields,
			cache_state,
			upload_progress,
			download_progress,
			last_error,
			operation_id,
			asset_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	updateObject = `
		UPDATE objects SET
			record_name       = ?,
			zone_name         = ?,
			owner_name        = ?,
			scope             = ?,
			fields            = ?,
			system_meta       = ?,
			changed_fields    = ?,
			cache_state       = ?,
			upload_progress   = ?,
			download_progress = ?,
			last_error        = ?,
			operation_id      = ?,
			asset_path        = ?
		WHERE id = ?;`

	deleteObject          = `DELETE FROM objects WHERE id = ?;`
	deleteObjectRelations = `DELETE FROM relations WHERE object_id = ? OR target_id = ?;`
	deleteRelationsFrom   = `DELETE FROM relations WHERE object_id = ?;`
	insertRelation        = `INSERT OR IGNORE INTO relations (object_id, name, target_id) VALUES (?, ?, ?);`
	selectRelations       = `SELECT name, target_id FROM relations WHERE object_id = ? ORDER BY name, target_id;`

	insertHistoryTxn = `INSERT INTO history_txns (context_name) VALUES (?);`
	insertHistoryRow = `
		INSERT INTO history (txn_id, kind, entity, object_id, changed_fields, tombstone)
		VALUES (?, ?, ?, ?, ?, ?);`

	selectHistoryTxns = `
		SELECT t.id, t.context_name, h.kind, h.entity, h.object_id, h.changed_fields, h.tombstone
		FROM history_txns t
		JOIN history h ON h.txn_id = t.id
		WHERE t.id > ?
		ORDER BY t.id, h.seq;`

	deleteHistoryRows = `DELETE FROM history WHERE txn_id <= ?;`
	deleteHistoryTxns = `DELETE FROM history_txns WHERE id <= ?;`

	upsertValue = `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value;`
	selectValue = `SELECT value FROM kv WHERE key = ?;`
)

// historyFloorKey tracks the highest pruned transaction ID; cursors at or
// below a pruned transaction other than the floor itself are expired.
const historyFloorKey = "history_floor"
