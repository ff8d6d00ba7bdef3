// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

// SQL used by the Postgres repository. Multi-row lookups with variable ID
// sets are built with squirrel in repository.go; everything with a fixed
// shape lives here.
const (
	selectRecordForUpdate = `SELECT name, scope, zone, owner, entity, fields, refs, version, modified_at
FROM records WHERE name = $1 FOR UPDATE`

	insertRecord = `INSERT INTO records (name, scope, zone, owner, entity, fields, refs, version, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 1, now())
RETURNING version, modified_at`

	updateRecord = `UPDATE records
SET fields = $2, refs = $3, version = version + 1, modified_at = now()
WHERE name = $1
RETURNING version, modified_at`

	updateRecordField = `UPDATE records
SET fields = jsonb_set(fields, $2, $3, true), version = version + 1, modified_at = now()
WHERE name = $1
RETURNING name, scope, zone, owner, entity, fields, refs, version, modified_at`

	deleteRecord = `DELETE FROM records WHERE name = $1`

	zoneExists = `SELECT EXISTS (SELECT 1 FROM zones WHERE scope = $1 AND name = $2)`

	insertZone = `INSERT INTO zones (scope, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	deleteZone = `DELETE FROM zones WHERE scope = $1 AND name = $2`

	deleteZoneRecords = `DELETE FROM records WHERE scope = $1 AND zone = $2`

	upsertSubscription = `INSERT INTO subscriptions (device, scope, zone)
VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	selectDevice = `SELECT device, access_key, owner FROM devices WHERE device = $1`

	insertDevice = `INSERT INTO devices (device, access_key, owner)
VALUES ($1, $2, $3) ON CONFLICT (device) DO NOTHING`

	insertOperation = `INSERT INTO operations (id, kind, record_name, field, device, byte_offset, size, state, checksum)
VALUES ($1, $2, $3, $4, $5, 0, $6, 'running', $7)
ON CONFLICT (id) DO NOTHING`

	selectOperation = `SELECT id, kind, record_name, field, byte_offset, size, state, checksum
FROM operations WHERE id = $1`

	advanceOperationOffset = `UPDATE operations SET byte_offset = $2 WHERE id = $1 AND state = 'running'`

	finishOperation = `UPDATE operations SET state = 'done' WHERE id = $1 AND state = 'running'`

	cancelOperation = `UPDATE operations SET state = 'cancelled' WHERE id = $1 AND state = 'running'`
)
