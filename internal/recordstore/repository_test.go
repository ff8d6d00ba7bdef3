// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The cloudmirror Authors

package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/models"
)

func newTestRepo(t *testing.T) (*Repository, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	l := logger.Nop()
	repo := NewRepository(&DB{DB: db, logger: l}, l)
	return repo, mock, db
}

func pgError(code string) error {
	return &pgconn.PgError{Code: code}
}

func recordColumns() []string {
	return []string{"name", "scope", "zone", "owner", "entity", "fields", "refs", "version", "modified_at"}
}

func testRecord(name string, version int64) *models.Record {
	return &models.Record{
		ID:     models.RecordID{Name: name, Zone: "z1", Scope: models.ScopePrivate},
		Entity: "note",
		Fields: map[string]any{"title": "local"},
		Meta:   models.SystemMetadata{Version: version},
	}
}

func expectZoneExists(mock sqlmock.Sqlmock, exists bool) {
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("private", "z1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func TestSaveRecord_InsertsNewRecord(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()
	ctx := context.Background()

	now := time.Now()
	mock.ExpectBegin()
	expectZoneExists(mock, true)
	mock.ExpectQuery("SELECT name, scope, zone").
		WithArgs("n1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO records").
		WithArgs("n1", "private", "z1", "", "note", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version", "modified_at"}).AddRow(1, now))
	mock.ExpectCommit()

	saved, err := repo.SaveRecord(ctx, testRecord("n1", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Meta.Version != 1 {
		t.Errorf("expected version 1, got %d", saved.Meta.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSaveRecord_InsertRaceBecomesConflict(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	expectZoneExists(mock, true)
	mock.ExpectQuery("SELECT name, scope, zone").
		WithArgs("n1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO records").
		WithArgs("n1", "private", "z1", "", "note", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(pgError(pgerrcode.UniqueViolation))
	mock.ExpectRollback()

	_, err := repo.SaveRecord(context.Background(), testRecord("n1", 0))
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestSaveRecord_StaleVersionReturnsCurrent(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	expectZoneExists(mock, true)
	mock.ExpectQuery("SELECT name, scope, zone").
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows(recordColumns()).
			AddRow("n1", "private", "z1", "", "note", []byte(`{"title":"server"}`), []byte(`{}`), 5, now))
	mock.ExpectRollback()

	current, err := repo.SaveRecord(context.Background(), testRecord("n1", 3))
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if current == nil || current.Meta.Version != 5 {
		t.Fatalf("expected the server's current record alongside the conflict, got %+v", current)
	}
	if current.Fields["title"] != "server" {
		t.Errorf("expected server fields, got %v", current.Fields)
	}
}

func TestSaveRecord_VersionZeroOverwrites(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	expectZoneExists(mock, true)
	mock.ExpectQuery("SELECT name, scope, zone").
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows(recordColumns()).
			AddRow("n1", "private", "z1", "", "note", []byte(`{"title":"server","body":"kept"}`), []byte(`{}`), 7, now))
	mock.ExpectQuery("UPDATE records").
		WithArgs("n1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version", "modified_at"}).AddRow(8, now))
	mock.ExpectCommit()

	saved, err := repo.SaveRecord(context.Background(), testRecord("n1", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Meta.Version != 8 {
		t.Errorf("expected version 8, got %d", saved.Meta.Version)
	}
	// Partial save: submitted fields overlay the stored ones.
	if saved.Fields["title"] != "local" || saved.Fields["body"] != "kept" {
		t.Errorf("unexpected merged fields: %v", saved.Fields)
	}
}

func TestSaveRecord_MissingZone(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	expectZoneExists(mock, false)
	mock.ExpectRollback()

	_, err := repo.SaveRecord(context.Background(), testRecord("n1", 0))
	if !errors.Is(err, ErrZoneNotFound) {
		t.Fatalf("expected ErrZoneNotFound, got %v", err)
	}
}

func TestDeleteRecord_NotFound(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectExec("DELETE FROM records").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteRecord(context.Background(), "ghost")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestDeleteRecord_Success(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectExec("DELETE FROM records").
		WithArgs("n1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DeleteRecord(context.Background(), "n1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFetchRecords_DesiredFields(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT name, scope, zone").
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows(recordColumns()).
			AddRow("n1", "private", "z1", "", "note", []byte(`{"title":"a","body":"b"}`), []byte(`{}`), 2, now))

	out, err := repo.FetchRecords(context.Background(),
		[]models.RecordID{{Name: "n1", Scope: models.ScopePrivate}}, []string{"title"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := out["n1"]
	if rec == nil {
		t.Fatal("record missing from result")
	}
	if _, ok := rec.Fields["body"]; ok {
		t.Errorf("undesired field survived the restriction: %v", rec.Fields)
	}
	if rec.Fields["title"] != "a" {
		t.Errorf("expected title kept, got %v", rec.Fields)
	}
}

func TestAuthenticateDevice_FirstContactRegisters(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO devices").
		WithArgs("dev-1", "key-1", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT device, access_key, owner").
		WithArgs("dev-1").
		WillReturnRows(sqlmock.NewRows([]string{"device", "access_key", "owner"}).
			AddRow("dev-1", "key-1", "owner-1"))

	owner, err := repo.AuthenticateDevice(context.Background(), "dev-1", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner != "owner-1" {
		t.Errorf("expected owner-1, got %q", owner)
	}
}

func TestAuthenticateDevice_WrongKey(t *testing.T) {
	repo, mock, db := newTestRepo(t)
	defer db.Close()

	mock.ExpectExec("INSERT INTO devices").
		WithArgs("dev-1", "bad-key", "").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT device, access_key, owner").
		WithArgs("dev-1").
		WillReturnRows(sqlmock.NewRows([]string{"device", "access_key", "owner"}).
			AddRow("dev-1", "key-1", ""))

	_, err := repo.AuthenticateDevice(context.Background(), "dev-1", "bad-key")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}
